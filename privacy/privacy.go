// Package privacy evaluates the ordered rule lists that gate every entity
// read and mutation.
//
// A rule returns one of the sentinel decisions Allow, Deny or Skip (or an
// error wrapping one of them). Evaluation is a fold over the list: the first
// Allow or Deny wins and an exhausted list denies. A nil return counts as
// Skip, and any other error aborts evaluation.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/store"
)

// Decision sentinels.
var (
	Allow = errors.New("privacy: allow rule")
	Deny  = errors.New("privacy: deny rule")
	Skip  = errors.New("privacy: skip rule")
)

// Allowf returns a formatted error wrapping Allow.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted error wrapping Deny.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted error wrapping Skip.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Decision is the classified outcome of one rule.
type Decision int

const (
	DecisionSkip Decision = iota
	DecisionAllow
	DecisionDeny
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	default:
		return "skip"
	}
}

// Decide classifies what a rule returned. err is non-nil when the rule failed
// instead of deciding.
func Decide(ret error) (Decision, error) {
	switch {
	case ret == nil, errors.Is(ret, Skip):
		return DecisionSkip, nil
	case errors.Is(ret, Allow):
		return DecisionAllow, nil
	case errors.Is(ret, Deny):
		return DecisionDeny, nil
	default:
		return DecisionSkip, ret
	}
}

// Input is what a rule is evaluated against.
type Input struct {
	Viewer *entity.ViewerContext
	// Entity is the candidate. For creates and updates it is built from the
	// fields about to be written.
	Entity entity.Entity
	Action entity.Action
	// Previous is the entity before an update, nil otherwise.
	Previous entity.Entity
	// Cause is non-nil when the check runs as part of a cascading deletion.
	Cause        *entity.CascadingDeletionCause
	QueryContext *store.QueryContext
}

// Rule is one step of a policy.
type Rule interface {
	Eval(ctx context.Context, in Input) error
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(ctx context.Context, in Input) error

func (f RuleFunc) Eval(ctx context.Context, in Input) error { return f(ctx, in) }

// Policy holds the rule list per action.
type Policy struct {
	Create []Rule
	Read   []Rule
	Update []Rule
	Delete []Rule
}

// Rules returns the list that applies to action.
func (p Policy) Rules(action entity.Action) []Rule {
	switch action {
	case entity.ActionCreate:
		return p.Create
	case entity.ActionRead:
		return p.Read
	case entity.ActionUpdate:
		return p.Update
	case entity.ActionDelete:
		return p.Delete
	default:
		return nil
	}
}

// Evaluate runs rules in order and returns the deciding rule's index and
// decision. An exhausted list returns index -1 and DecisionDeny. reason is the
// value the deciding rule returned.
func Evaluate(ctx context.Context, rules []Rule, in Input) (index int, decision Decision, reason error, err error) {
	for i, rule := range rules {
		ret := rule.Eval(ctx, in)
		d, err := Decide(ret)
		if err != nil {
			return i, DecisionSkip, nil, err
		}
		if d != DecisionSkip {
			return i, d, ret, nil
		}
	}
	return -1, DecisionDeny, nil, nil
}

// Authorize evaluates policy for in and applies the viewer's evaluation mode.
// It returns nil when the action is allowed, an *entity.NotAuthorizedError
// when it is denied and enforced, or the error a rule failed with.
func Authorize(ctx context.Context, policy Policy, in Input) error {
	idx, decision, reason, err := Evaluate(ctx, policy.Rules(in.Action), in)
	if err != nil {
		return err
	}
	if decision == DecisionAllow {
		return nil
	}

	kind, id := "", any(nil)
	if in.Entity != nil {
		kind, id = in.Entity.Kind(), in.Entity.ID()
	}
	denied := entity.NewNotAuthorizedError(kind, id, in.Action, idx, reason)

	mode := in.Viewer.EvaluationMode()
	if mode == entity.Enforce {
		return denied
	}

	if handler := in.Viewer.DenyHandler(); handler != nil {
		handler(ctx, denied)
	} else {
		slog.Default().WarnContext(ctx, "privacy denial",
			"mode", mode.String(),
			"kind", kind,
			"id", id,
			"action", in.Action.String(),
			"rule_index", idx,
		)
	}

	if mode == entity.DryRun {
		return nil
	}
	return denied
}
