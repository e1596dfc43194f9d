package privacy

import (
	"context"
	"fmt"

	"github.com/goliatone/go-entity/entity"
)

// AlwaysAllow allows unconditionally.
func AlwaysAllow() Rule {
	return RuleFunc(func(context.Context, Input) error { return Allow })
}

// AlwaysDeny denies unconditionally.
func AlwaysDeny() Rule {
	return RuleFunc(func(context.Context, Input) error { return Deny })
}

// DenyIfNoViewer denies anonymous viewer contexts.
func DenyIfNoViewer() Rule {
	return RuleFunc(func(_ context.Context, in Input) error {
		if in.Viewer.Viewer() == nil {
			return Denyf("no viewer")
		}
		return Skip
	})
}

// AllowIfViewerIs allows when match reports true for the viewer.
func AllowIfViewerIs(match func(entity.Viewer) bool) Rule {
	return RuleFunc(func(_ context.Context, in Input) error {
		if v := in.Viewer.Viewer(); v != nil && match(v) {
			return Allow
		}
		return Skip
	})
}

// AllowIfFieldEqualsViewer allows when the candidate's field holds the
// viewer ID.
func AllowIfFieldEqualsViewer(field string) Rule {
	return RuleFunc(func(_ context.Context, in Input) error {
		id, ok := in.Viewer.ViewerID()
		if !ok || in.Entity == nil {
			return Skip
		}
		v := in.Entity.Field(field)
		if v != nil && fmt.Sprint(v) == id {
			return Allow
		}
		return Skip
	})
}

// AllowIfCascadeFrom allows when the check runs because an entity of kind
// was deleted directly before this one.
func AllowIfCascadeFrom(kind string) Rule {
	return RuleFunc(func(_ context.Context, in Input) error {
		if in.Cause != nil && in.Cause.Entity != nil && in.Cause.Entity.Kind() == kind {
			return Allowf("cascade from %s", kind)
		}
		return Skip
	})
}

// DenyIfCascading denies any check made as part of a cascading deletion.
func DenyIfCascading() Rule {
	return RuleFunc(func(_ context.Context, in Input) error {
		if in.Cause != nil && in.Cause.Entity != nil {
			return Denyf("cascading from %s", in.Cause.Entity.UniqueIdentifier())
		}
		if in.Cause != nil {
			return Deny
		}
		return Skip
	})
}

// Any allows when one of rules allows. A deny from a sub-rule does not stop
// the remaining ones. It skips otherwise.
func Any(rules ...Rule) Rule {
	return RuleFunc(func(ctx context.Context, in Input) error {
		for _, rule := range rules {
			d, err := Decide(rule.Eval(ctx, in))
			if err != nil {
				return err
			}
			if d == DecisionAllow {
				return Allow
			}
		}
		return Skip
	})
}

// All allows when every rule allows and denies when one of them denies.
// It skips otherwise.
func All(rules ...Rule) Rule {
	return RuleFunc(func(ctx context.Context, in Input) error {
		if len(rules) == 0 {
			return Skip
		}
		allowed := true
		for _, rule := range rules {
			ret := rule.Eval(ctx, in)
			d, err := Decide(ret)
			if err != nil {
				return err
			}
			switch d {
			case DecisionDeny:
				return ret
			case DecisionSkip:
				allowed = false
			}
		}
		if allowed {
			return Allow
		}
		return Skip
	})
}
