package privacy

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-entity/entity"
)

type countingRule struct {
	ret   error
	calls int
}

func (r *countingRule) Eval(context.Context, Input) error {
	r.calls++
	return r.ret
}

func readInput(vc *entity.ViewerContext) Input {
	return Input{
		Viewer: vc,
		Entity: entity.NewBase("doc", "id", vc, entity.Fields{"id": "d1", "owner_id": "v1"}),
		Action: entity.ActionRead,
	}
}

func TestAuthorize_EmptyPolicyDenies(t *testing.T) {
	vc := entity.NewViewerContext(&entity.SimpleViewer{ID: "v1"})

	for _, action := range []entity.Action{entity.ActionCreate, entity.ActionRead, entity.ActionUpdate, entity.ActionDelete} {
		in := readInput(vc)
		in.Action = action
		err := Authorize(context.Background(), Policy{}, in)

		var denied *entity.NotAuthorizedError
		if !errors.As(err, &denied) {
			t.Fatalf("%s: expected denial, got %v", action, err)
		}
		if denied.RuleIndex != -1 || denied.Action != action {
			t.Errorf("%s: unexpected denial %+v", action, denied)
		}
	}
}

func TestAuthorize_ShortCircuits(t *testing.T) {
	skip := &countingRule{ret: Skip}
	deny := &countingRule{ret: Deny}
	allow := &countingRule{ret: Allow}

	policy := Policy{Read: []Rule{skip, deny, allow}}
	err := Authorize(context.Background(), policy, readInput(nil))

	var denied *entity.NotAuthorizedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial, got %v", err)
	}
	if denied.RuleIndex != 1 {
		t.Errorf("expected rule index 1, got %d", denied.RuleIndex)
	}
	if skip.calls != 1 || deny.calls != 1 || allow.calls != 0 {
		t.Errorf("unexpected calls skip=%d deny=%d allow=%d", skip.calls, deny.calls, allow.calls)
	}
}

func TestAuthorize_RuleFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	policy := Policy{Read: []Rule{RuleFunc(func(context.Context, Input) error { return boom })}}

	err := Authorize(context.Background(), policy, readInput(nil))
	if !errors.Is(err, boom) || entity.IsNotAuthorized(err) {
		t.Fatalf("expected rule failure, got %v", err)
	}
}

func TestAuthorize_Modes(t *testing.T) {
	tests := []struct {
		name      string
		mode      entity.EvaluationMode
		wantErr   bool
		wantCalls int
	}{
		{name: "enforce", mode: entity.Enforce, wantErr: true, wantCalls: 0},
		{name: "dry run", mode: entity.DryRun, wantErr: false, wantCalls: 1},
		{name: "enforce and log", mode: entity.EnforceAndLog, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			vc := entity.NewViewerContext(&entity.SimpleViewer{ID: "v1"},
				entity.WithEvaluationMode(tt.mode, func(_ context.Context, err *entity.NotAuthorizedError) {
					calls++
					if err.Kind != "doc" {
						t.Errorf("unexpected kind %q", err.Kind)
					}
				}))

			err := Authorize(context.Background(), Policy{Read: []Rule{AlwaysDeny()}}, readInput(vc))
			if (err != nil) != tt.wantErr {
				t.Errorf("unexpected error %v", err)
			}
			if calls != tt.wantCalls {
				t.Errorf("expected %d handler calls, got %d", tt.wantCalls, calls)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		ret     error
		want    Decision
		wantErr bool
	}{
		{ret: nil, want: DecisionSkip},
		{ret: Skipf("not mine"), want: DecisionSkip},
		{ret: Allowf("owner %s", "v1"), want: DecisionAllow},
		{ret: Denyf("blocked"), want: DecisionDeny},
		{ret: errors.New("db down"), want: DecisionSkip, wantErr: true},
	}
	for _, tt := range tests {
		got, err := Decide(tt.ret)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("Decide(%v) = %s, %v", tt.ret, got, err)
		}
	}
}

func TestBuiltinRules(t *testing.T) {
	ctx := context.Background()
	owner := entity.NewViewerContext(&entity.SimpleViewer{ID: "v1", Roles: []string{"admin"}})
	other := entity.NewViewerContext(&entity.SimpleViewer{ID: "v2"})
	anon := entity.NewViewerContext(nil)

	org := entity.NewBase("org", "id", nil, entity.Fields{"id": 1})
	cascade := entity.NewCascadingDeletionCause(org, nil)

	isAdmin := func(v entity.Viewer) bool {
		sv, ok := v.(*entity.SimpleViewer)
		return ok && sv.HasRole("admin")
	}

	tests := []struct {
		name string
		rule Rule
		in   Input
		want Decision
	}{
		{"deny anonymous", DenyIfNoViewer(), readInput(anon), DecisionDeny},
		{"skip known viewer", DenyIfNoViewer(), readInput(other), DecisionSkip},
		{"admin allowed", AllowIfViewerIs(isAdmin), readInput(owner), DecisionAllow},
		{"non admin skipped", AllowIfViewerIs(isAdmin), readInput(other), DecisionSkip},
		{"owner allowed", AllowIfFieldEqualsViewer("owner_id"), readInput(owner), DecisionAllow},
		{"non owner skipped", AllowIfFieldEqualsViewer("owner_id"), readInput(other), DecisionSkip},
		{"anonymous owner check skipped", AllowIfFieldEqualsViewer("owner_id"), readInput(anon), DecisionSkip},
		{"cascade from org", AllowIfCascadeFrom("org"), Input{Viewer: other, Cause: cascade}, DecisionAllow},
		{"cascade from other kind", AllowIfCascadeFrom("team"), Input{Viewer: other, Cause: cascade}, DecisionSkip},
		{"direct edit not cascade", AllowIfCascadeFrom("org"), readInput(other), DecisionSkip},
		{"deny cascading", DenyIfCascading(), Input{Viewer: other, Cause: cascade}, DecisionDeny},
		{"any allows", Any(AlwaysDeny(), AlwaysAllow()), readInput(other), DecisionAllow},
		{"any skips", Any(AlwaysDeny(), DenyIfNoViewer()), readInput(other), DecisionSkip},
		{"all allows", All(AlwaysAllow(), AllowIfFieldEqualsViewer("owner_id")), readInput(owner), DecisionAllow},
		{"all skips", All(AlwaysAllow(), AllowIfFieldEqualsViewer("owner_id")), readInput(other), DecisionSkip},
		{"all denies", All(AlwaysAllow(), AlwaysDeny()), readInput(owner), DecisionDeny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(tt.rule.Eval(ctx, tt.in))
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
