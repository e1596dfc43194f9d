package entity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func TestFields_CloneIsIndependent(t *testing.T) {
	original := Fields{"id": "1", "name": "a"}
	clone := original.Clone()
	clone["name"] = "b"

	if original["name"] != "a" {
		t.Errorf("expected original to be untouched, got %v", original["name"])
	}

	with := original.With("name", "c")
	if original["name"] != "a" || with["name"] != "c" {
		t.Errorf("With must copy, got original=%v with=%v", original["name"], with["name"])
	}

	merged := original.Merge(Fields{"name": nil, "extra": 1})
	if !merged.Has("name") || merged.Get("name") != nil || merged.Get("extra") != 1 {
		t.Errorf("unexpected merge result: %v", merged)
	}
}

func TestBase_Accessors(t *testing.T) {
	vc := NewViewerContext(&SimpleViewer{ID: "v1"})
	b := NewBase("user", "id", vc, Fields{"id": "u1", "email": "x@y.z"})

	if b.Kind() != "user" || b.ID() != "u1" {
		t.Fatalf("unexpected kind/id: %s %v", b.Kind(), b.ID())
	}
	if b.UniqueIdentifier() != "user:u1" {
		t.Errorf("unexpected unique identifier %q", b.UniqueIdentifier())
	}
	if b.Field("email") != "x@y.z" {
		t.Errorf("unexpected email %v", b.Field("email"))
	}
	if id, ok := b.ViewerContext().ViewerID(); !ok || id != "v1" {
		t.Errorf("unexpected viewer id %q %v", id, ok)
	}

	f := b.Fields()
	f["email"] = "changed"
	if b.Field("email") != "x@y.z" {
		t.Error("Fields must return a copy")
	}
}

func TestViewerContext_Defaults(t *testing.T) {
	var nilVC *ViewerContext
	if nilVC.EvaluationMode() != Enforce {
		t.Error("nil viewer context must enforce")
	}
	if _, ok := nilVC.ViewerID(); ok {
		t.Error("nil viewer context must be anonymous")
	}

	called := false
	vc := NewViewerContext(nil, WithEvaluationMode(DryRun, func(context.Context, *NotAuthorizedError) {
		called = true
	}))
	if vc.EvaluationMode() != DryRun {
		t.Errorf("expected dry run, got %s", vc.EvaluationMode())
	}
	vc.DenyHandler()(context.Background(), nil)
	if !called {
		t.Error("expected deny handler to be stored")
	}
}

func TestCascadingDeletionCause(t *testing.T) {
	parent := NewBase("org", "id", nil, Fields{"id": 1})
	child := NewBase("team", "id", nil, Fields{"id": 2})

	root := NewCascadingDeletionCause(parent, nil)
	step := NewCascadingDeletionCause(child, root)

	if step.Depth() != 2 {
		t.Errorf("expected depth 2, got %d", step.Depth())
	}
	if step.Root() != root {
		t.Error("unexpected root")
	}
	if !step.Involves("org") || step.Involves("user") {
		t.Error("unexpected Involves result")
	}
	if !root.Names(parent) || root.Names(child) {
		t.Error("unexpected Names result")
	}

	var none *CascadingDeletionCause
	if none.Depth() != 0 || none.Root() != nil || none.Involves("org") {
		t.Error("nil cause must be empty")
	}
}

func TestErrors_Taxonomy(t *testing.T) {
	notFound := NewNotFoundError("user", "id", "u1")
	wrapped := fmt.Errorf("loading: %w", notFound)
	if !IsNotFound(wrapped) || !goerrors.IsNotFound(wrapped) {
		t.Error("expected wrapped not found error to be detected")
	}

	denied := NewNotAuthorizedError("user", "u1", ActionUpdate, 2, nil)
	if !IsNotAuthorized(denied) || !goerrors.HasCategory(denied, goerrors.CategoryAuthz) {
		t.Error("expected not authorized error to carry the authz category")
	}
	if denied.RuleIndex != 2 || denied.Action != ActionUpdate {
		t.Errorf("unexpected denial details %+v", denied)
	}

	invalid := NewInvalidFieldValueError("user", validation.Errors{"email": errors.New("must be a valid email address")})
	if !IsInvalidFieldValue(invalid) || !goerrors.IsValidation(invalid) {
		t.Error("expected invalid field error to carry the validation category")
	}
	if msg := invalid.FieldErrors()["email"]; msg == "" {
		t.Errorf("expected email field error, got %v", invalid.FieldErrors())
	}

	driverErr := errors.New("duplicate key")
	unique := NewStoreError(StoreErrorUniqueConstraint, "users", "users_email_key", driverErr)
	if !IsUniqueViolation(unique) || unique.IsRetryable() {
		t.Error("expected non retryable unique violation")
	}
	if !errors.Is(unique, driverErr) {
		t.Error("expected store error to keep the driver error in its chain")
	}

	transient := NewStoreError(StoreErrorTransient, "users", "", nil)
	if !IsTransient(transient) || !transient.IsRetryable() {
		t.Error("expected retryable transient error")
	}

	for _, err := range []error{notFound, denied, invalid} {
		if !IsExpected(err) {
			t.Errorf("expected %T to be an expected outcome", err)
		}
	}
	if IsExpected(unique) {
		t.Error("store errors are never expected outcomes")
	}
}
