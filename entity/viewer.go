package entity

import (
	"context"
	"slices"
)

// Viewer is the identity on whose behalf entities are read and written.
type Viewer interface {
	ViewerID() string
}

// SimpleViewer is a basic Viewer carrying an ID and roles.
type SimpleViewer struct {
	ID    string
	Roles []string
}

func (v *SimpleViewer) ViewerID() string { return v.ID }

// HasRole reports whether the viewer carries role.
func (v *SimpleViewer) HasRole(role string) bool {
	return slices.Contains(v.Roles, role)
}

// EvaluationMode controls what a DENY decision does for a viewer.
type EvaluationMode int

const (
	// Enforce returns the denial.
	Enforce EvaluationMode = iota
	// DryRun reports the denial to the DenyHandler and lets the call succeed.
	DryRun
	// EnforceAndLog reports the denial to the DenyHandler and still returns it.
	EnforceAndLog
)

func (m EvaluationMode) String() string {
	switch m {
	case Enforce:
		return "enforce"
	case DryRun:
		return "dry_run"
	case EnforceAndLog:
		return "enforce_and_log"
	default:
		return "unknown"
	}
}

// DenyHandler receives denials in DryRun and EnforceAndLog modes.
type DenyHandler func(ctx context.Context, err *NotAuthorizedError)

// ViewerContext bundles a viewer with its privacy evaluation settings.
type ViewerContext struct {
	viewer Viewer
	mode   EvaluationMode
	onDeny DenyHandler
}

// ViewerOption configures a ViewerContext.
type ViewerOption func(*ViewerContext)

// WithEvaluationMode sets the privacy evaluation mode and the handler notified
// of denials in non-enforcing modes.
func WithEvaluationMode(mode EvaluationMode, onDeny DenyHandler) ViewerOption {
	return func(vc *ViewerContext) {
		vc.mode = mode
		vc.onDeny = onDeny
	}
}

// NewViewerContext creates a ViewerContext. A nil viewer is anonymous.
func NewViewerContext(viewer Viewer, opts ...ViewerOption) *ViewerContext {
	vc := &ViewerContext{viewer: viewer, mode: Enforce}
	for _, opt := range opts {
		opt(vc)
	}
	return vc
}

// Viewer returns the viewer, nil for anonymous contexts.
func (vc *ViewerContext) Viewer() Viewer {
	if vc == nil {
		return nil
	}
	return vc.viewer
}

// ViewerID returns the viewer ID and false for anonymous contexts.
func (vc *ViewerContext) ViewerID() (string, bool) {
	v := vc.Viewer()
	if v == nil {
		return "", false
	}
	return v.ViewerID(), true
}

func (vc *ViewerContext) EvaluationMode() EvaluationMode {
	if vc == nil {
		return Enforce
	}
	return vc.mode
}

func (vc *ViewerContext) DenyHandler() DenyHandler {
	if vc == nil {
		return nil
	}
	return vc.onDeny
}
