package testsupport

import (
	"context"
	"sync"

	"github.com/goliatone/go-entity/entity"
)

// Viewer returns an enforcing viewer context for id.
func Viewer(id string, roles ...string) *entity.ViewerContext {
	return entity.NewViewerContext(&entity.SimpleViewer{ID: id, Roles: roles})
}

// Anonymous returns a viewer context without a viewer.
func Anonymous() *entity.ViewerContext {
	return entity.NewViewerContext(nil)
}

// DenialRecorder collects denials reported in non enforcing evaluation
// modes.
type DenialRecorder struct {
	mu      sync.Mutex
	denials []*entity.NotAuthorizedError
}

// Handle implements entity.DenyHandler.
func (r *DenialRecorder) Handle(_ context.Context, err *entity.NotAuthorizedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denials = append(r.denials, err)
}

// Denials returns the recorded denials.
func (r *DenialRecorder) Denials() []*entity.NotAuthorizedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.NotAuthorizedError(nil), r.denials...)
}

// RecordingViewer returns a viewer context for id evaluating in mode and
// the recorder its denials go to.
func RecordingViewer(id string, mode entity.EvaluationMode) (*entity.ViewerContext, *DenialRecorder) {
	rec := &DenialRecorder{}
	vc := entity.NewViewerContext(&entity.SimpleViewer{ID: id}, entity.WithEvaluationMode(mode, rec.Handle))
	return vc, rec
}
