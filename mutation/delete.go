package mutation

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/loader"
	"github.com/goliatone/go-entity/privacy"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/store"
)

// Deleter builds one delete mutation of an existing entity.
type Deleter struct {
	m        *Mutator
	vc       *entity.ViewerContext
	existing entity.Entity
	qc       *store.QueryContext
}

// Delete starts a deletion of existing on behalf of vc.
func (m *Mutator) Delete(vc *entity.ViewerContext, existing entity.Entity) *Deleter {
	return &Deleter{m: m, vc: vc, existing: existing}
}

// WithQueryContext runs the mutation in qc, joining its transaction.
func (d *Deleter) WithQueryContext(qc *store.QueryContext) *Deleter {
	d.qc = qc
	return d
}

// Delete deletes the entity and applies the edge deletion behavior of every
// entity referencing it. Nothing is written unless every consequence is
// authorized.
func (d *Deleter) Delete(ctx context.Context) error {
	processed := xsync.NewMapOf[string, struct{}]()
	qc := d.m.queryContext(d.qc)
	err := qc.RunInNestedTransaction(ctx, func(ctx context.Context, tqc *store.QueryContext) error {
		return d.m.deleteEntity(ctx, tqc, d.vc, d.existing, nil, processed, false)
	})
	if err != nil {
		return err
	}

	d.m.logger.DebugContext(ctx, "entity deleted",
		"kind", d.existing.Kind(),
		"id", d.existing.ID(),
		"entities", processed.Size(),
	)
	return nil
}

// DeleteRaw is Delete returning authorization failures as the result. The
// result holds the deleted entity on success.
func (d *Deleter) DeleteRaw(ctx context.Context) (loader.Result, error) {
	if err := d.Delete(ctx); err != nil {
		return raw(nil, err)
	}
	return loader.Result{Entity: d.existing}, nil
}

// deleteEntity deletes ent inside the transaction of qc. Referencing
// entities are handled before ent's own triggers and write. With
// skipWrite the store removes the row itself through its foreign key action.
func (m *Mutator) deleteEntity(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, ent entity.Entity, cause *entity.CascadingDeletionCause, processed *xsync.MapOf[string, struct{}], skipWrite bool) error {
	if _, seen := processed.LoadOrStore(ent.UniqueIdentifier(), struct{}{}); seen {
		return nil
	}

	cfg, err := m.config(ent.Kind())
	if err != nil {
		return err
	}
	mu := &mutation{
		cfg:      cfg,
		vc:       vc,
		info:     entity.MutationInfo{Type: entity.MutationDelete, Cause: cause},
		fields:   ent.Fields(),
		previous: ent,
	}

	err = privacy.Authorize(ctx, cfg.Policy, privacy.Input{
		Viewer:       vc,
		Entity:       ent,
		Action:       mu.action(),
		Cause:        cause,
		QueryContext: qc,
	})
	if err != nil {
		return err
	}
	if err := m.runValidators(ctx, qc, mu, ent); err != nil {
		return err
	}

	childCause := entity.NewCascadingDeletionCause(ent, cause)
	for _, edge := range m.loader.Registry().InboundEdges(cfg.Kind) {
		children, err := m.inboundEdgeEntities(ctx, qc, vc, ent, edge, childCause, false)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := m.applyEdgeDeletion(ctx, qc, vc, edge, child, childCause, processed); err != nil {
				return err
			}
		}
	}

	if err := m.runBeforeTriggers(ctx, qc, mu, ent); err != nil {
		return err
	}
	if !skipWrite {
		_, err := m.loader.Adapter().Delete(ctx, qc, cfg.Table, cfg.Column(cfg.IDField), ent.ID())
		if err != nil {
			return err
		}
	}
	if err := m.invalidate(ctx, qc, cfg.Kind, mu.fields); err != nil {
		return err
	}
	if err := m.runAfterTriggers(ctx, qc, mu, ent); err != nil {
		return err
	}
	m.scheduleAfterCommit(ctx, qc, mu, ent)
	return nil
}

func (m *Mutator) applyEdgeDeletion(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, edge schema.InboundEdge, child entity.Entity, cause *entity.CascadingDeletionCause, processed *xsync.MapOf[string, struct{}]) error {
	switch edge.Association().OnDelete {
	case schema.CascadeDelete:
		return m.deleteEntity(ctx, qc, vc, child, cause, processed, false)
	case schema.CascadeDeleteInvalidateCacheOnly:
		return m.deleteEntity(ctx, qc, vc, child, cause, processed, true)
	case schema.SetNull:
		_, err := m.Update(vc, child).
			Set(edge.Field.Name, nil).
			WithQueryContext(qc).
			withCause(cause).
			Update(ctx)
		return err
	case schema.SetNullInvalidateCacheOnly:
		return m.invalidate(ctx, qc, edge.Kind, child.Fields())
	default:
		return nil
	}
}
