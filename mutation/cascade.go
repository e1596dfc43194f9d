package mutation

import (
	"context"
	"errors"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/loader"
	"github.com/goliatone/go-entity/privacy"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/store"
)

// CascadeResult is the outcome of a deletion check. Errors holds the
// denials collected before the check stopped.
type CascadeResult struct {
	Allowed bool
	Errors  []*entity.NotAuthorizedError
}

// Err joins the denials, nil when the deletion is allowed.
func (r CascadeResult) Err() error {
	if r.Allowed {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// inboundEdgeEntities loads the entities whose edge field references ent.
// With representative set it loads at most one of them. Read denials are
// returned as errors.
func (m *Mutator) inboundEdgeEntities(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, ent entity.Entity, edge schema.InboundEdge, cause *entity.CascadingDeletionCause, representative bool) ([]entity.Entity, error) {
	value := ent.Field(m.loader.Registry().ReferencedField(edge.Association()))
	if value == nil {
		return nil, nil
	}

	k := m.loader.For(vc, edge.Kind).WithQueryContext(qc).WithCascadeCause(cause)
	if representative {
		return k.LoadManyByFieldEquality(ctx,
			[]loader.FieldEquality{{Field: edge.Field.Name, Values: []any{value}}},
			loader.QueryOptions{Limit: 1},
		)
	}

	byValue, err := k.LoadManyByField(ctx, edge.Field.Name, []any{value})
	if err != nil {
		return nil, err
	}
	var out []entity.Entity
	for _, ents := range byValue {
		out = append(out, ents...)
	}
	return out, nil
}

type cascadeCheck struct {
	m         *Mutator
	vc        *entity.ViewerContext
	qc        *store.QueryContext
	processed *xsync.MapOf[string, struct{}]

	mu      sync.Mutex
	denials []*entity.NotAuthorizedError
}

func (c *cascadeCheck) record(err error) error {
	var denied *entity.NotAuthorizedError
	if errors.As(err, &denied) {
		c.mu.Lock()
		c.denials = append(c.denials, denied)
		c.mu.Unlock()
	}
	return err
}

func (c *cascadeCheck) checkDelete(ctx context.Context, ent entity.Entity, cause *entity.CascadingDeletionCause) error {
	if _, seen := c.processed.LoadOrStore(ent.UniqueIdentifier(), struct{}{}); seen {
		return nil
	}

	cfg, err := c.m.config(ent.Kind())
	if err != nil {
		return err
	}
	err = privacy.Authorize(ctx, cfg.Policy, privacy.Input{
		Viewer:       c.vc,
		Entity:       ent,
		Action:       entity.ActionDelete,
		Cause:        cause,
		QueryContext: c.qc,
	})
	if err != nil {
		return c.record(err)
	}

	childCause := entity.NewCascadingDeletionCause(ent, cause)
	g, gctx := errgroup.WithContext(ctx)
	for _, edge := range c.m.loader.Registry().InboundEdges(cfg.Kind) {
		g.Go(func() error {
			return c.checkEdge(gctx, ent, edge, childCause)
		})
	}
	return g.Wait()
}

func (c *cascadeCheck) checkEdge(ctx context.Context, ent entity.Entity, edge schema.InboundEdge, cause *entity.CascadingDeletionCause) error {
	assoc := edge.Association()
	children, err := c.m.inboundEdgeEntities(ctx, c.qc, c.vc, ent, edge, cause, assoc.Inference == schema.OneImpliesAll)
	if err != nil {
		return c.record(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range children {
		g.Go(func() error {
			if assoc.OnDelete.IsCascadeDelete() {
				return c.checkDelete(gctx, child, cause)
			}
			return c.checkSetNull(gctx, child, edge.Field.Name, cause)
		})
	}
	return g.Wait()
}

// checkSetNull authorizes an update of child with field cleared.
func (c *cascadeCheck) checkSetNull(ctx context.Context, child entity.Entity, field string, cause *entity.CascadingDeletionCause) error {
	cfg, err := c.m.config(child.Kind())
	if err != nil {
		return err
	}
	candidate, err := cfg.Construct(c.vc, child.Fields().With(field, nil))
	if err != nil {
		return err
	}
	err = privacy.Authorize(ctx, cfg.Policy, privacy.Input{
		Viewer:       c.vc,
		Entity:       candidate,
		Action:       entity.ActionUpdate,
		Previous:     child,
		Cause:        cause,
		QueryContext: c.qc,
	})
	return c.record(err)
}

// enforcing returns a context for vc that always enforces denials, so checks
// report the decision the policy actually makes.
func enforcing(vc *entity.ViewerContext) *entity.ViewerContext {
	if vc.EvaluationMode() == entity.Enforce {
		return vc
	}
	return entity.NewViewerContext(vc.Viewer())
}

// CanViewerDeleteResult reports whether vc may delete ent together with
// every consequence of the deletion. Nothing is written. Edges declared
// OneImpliesAll are checked through a single representative.
func (m *Mutator) CanViewerDeleteResult(ctx context.Context, vc *entity.ViewerContext, ent entity.Entity) (CascadeResult, error) {
	c := &cascadeCheck{
		m:         m,
		vc:        enforcing(vc),
		qc:        m.loader.NewQueryContext(),
		processed: xsync.NewMapOf[string, struct{}](),
	}

	err := c.checkDelete(ctx, ent, nil)
	switch {
	case err == nil:
		return CascadeResult{Allowed: true}, nil
	case entity.IsNotAuthorized(err):
		c.mu.Lock()
		defer c.mu.Unlock()
		return CascadeResult{Errors: append([]*entity.NotAuthorizedError(nil), c.denials...)}, nil
	default:
		return CascadeResult{}, err
	}
}

// CanViewerDelete is CanViewerDeleteResult reduced to its decision.
func (m *Mutator) CanViewerDelete(ctx context.Context, vc *entity.ViewerContext, ent entity.Entity) (bool, error) {
	res, err := m.CanViewerDeleteResult(ctx, vc, ent)
	return res.Allowed, err
}

// CanViewerUpdate reports whether the update rules of ent's kind let vc
// update ent in its current state.
func (m *Mutator) CanViewerUpdate(ctx context.Context, vc *entity.ViewerContext, ent entity.Entity) (bool, error) {
	cfg, err := m.config(ent.Kind())
	if err != nil {
		return false, err
	}
	err = privacy.Authorize(ctx, cfg.Policy, privacy.Input{
		Viewer:       enforcing(vc),
		Entity:       ent,
		Action:       entity.ActionUpdate,
		Previous:     ent,
		QueryContext: m.loader.NewQueryContext(),
	})
	switch {
	case err == nil:
		return true, nil
	case entity.IsNotAuthorized(err):
		return false, nil
	default:
		return false, err
	}
}
