// Package mutation creates, updates and deletes entities.
//
// Every mutation follows the same pipeline: field validation, a provisional
// entity, authorization against the kind's policy, mutation validators,
// before triggers, the store write, cache invalidation, a reload through the
// loader and after triggers. The write and the before and after triggers
// share one transaction. AfterCommit triggers run once the outermost
// transaction has committed.
//
// Deleting an entity also applies the declared edge deletion behavior of
// every entity referencing it. CanViewerDelete runs the same traversal
// without writing.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/loader"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/store"
)

// Mutator writes entities of every registered kind.
type Mutator struct {
	loader *loader.Loader
	logger *slog.Logger
}

// Option configures a Mutator.
type Option func(*Mutator)

// WithLogger sets the logger. It defaults to the loader's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mutator) {
		m.logger = logger
	}
}

// New creates a Mutator writing through l's store adapter and reloading
// written entities with l.
func New(l *loader.Loader, opts ...Option) *Mutator {
	m := &Mutator{loader: l, logger: l.Logger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Loader returns the loader written entities are reloaded with.
func (m *Mutator) Loader() *loader.Loader { return m.loader }

func (m *Mutator) config(kind string) (*schema.Config, error) {
	return m.loader.Registry().Get(kind)
}

func (m *Mutator) queryContext(qc *store.QueryContext) *store.QueryContext {
	if qc != nil {
		return qc
	}
	return m.loader.NewQueryContext()
}

// mutation is the state shared by the pipeline steps of one write.
type mutation struct {
	cfg      *schema.Config
	vc       *entity.ViewerContext
	info     entity.MutationInfo
	fields   entity.Fields
	previous entity.Entity
}

func (mu *mutation) action() entity.Action {
	switch mu.info.Type {
	case entity.MutationUpdate:
		return entity.ActionUpdate
	case entity.MutationDelete:
		return entity.ActionDelete
	default:
		return entity.ActionCreate
	}
}

// checkDeclared rejects fields the kind does not declare.
func checkDeclared(cfg *schema.Config, fields entity.Fields) error {
	errs := validation.Errors{}
	for name := range fields {
		if !cfg.HasField(name) {
			errs[name] = errors.New("unknown field")
		}
	}
	if len(errs) > 0 {
		return entity.NewInvalidFieldValueError(cfg.Kind, errs)
	}
	return nil
}

func (m *Mutator) runValidators(ctx context.Context, qc *store.QueryContext, mu *mutation, ent entity.Entity) error {
	for _, v := range mu.cfg.Validators {
		if err := v.Validate(ctx, qc, mu.vc, ent, mu.info); err != nil {
			return err
		}
	}
	return nil
}

// runSlot runs the triggers of slot concurrently and returns the first
// failure.
func runSlot(ctx context.Context, cfg *schema.Config, slot schema.Slot, qc *store.QueryContext, vc *entity.ViewerContext, ent entity.Entity, info entity.MutationInfo) error {
	triggers := cfg.Triggers.Get(slot)
	if len(triggers) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range triggers {
		g.Go(func() error {
			return t.Execute(gctx, qc, vc, ent, info)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s %s trigger: %w", cfg.Kind, slot, err)
	}
	return nil
}

func (m *Mutator) runBeforeTriggers(ctx context.Context, qc *store.QueryContext, mu *mutation, ent entity.Entity) error {
	if err := runSlot(ctx, mu.cfg, schema.BeforeAll, qc, mu.vc, ent, mu.info); err != nil {
		return err
	}
	return runSlot(ctx, mu.cfg, schema.BeforeSlot(mu.info.Type), qc, mu.vc, ent, mu.info)
}

func (m *Mutator) runAfterTriggers(ctx context.Context, qc *store.QueryContext, mu *mutation, ent entity.Entity) error {
	if err := runSlot(ctx, mu.cfg, schema.AfterSlot(mu.info.Type), qc, mu.vc, ent, mu.info); err != nil {
		return err
	}
	return runSlot(ctx, mu.cfg, schema.AfterAll, qc, mu.vc, ent, mu.info)
}

// scheduleAfterCommit runs the AfterCommit triggers once the outermost
// transaction of qc commits. Failures are logged by the query context.
func (m *Mutator) scheduleAfterCommit(ctx context.Context, qc *store.QueryContext, mu *mutation, ent entity.Entity) {
	if len(mu.cfg.Triggers.Get(schema.AfterCommit)) == 0 {
		return
	}
	qc.AppendPostCommitCallback(ctx, func(ctx context.Context) error {
		return runSlot(ctx, mu.cfg, schema.AfterCommit, m.loader.NewQueryContext(), mu.vc, ent, mu.info)
	})
}

// invalidate drops the cache entries of rows now and again after the
// outermost commit, so readers outside the transaction never cache a row
// that is about to change.
func (m *Mutator) invalidate(ctx context.Context, qc *store.QueryContext, kind string, rows ...entity.Fields) error {
	if err := m.loader.Invalidate(ctx, kind, rows...); err != nil {
		return err
	}
	qc.AppendPostCommitInvalidationCallback(ctx, m.loader.InvalidateCallback(kind, rows...))
	return nil
}

// reload reads the written entity back through qc with the viewer's read
// rules.
func (m *Mutator) reload(ctx context.Context, qc *store.QueryContext, mu *mutation, id any) (entity.Entity, error) {
	res, err := m.loader.For(mu.vc, mu.cfg.Kind).
		WithQueryContext(qc).
		WithCascadeCause(mu.info.Cause).
		LoadByIDRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Entity, nil
}

func (m *Mutator) newID(cfg *schema.Config) any {
	if cfg.IDGenerator != nil {
		return cfg.IDGenerator()
	}
	return uuid.NewString()
}

// raw converts expected outcomes into a result.
func raw(ent entity.Entity, err error) (loader.Result, error) {
	if err != nil {
		if entity.IsExpected(err) {
			return loader.Result{Err: err}, nil
		}
		return loader.Result{}, err
	}
	return loader.Result{Entity: ent}, nil
}
