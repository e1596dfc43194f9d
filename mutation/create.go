package mutation

import (
	"context"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/loader"
	"github.com/goliatone/go-entity/privacy"
	"github.com/goliatone/go-entity/store"
)

// Creator builds one create mutation.
type Creator struct {
	m      *Mutator
	vc     *entity.ViewerContext
	kind   string
	fields entity.Fields
	qc     *store.QueryContext
}

// Create starts a create mutation of kind on behalf of vc.
func (m *Mutator) Create(vc *entity.ViewerContext, kind string) *Creator {
	return &Creator{m: m, vc: vc, kind: kind, fields: entity.Fields{}}
}

// Set sets one field.
func (c *Creator) Set(field string, value any) *Creator {
	c.fields[field] = value
	return c
}

// SetFields sets every field in fields.
func (c *Creator) SetFields(fields entity.Fields) *Creator {
	for k, v := range fields {
		c.fields[k] = v
	}
	return c
}

// WithQueryContext runs the mutation in qc, joining its transaction.
func (c *Creator) WithQueryContext(qc *store.QueryContext) *Creator {
	c.qc = qc
	return c
}

// Create writes the entity and returns it as the viewer reads it back.
func (c *Creator) Create(ctx context.Context) (entity.Entity, error) {
	return c.m.create(ctx, c.qc, c.vc, c.kind, c.fields.Clone())
}

// CreateRaw is Create returning authorization, validation and reload
// failures as the result.
func (c *Creator) CreateRaw(ctx context.Context) (loader.Result, error) {
	return raw(c.Create(ctx))
}

// CreateOrGet creates the entity or, when a row with the same value of the
// unique field already exists, loads that row instead.
func (c *Creator) CreateOrGet(ctx context.Context, field string) (entity.Entity, error) {
	ent, err := c.Create(ctx)
	if err == nil || !entity.IsUniqueViolation(err) {
		return ent, err
	}

	c.m.logger.DebugContext(ctx, "create hit unique violation, loading existing",
		"kind", c.kind,
		"field", field,
	)
	k := c.m.loader.For(c.vc, c.kind)
	if c.qc != nil {
		k = k.WithQueryContext(c.qc)
	}
	return k.LoadByField(ctx, field, c.fields.Get(field))
}

func (m *Mutator) create(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, kind string, fields entity.Fields) (entity.Entity, error) {
	cfg, err := m.config(kind)
	if err != nil {
		return nil, err
	}
	if err := checkDeclared(cfg, fields); err != nil {
		return nil, err
	}
	if fields.Get(cfg.IDField) == nil {
		fields[cfg.IDField] = m.newID(cfg)
	}

	full := fields.Clone()
	for _, name := range cfg.FieldNames() {
		if !full.Has(name) {
			full[name] = nil
		}
	}
	if err := cfg.ValidateFields(ctx, full); err != nil {
		return nil, err
	}

	mu := &mutation{cfg: cfg, vc: vc, info: entity.MutationInfo{Type: entity.MutationCreate}, fields: fields}
	provisional, err := cfg.Construct(vc, full)
	if err != nil {
		return nil, err
	}

	qc = m.queryContext(qc)
	err = privacy.Authorize(ctx, cfg.Policy, privacy.Input{
		Viewer:       vc,
		Entity:       provisional,
		Action:       mu.action(),
		QueryContext: qc,
	})
	if err != nil {
		return nil, err
	}

	var created entity.Entity
	err = qc.RunInNestedTransaction(ctx, func(ctx context.Context, tqc *store.QueryContext) error {
		if err := m.runValidators(ctx, tqc, mu, provisional); err != nil {
			return err
		}
		if err := m.runBeforeTriggers(ctx, tqc, mu, provisional); err != nil {
			return err
		}

		if err := m.loader.Adapter().Insert(ctx, tqc, cfg.Table, cfg.ToRow(fields)); err != nil {
			return err
		}
		if err := m.invalidate(ctx, tqc, kind, full); err != nil {
			return err
		}

		ent, err := m.reload(ctx, tqc, mu, fields.Get(cfg.IDField))
		if err != nil {
			return err
		}
		if err := m.runAfterTriggers(ctx, tqc, mu, ent); err != nil {
			return err
		}
		m.scheduleAfterCommit(ctx, tqc, mu, ent)
		created = ent
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.DebugContext(ctx, "entity created", "kind", kind, "id", created.ID())
	return created, nil
}
