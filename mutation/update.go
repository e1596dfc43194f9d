package mutation

import (
	"context"
	"errors"
	"reflect"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/loader"
	"github.com/goliatone/go-entity/privacy"
	"github.com/goliatone/go-entity/store"
)

// Updater builds one update mutation of an existing entity.
type Updater struct {
	m        *Mutator
	vc       *entity.ViewerContext
	existing entity.Entity
	changes  entity.Fields
	qc       *store.QueryContext
	cause    *entity.CascadingDeletionCause
}

// Update starts an update of existing on behalf of vc.
func (m *Mutator) Update(vc *entity.ViewerContext, existing entity.Entity) *Updater {
	return &Updater{m: m, vc: vc, existing: existing, changes: entity.Fields{}}
}

// Set sets one field.
func (u *Updater) Set(field string, value any) *Updater {
	u.changes[field] = value
	return u
}

// SetFields sets every field in fields.
func (u *Updater) SetFields(fields entity.Fields) *Updater {
	for k, v := range fields {
		u.changes[k] = v
	}
	return u
}

// WithQueryContext runs the mutation in qc, joining its transaction.
func (u *Updater) WithQueryContext(qc *store.QueryContext) *Updater {
	u.qc = qc
	return u
}

func (u *Updater) withCause(cause *entity.CascadingDeletionCause) *Updater {
	u.cause = cause
	return u
}

// Update writes the changed fields and returns the entity as the viewer
// reads it back.
func (u *Updater) Update(ctx context.Context) (entity.Entity, error) {
	return u.m.update(ctx, u.qc, u.vc, u.existing, u.changes.Clone(), u.cause)
}

// UpdateRaw is Update returning authorization, validation and reload
// failures as the result.
func (u *Updater) UpdateRaw(ctx context.Context) (loader.Result, error) {
	return raw(u.Update(ctx))
}

func (m *Mutator) update(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, existing entity.Entity, changes entity.Fields, cause *entity.CascadingDeletionCause) (entity.Entity, error) {
	cfg, err := m.config(existing.Kind())
	if err != nil {
		return nil, err
	}
	if err := checkDeclared(cfg, changes); err != nil {
		return nil, err
	}
	if v, ok := changes[cfg.IDField]; ok && !sameValue(v, existing.ID()) {
		return nil, entity.NewInvalidFieldValueError(cfg.Kind, validation.Errors{
			cfg.IDField: errors.New("cannot be changed"),
		})
	}
	if err := cfg.ValidateFields(ctx, changes); err != nil {
		return nil, err
	}

	previousFields := existing.Fields()
	merged := previousFields.Merge(changes)
	mu := &mutation{
		cfg:      cfg,
		vc:       vc,
		info:     entity.MutationInfo{Type: entity.MutationUpdate, Previous: existing, Cause: cause},
		fields:   merged,
		previous: existing,
	}
	provisional, err := cfg.Construct(vc, merged)
	if err != nil {
		return nil, err
	}

	qc = m.queryContext(qc)
	err = privacy.Authorize(ctx, cfg.Policy, privacy.Input{
		Viewer:       vc,
		Entity:       provisional,
		Action:       mu.action(),
		Previous:     existing,
		Cause:        cause,
		QueryContext: qc,
	})
	if err != nil {
		return nil, err
	}

	changed := entity.Fields{}
	for k, v := range changes {
		if !sameValue(v, previousFields.Get(k)) {
			changed[k] = v
		}
	}

	var updated entity.Entity
	err = qc.RunInNestedTransaction(ctx, func(ctx context.Context, tqc *store.QueryContext) error {
		if err := m.runValidators(ctx, tqc, mu, provisional); err != nil {
			return err
		}
		if err := m.runBeforeTriggers(ctx, tqc, mu, provisional); err != nil {
			return err
		}

		if len(changed) > 0 {
			err := m.loader.Adapter().Update(ctx, tqc, cfg.Table, cfg.Column(cfg.IDField), existing.ID(), cfg.ToRow(changed))
			if err != nil {
				return err
			}
		}
		if err := m.invalidate(ctx, tqc, cfg.Kind, previousFields, merged); err != nil {
			return err
		}

		ent, err := m.reload(ctx, tqc, mu, existing.ID())
		if err != nil {
			return err
		}
		if err := m.runAfterTriggers(ctx, tqc, mu, ent); err != nil {
			return err
		}
		m.scheduleAfterCommit(ctx, tqc, mu, ent)
		updated = ent
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.DebugContext(ctx, "entity updated",
		"kind", cfg.Kind,
		"id", updated.ID(),
		"changed", len(changed),
	)
	return updated, nil
}

func sameValue(a, b any) bool {
	return reflect.DeepEqual(store.NormalizeValue(a), store.NormalizeValue(b))
}
