package loader

import (
	"context"
	"fmt"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/internal/datamanager"
	"github.com/goliatone/go-entity/loadkey"
	"github.com/goliatone/go-entity/privacy"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/store"
)

// FieldEquality matches entities whose Field equals one of Values. A nil
// value matches unset fields.
type FieldEquality struct {
	Field  string
	Values []any
}

// OrderBy sorts by a field.
type OrderBy struct {
	Field string
	Desc  bool
}

// QueryOptions bounds and orders non cached queries.
type QueryOptions struct {
	Limit   int
	Offset  int
	OrderBy []OrderBy
}

func (o QueryOptions) store() store.QueryOptions {
	out := store.QueryOptions{Limit: o.Limit, Offset: o.Offset}
	for _, ob := range o.OrderBy {
		out.OrderBy = append(out.OrderBy, store.OrderBy{Column: ob.Field, Desc: ob.Desc})
	}
	return out
}

// KindLoader loads entities of one kind for one viewer. Result maps are
// keyed by normalized values, see store.NormalizeValue.
type KindLoader struct {
	loader  *Loader
	vc      *entity.ViewerContext
	kind    string
	manager *datamanager.Manager
	qc      *store.QueryContext
	cause   *entity.CascadingDeletionCause
	err     error
}

// WithQueryContext returns a copy reading through qc, typically an open
// transaction.
func (k *KindLoader) WithQueryContext(qc *store.QueryContext) *KindLoader {
	c := *k
	c.qc = qc
	return &c
}

// WithCascadeCause returns a copy whose read checks carry cause.
func (k *KindLoader) WithCascadeCause(cause *entity.CascadingDeletionCause) *KindLoader {
	c := *k
	c.cause = cause
	return &c
}

// Config returns the kind's configuration.
func (k *KindLoader) Config() (*schema.Config, error) {
	if k.err != nil {
		return nil, k.err
	}
	return k.manager.Config(), nil
}

func (k *KindLoader) queryContext() *store.QueryContext {
	if k.qc != nil {
		return k.qc
	}
	return k.loader.NewQueryContext()
}

// materialize constructs and read authorizes one row. The returned error is
// set only for failures outside the entity error taxonomy.
func (k *KindLoader) materialize(ctx context.Context, qc *store.QueryContext, fields entity.Fields) (Result, error) {
	cfg := k.manager.Config()
	ent, err := cfg.Construct(k.vc, fields)
	if err != nil {
		return Result{Err: fmt.Errorf("construct %s: %w", k.kind, err)}, nil
	}

	err = privacy.Authorize(ctx, cfg.Policy, privacy.Input{
		Viewer:       k.vc,
		Entity:       ent,
		Action:       entity.ActionRead,
		Cause:        k.cause,
		QueryContext: qc,
	})
	switch {
	case err == nil:
		return Result{Entity: ent}, nil
	case entity.IsNotAuthorized(err):
		return Result{Err: err}, nil
	default:
		return Result{}, err
	}
}

// ConstructAndAuthorize builds an entity from a full row obtained outside
// the loader and checks it against the kind's read rules.
func (k *KindLoader) ConstructAndAuthorize(ctx context.Context, fields entity.Fields) (Result, error) {
	if k.err != nil {
		return Result{}, k.err
	}
	return k.materialize(ctx, k.queryContext(), fields)
}

func (k *KindLoader) materializeAll(ctx context.Context, qc *store.QueryContext, rows []entity.Fields) ([]Result, error) {
	out := make([]Result, 0, len(rows))
	for _, fields := range rows {
		res, err := k.materialize(ctx, qc, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (k *KindLoader) loadEqualing(ctx context.Context, key loadkey.Key, values []any) (map[any][]Result, []any, error) {
	if k.err != nil {
		return nil, nil, k.err
	}
	normalized, err := k.manager.NormalizeValues(key, values)
	if err != nil {
		return nil, nil, err
	}

	qc := k.queryContext()
	rows, err := k.manager.LoadManyEqualing(ctx, qc, key, normalized)
	if err != nil {
		return nil, nil, err
	}

	out := make(map[any][]Result, len(normalized))
	for _, v := range normalized {
		results, err := k.materializeAll(ctx, qc, rows[v])
		if err != nil {
			return nil, nil, err
		}
		out[v] = results
	}
	return out, normalized, nil
}

// loadUnique resolves each value to at most one entity. Missing values get
// a NotFoundError result.
func (k *KindLoader) loadUnique(ctx context.Context, field string, values []any) (map[any]Result, error) {
	byValue, normalized, err := k.loadEqualing(ctx, loadkey.Field(field), values)
	if err != nil {
		return nil, err
	}

	out := make(map[any]Result, len(normalized))
	for _, v := range normalized {
		results := byValue[v]
		switch len(results) {
		case 0:
			out[v] = Result{Err: entity.NewNotFoundError(k.kind, field, v)}
		case 1:
			out[v] = results[0]
		default:
			k.loader.logger.WarnContext(ctx, "unique lookup returned multiple rows, result discarded",
				"kind", k.kind,
				"field", field,
				"value", v,
				"rows", len(results),
			)
			out[v] = Result{Err: entity.NewNotFoundError(k.kind, field, v)}
		}
	}
	return out, nil
}

// LoadManyByIDsRaw loads entities by ID. Every requested ID has a result.
func (k *KindLoader) LoadManyByIDsRaw(ctx context.Context, ids []any) (map[any]Result, error) {
	if k.err != nil {
		return nil, k.err
	}
	return k.loadUnique(ctx, k.manager.Config().IDField, ids)
}

// LoadByIDRaw loads one entity by ID.
func (k *KindLoader) LoadByIDRaw(ctx context.Context, id any) (Result, error) {
	results, err := k.LoadManyByIDsRaw(ctx, []any{id})
	if err != nil {
		return Result{}, err
	}
	return single(results), nil
}

// LoadByFieldRaw loads the entity whose unique field equals value.
func (k *KindLoader) LoadByFieldRaw(ctx context.Context, field string, value any) (Result, error) {
	results, err := k.loadUnique(ctx, field, []any{value})
	if err != nil {
		return Result{}, err
	}
	return single(results), nil
}

// LoadManyByFieldRaw loads every entity whose field equals one of values.
// Values with no entities map to an empty slice.
func (k *KindLoader) LoadManyByFieldRaw(ctx context.Context, field string, values []any) (map[any][]Result, error) {
	out, _, err := k.loadEqualing(ctx, loadkey.Field(field), values)
	return out, err
}

// LoadManyByCompositeKeyRaw loads entities whose fields equal each tuple of
// values.
func (k *KindLoader) LoadManyByCompositeKeyRaw(ctx context.Context, fields []string, values [][]any) (map[loadkey.CompositeValue][]Result, error) {
	tuples := make([]any, len(values))
	for i, tuple := range values {
		tuples[i] = tuple
	}

	byValue, _, err := k.loadEqualing(ctx, loadkey.Composite(fields...), tuples)
	if err != nil {
		return nil, err
	}

	out := make(map[loadkey.CompositeValue][]Result, len(byValue))
	for v, results := range byValue {
		out[v.(loadkey.CompositeValue)] = results
	}
	return out, nil
}

// LoadManyByFieldEqualityRaw loads entities matching every condition. It
// always reads the store.
func (k *KindLoader) LoadManyByFieldEqualityRaw(ctx context.Context, conditions []FieldEquality, opts QueryOptions) ([]Result, error) {
	if k.err != nil {
		return nil, k.err
	}
	conds := make([]store.Condition, len(conditions))
	for i, c := range conditions {
		conds[i] = store.Condition{Column: c.Field, Values: c.Values}
	}

	qc := k.queryContext()
	rows, err := k.manager.LoadManyByFieldEquality(ctx, qc, conds, opts.store())
	if err != nil {
		return nil, err
	}
	return k.materializeAll(ctx, qc, rows)
}

// LoadManyByRawWhereRaw passes where and args to the store. It always reads
// the store.
func (k *KindLoader) LoadManyByRawWhereRaw(ctx context.Context, where string, args []any, opts QueryOptions) ([]Result, error) {
	if k.err != nil {
		return nil, k.err
	}
	qc := k.queryContext()
	rows, err := k.manager.LoadManyByRawWhere(ctx, qc, where, args, opts.store())
	if err != nil {
		return nil, err
	}
	return k.materializeAll(ctx, qc, rows)
}

func single(results map[any]Result) Result {
	for _, r := range results {
		return r
	}
	return Result{}
}
