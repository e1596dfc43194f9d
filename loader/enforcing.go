package loader

import (
	"context"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/loadkey"
	"github.com/goliatone/go-entity/store"
)

// LoadByID loads one entity by ID.
func (k *KindLoader) LoadByID(ctx context.Context, id any) (entity.Entity, error) {
	res, err := k.LoadByIDRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	return res.Entity, res.Err
}

// LoadByIDNullable is LoadByID returning nil instead of a NotFoundError.
func (k *KindLoader) LoadByIDNullable(ctx context.Context, id any) (entity.Entity, error) {
	ent, err := k.LoadByID(ctx, id)
	if entity.IsNotFound(err) {
		return nil, nil
	}
	return ent, err
}

// LoadManyByIDs loads entities by ID and fails with the error of the first
// ID, in input order, that cannot be returned.
func (k *KindLoader) LoadManyByIDs(ctx context.Context, ids []any) (map[any]entity.Entity, error) {
	results, err := k.LoadManyByIDsRaw(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[any]entity.Entity, len(results))
	for _, id := range ids {
		nid := store.NormalizeValue(id)
		res, ok := results[nid]
		if !ok {
			continue
		}
		if res.Err != nil {
			return nil, res.Err
		}
		out[nid] = res.Entity
	}
	return out, nil
}

// LoadByField loads the entity whose unique field equals value.
func (k *KindLoader) LoadByField(ctx context.Context, field string, value any) (entity.Entity, error) {
	res, err := k.LoadByFieldRaw(ctx, field, value)
	if err != nil {
		return nil, err
	}
	return res.Entity, res.Err
}

// LoadByFieldNullable is LoadByField returning nil instead of a
// NotFoundError.
func (k *KindLoader) LoadByFieldNullable(ctx context.Context, field string, value any) (entity.Entity, error) {
	ent, err := k.LoadByField(ctx, field, value)
	if entity.IsNotFound(err) {
		return nil, nil
	}
	return ent, err
}

// LoadManyByField loads every entity whose field equals one of values.
func (k *KindLoader) LoadManyByField(ctx context.Context, field string, values []any) (map[any][]entity.Entity, error) {
	results, err := k.LoadManyByFieldRaw(ctx, field, values)
	if err != nil {
		return nil, err
	}
	out := make(map[any][]entity.Entity, len(results))
	for v, rs := range results {
		ents, err := enforce(rs)
		if err != nil {
			return nil, err
		}
		out[v] = ents
	}
	return out, nil
}

// LoadManyByCompositeKey loads entities whose fields equal each tuple of
// values.
func (k *KindLoader) LoadManyByCompositeKey(ctx context.Context, fields []string, values [][]any) (map[loadkey.CompositeValue][]entity.Entity, error) {
	results, err := k.LoadManyByCompositeKeyRaw(ctx, fields, values)
	if err != nil {
		return nil, err
	}
	out := make(map[loadkey.CompositeValue][]entity.Entity, len(results))
	for v, rs := range results {
		ents, err := enforce(rs)
		if err != nil {
			return nil, err
		}
		out[v] = ents
	}
	return out, nil
}

// LoadManyByFieldEquality loads entities matching every condition.
func (k *KindLoader) LoadManyByFieldEquality(ctx context.Context, conditions []FieldEquality, opts QueryOptions) ([]entity.Entity, error) {
	results, err := k.LoadManyByFieldEqualityRaw(ctx, conditions, opts)
	if err != nil {
		return nil, err
	}
	return enforce(results)
}

// LoadManyByRawWhere passes where and args to the store.
func (k *KindLoader) LoadManyByRawWhere(ctx context.Context, where string, args []any, opts QueryOptions) ([]entity.Entity, error) {
	results, err := k.LoadManyByRawWhereRaw(ctx, where, args, opts)
	if err != nil {
		return nil, err
	}
	return enforce(results)
}

func enforce(results []Result) ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			return nil, res.Err
		}
		out = append(out, res.Entity)
	}
	return out, nil
}
