package loader

import (
	"context"
	"fmt"

	"github.com/goliatone/go-entity/entity"
)

// Typed wraps a KindLoader and asserts the entities it returns to T, the
// type the kind's Constructor produces.
type Typed[T entity.Entity] struct {
	k *KindLoader
}

// NewTyped creates a typed facade over k.
func NewTyped[T entity.Entity](k *KindLoader) *Typed[T] {
	return &Typed[T]{k: k}
}

// Kind returns the underlying KindLoader.
func (t *Typed[T]) Kind() *KindLoader { return t.k }

func (t *Typed[T]) cast(ent entity.Entity) (T, error) {
	var zero T
	if ent == nil {
		return zero, nil
	}
	typed, ok := ent.(T)
	if !ok {
		return zero, fmt.Errorf("loader: %s entity is %T, not %T", t.k.kind, ent, zero)
	}
	return typed, nil
}

func (t *Typed[T]) LoadByID(ctx context.Context, id any) (T, error) {
	ent, err := t.k.LoadByID(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return t.cast(ent)
}

func (t *Typed[T]) LoadByIDNullable(ctx context.Context, id any) (T, bool, error) {
	var zero T
	ent, err := t.k.LoadByIDNullable(ctx, id)
	if err != nil || ent == nil {
		return zero, false, err
	}
	typed, err := t.cast(ent)
	return typed, err == nil, err
}

func (t *Typed[T]) LoadManyByIDs(ctx context.Context, ids []any) (map[any]T, error) {
	ents, err := t.k.LoadManyByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[any]T, len(ents))
	for id, ent := range ents {
		typed, err := t.cast(ent)
		if err != nil {
			return nil, err
		}
		out[id] = typed
	}
	return out, nil
}

func (t *Typed[T]) LoadByField(ctx context.Context, field string, value any) (T, error) {
	ent, err := t.k.LoadByField(ctx, field, value)
	if err != nil {
		var zero T
		return zero, err
	}
	return t.cast(ent)
}

func (t *Typed[T]) LoadManyByField(ctx context.Context, field string, values []any) (map[any][]T, error) {
	ents, err := t.k.LoadManyByField(ctx, field, values)
	if err != nil {
		return nil, err
	}
	out := make(map[any][]T, len(ents))
	for v, list := range ents {
		typed, err := t.castAll(list)
		if err != nil {
			return nil, err
		}
		out[v] = typed
	}
	return out, nil
}

func (t *Typed[T]) LoadManyByFieldEquality(ctx context.Context, conditions []FieldEquality, opts QueryOptions) ([]T, error) {
	ents, err := t.k.LoadManyByFieldEquality(ctx, conditions, opts)
	if err != nil {
		return nil, err
	}
	return t.castAll(ents)
}

func (t *Typed[T]) castAll(ents []entity.Entity) ([]T, error) {
	out := make([]T, 0, len(ents))
	for _, ent := range ents {
		typed, err := t.cast(ent)
		if err != nil {
			return nil, err
		}
		out = append(out, typed)
	}
	return out, nil
}
