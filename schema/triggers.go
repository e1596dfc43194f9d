package schema

import (
	"context"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/store"
)

// Trigger runs around a mutation. Before and after triggers run inside the
// mutation's transaction, AfterCommit triggers once the outermost
// transaction has committed.
type Trigger interface {
	Execute(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, ent entity.Entity, info entity.MutationInfo) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, ent entity.Entity, info entity.MutationInfo) error

func (f TriggerFunc) Execute(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, ent entity.Entity, info entity.MutationInfo) error {
	return f(ctx, qc, vc, ent, info)
}

// MutationValidator checks a mutation after authorization and before any
// trigger runs.
type MutationValidator interface {
	Validate(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, ent entity.Entity, info entity.MutationInfo) error
}

// MutationValidatorFunc adapts a function to MutationValidator.
type MutationValidatorFunc func(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, ent entity.Entity, info entity.MutationInfo) error

func (f MutationValidatorFunc) Validate(ctx context.Context, qc *store.QueryContext, vc *entity.ViewerContext, ent entity.Entity, info entity.MutationInfo) error {
	return f(ctx, qc, vc, ent, info)
}

// Slot names a trigger list.
type Slot int

const (
	BeforeCreate Slot = iota
	AfterCreate
	BeforeUpdate
	AfterUpdate
	BeforeDelete
	AfterDelete
	// BeforeAll runs before the kind specific before trigger of every
	// mutation type.
	BeforeAll
	// AfterAll runs after the kind specific after trigger of every mutation
	// type.
	AfterAll
	AfterCommit

	slotCount
)

func (s Slot) String() string {
	switch s {
	case BeforeCreate:
		return "before_create"
	case AfterCreate:
		return "after_create"
	case BeforeUpdate:
		return "before_update"
	case AfterUpdate:
		return "after_update"
	case BeforeDelete:
		return "before_delete"
	case AfterDelete:
		return "after_delete"
	case BeforeAll:
		return "before_all"
	case AfterAll:
		return "after_all"
	case AfterCommit:
		return "after_commit"
	default:
		return "unknown"
	}
}

// BeforeSlot returns the kind specific before slot for t.
func BeforeSlot(t entity.MutationType) Slot {
	switch t {
	case entity.MutationUpdate:
		return BeforeUpdate
	case entity.MutationDelete:
		return BeforeDelete
	default:
		return BeforeCreate
	}
}

// AfterSlot returns the kind specific after slot for t.
func AfterSlot(t entity.MutationType) Slot {
	switch t {
	case entity.MutationUpdate:
		return AfterUpdate
	case entity.MutationDelete:
		return AfterDelete
	default:
		return AfterCreate
	}
}

// Triggers holds one trigger list per slot.
type Triggers struct {
	slots [slotCount][]Trigger
}

// Add appends triggers to slot.
func (t *Triggers) Add(slot Slot, triggers ...Trigger) *Triggers {
	if slot >= 0 && slot < slotCount {
		t.slots[slot] = append(t.slots[slot], triggers...)
	}
	return t
}

// Get returns the triggers of slot.
func (t Triggers) Get(slot Slot) []Trigger {
	if slot < 0 || slot >= slotCount {
		return nil
	}
	return t.slots[slot]
}

// Merge returns the slot by slot concatenation of t and other.
func (t Triggers) Merge(other Triggers) Triggers {
	var out Triggers
	for i := range out.slots {
		merged := make([]Trigger, 0, len(t.slots[i])+len(other.slots[i]))
		merged = append(merged, t.slots[i]...)
		out.slots[i] = append(merged, other.slots[i]...)
	}
	return out
}

// Len returns the number of triggers across slots.
func (t Triggers) Len() int {
	n := 0
	for _, s := range t.slots {
		n += len(s)
	}
	return n
}
