package schema

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// EdgeDeletionBehavior is what happens to an entity referencing a deleted
// entity.
type EdgeDeletionBehavior int

const (
	// OnDeleteUnset is the zero value. Associations must pick a behavior.
	OnDeleteUnset EdgeDeletionBehavior = iota
	// CascadeDelete deletes the referencing entity.
	CascadeDelete
	// CascadeDeleteInvalidateCacheOnly relies on the store's own foreign key
	// action to delete the referencing row and only invalidates its cache
	// entries.
	CascadeDeleteInvalidateCacheOnly
	// SetNull clears the referencing field.
	SetNull
	// SetNullInvalidateCacheOnly relies on the store to clear the referencing
	// column and only invalidates cache entries.
	SetNullInvalidateCacheOnly
)

func (b EdgeDeletionBehavior) String() string {
	switch b {
	case OnDeleteUnset:
		return "unset"
	case CascadeDelete:
		return "cascade_delete"
	case CascadeDeleteInvalidateCacheOnly:
		return "cascade_delete_invalidate_cache_only"
	case SetNull:
		return "set_null"
	case SetNullInvalidateCacheOnly:
		return "set_null_invalidate_cache_only"
	default:
		return "unknown"
	}
}

// IsCascadeDelete reports whether referencing entities are deleted.
func (b EdgeDeletionBehavior) IsCascadeDelete() bool {
	return b == CascadeDelete || b == CascadeDeleteInvalidateCacheOnly
}

// InvalidatesCacheOnly reports whether the store performs the write itself.
func (b EdgeDeletionBehavior) InvalidatesCacheOnly() bool {
	return b == CascadeDeleteInvalidateCacheOnly || b == SetNullInvalidateCacheOnly
}

// AuthorizationInference controls how many referencing entities a dry
// cascade check loads.
type AuthorizationInference int

const (
	// InferenceNone checks every referencing entity.
	InferenceNone AuthorizationInference = iota
	// OneImpliesAll checks a single representative. Use it when every entity
	// on the edge is authorized the same way.
	OneImpliesAll
)

// Association declares that a field references another entity kind.
type Association struct {
	// Kind is the referenced entity kind.
	Kind string
	// Field is the referenced field the value is matched against. It defaults
	// to the referenced kind's ID field.
	Field string
	// OnDelete is required.
	OnDelete  EdgeDeletionBehavior
	Inference AuthorizationInference
}

// Field describes one field of an entity kind.
type Field struct {
	Name string
	// Column defaults to Name.
	Column string
	// Cache marks single field lookups on this field as unique and
	// cacheable.
	Cache       bool
	Rules       []validation.Rule
	Association *Association
}

// ColumnName returns the store column for the field.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}
