package cache

// Status is the outcome of a cache lookup for one value.
type Status int

const (
	// Miss means the tier knows nothing about the value. A miss always
	// escalates to the next tier or to the store.
	Miss Status = iota
	// Hit means the tier holds the item for the value.
	Hit
	// Negative means the tier recorded the value as absent from the store.
	// A negative result never escalates.
	Negative
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Negative:
		return "negative"
	default:
		return "miss"
	}
}

// LoadResult is the per-value result of Adapter.LoadMany. Item is only set
// when Status is Hit.
type LoadResult[T any] struct {
	Status Status
	Item   T
}

// HitResult returns a Hit carrying item.
func HitResult[T any](item T) LoadResult[T] {
	return LoadResult[T]{Status: Hit, Item: item}
}

// MissResult returns a Miss.
func MissResult[T any]() LoadResult[T] {
	return LoadResult[T]{Status: Miss}
}

// NegativeResult returns a Negative.
func NegativeResult[T any]() LoadResult[T] {
	return LoadResult[T]{Status: Negative}
}

// Resolved reports whether the result stops the lookup, i.e. is not a Miss.
func (r LoadResult[T]) Resolved() bool {
	return r.Status != Miss
}
