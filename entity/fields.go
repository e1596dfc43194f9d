package entity

import (
	"maps"
	"sort"
)

// Fields is a full row of an entity keyed by field name. Values are treated as
// immutable once a Fields is handed to the cache or to an entity: callers must
// Clone before changing anything.
type Fields map[string]any

// Get returns the value of the named field, or nil when it is absent.
func (f Fields) Get(name string) any {
	if f == nil {
		return nil
	}
	return f[name]
}

// Has reports whether the named field is present, even when its value is nil.
func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

// With returns a copy with the named field set.
func (f Fields) With(name string, value any) Fields {
	out := f.Clone()
	out[name] = value
	return out
}

// Merge returns a copy with every field of updates applied on top.
func (f Fields) Merge(updates Fields) Fields {
	out := f.Clone()
	maps.Copy(out, updates)
	return out
}

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
