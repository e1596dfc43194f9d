// Package loadkey describes how a batch of entities is looked up: by a single
// field or by an ordered tuple of fields.
package loadkey

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/store"
	"github.com/vmihailenco/msgpack/v5"
)

// Key identifies the fields a lookup matches on. Load values for a Key are
// normalized store values for single field keys and CompositeValue for
// composite keys.
type Key interface {
	// Fields returns the field names in lookup order.
	Fields() []string
	// IsCacheable reports whether cfg declares lookups on this key unique
	// and cacheable.
	IsCacheable(cfg *schema.Config) bool
	// CacheKeyType distinguishes key shapes in cache keys.
	CacheKeyType() string
	// ValueFromFields derives the load value of a row. ok is false when any
	// of the fields is nil.
	ValueFromFields(fields entity.Fields) (value any, ok bool)
	// Normalize converts a caller supplied value into its load value.
	Normalize(value any) (any, error)
	// Tuple returns the per field values of a load value.
	Tuple(value any) ([]any, error)
	// Validate checks that every field is declared by cfg.
	Validate(cfg *schema.Config) error
	String() string
}

// Field returns a key on a single field.
func Field(name string) Key { return fieldKey{name: name} }

// Composite returns a key on an ordered tuple of fields.
func Composite(names ...string) Key {
	return compositeKey{names: append([]string(nil), names...)}
}

type fieldKey struct {
	name string
}

func (k fieldKey) Fields() []string { return []string{k.name} }

func (k fieldKey) IsCacheable(cfg *schema.Config) bool { return cfg.IsFieldCacheable(k.name) }

func (k fieldKey) CacheKeyType() string { return "field" }

func (k fieldKey) ValueFromFields(fields entity.Fields) (any, bool) {
	v := store.NormalizeValue(fields.Get(k.name))
	return v, v != nil
}

func (k fieldKey) Normalize(value any) (any, error) {
	v := store.NormalizeValue(value)
	if v == nil {
		return nil, fmt.Errorf("loadkey: nil value for %s", k.name)
	}
	return v, nil
}

func (k fieldKey) Tuple(value any) ([]any, error) { return []any{value}, nil }

func (k fieldKey) Validate(cfg *schema.Config) error {
	if !cfg.HasField(k.name) {
		return fmt.Errorf("loadkey: %s has no field %q", cfg.Kind, k.name)
	}
	return nil
}

func (k fieldKey) String() string { return k.name }

type compositeKey struct {
	names []string
}

func (k compositeKey) Fields() []string { return append([]string(nil), k.names...) }

func (k compositeKey) IsCacheable(cfg *schema.Config) bool { return cfg.IsCompositeCacheable(k.names) }

func (k compositeKey) CacheKeyType() string { return "composite" }

func (k compositeKey) ValueFromFields(fields entity.Fields) (any, bool) {
	values := make([]any, len(k.names))
	for i, name := range k.names {
		v := fields.Get(name)
		if v == nil {
			return nil, false
		}
		values[i] = v
	}
	cv, err := NewCompositeValue(values...)
	if err != nil {
		return nil, false
	}
	return cv, true
}

func (k compositeKey) Normalize(value any) (any, error) {
	switch v := value.(type) {
	case CompositeValue:
		if _, err := k.Tuple(v); err != nil {
			return nil, err
		}
		return v, nil
	case []any:
		if len(v) != len(k.names) {
			return nil, fmt.Errorf("loadkey: %d values for %s", len(v), k)
		}
		return NewCompositeValue(v...)
	default:
		return nil, fmt.Errorf("loadkey: unsupported value %T for %s", value, k)
	}
}

func (k compositeKey) Tuple(value any) ([]any, error) {
	cv, ok := value.(CompositeValue)
	if !ok {
		return nil, fmt.Errorf("loadkey: expected CompositeValue for %s, got %T", k, value)
	}
	values, err := cv.Values()
	if err != nil {
		return nil, err
	}
	if len(values) != len(k.names) {
		return nil, fmt.Errorf("loadkey: %d values for %s", len(values), k)
	}
	return values, nil
}

func (k compositeKey) Validate(cfg *schema.Config) error {
	if len(k.names) < 2 {
		return fmt.Errorf("loadkey: composite key needs at least two fields")
	}
	for _, name := range k.names {
		if !cfg.HasField(name) {
			return fmt.Errorf("loadkey: %s has no field %q", cfg.Kind, name)
		}
	}
	return nil
}

func (k compositeKey) String() string { return "(" + strings.Join(k.names, ",") + ")" }

// CompositeValue is the canonical encoding of a tuple of field values. Equal
// tuples encode to equal CompositeValues, so it can be used as a map key.
type CompositeValue string

// NewCompositeValue normalizes and encodes values.
func NewCompositeValue(values ...any) (CompositeValue, error) {
	normalized := make([]any, len(values))
	for i, v := range values {
		normalized[i] = store.NormalizeValue(v)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(normalized); err != nil {
		return "", fmt.Errorf("loadkey: encode composite value: %w", err)
	}
	return CompositeValue(buf.String()), nil
}

// MustCompositeValue is NewCompositeValue for values known to encode.
func MustCompositeValue(values ...any) CompositeValue {
	cv, err := NewCompositeValue(values...)
	if err != nil {
		panic(err)
	}
	return cv
}

// Values decodes the tuple.
func (v CompositeValue) Values() ([]any, error) {
	dec := msgpack.NewDecoder(strings.NewReader(string(v)))
	dec.UseLooseInterfaceDecoding(true)

	var values []any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("loadkey: decode composite value: %w", err)
	}
	for i, val := range values {
		values[i] = store.NormalizeValue(val)
	}
	return values, nil
}

// String renders the tuple for logs and cache keys.
func (v CompositeValue) String() string {
	values, err := v.Values()
	if err != nil {
		return fmt.Sprintf("%x", string(v))
	}
	parts := make([]string, len(values))
	for i, val := range values {
		parts[i] = fmt.Sprint(val)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
