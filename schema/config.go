package schema

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/privacy"
	"github.com/goliatone/go-entity/store"
)

// Constructor builds an entity of a kind from a full row.
type Constructor func(vc *entity.ViewerContext, fields entity.Fields) (entity.Entity, error)

// Config describes one entity kind.
type Config struct {
	Kind string
	// Table defaults to the pluralized snake case kind.
	Table string
	// IDField defaults to "id" and must be declared in Fields.
	IDField string
	Fields  []Field

	// CompositeCaches lists ordered field tuples whose lookups are unique
	// and cacheable.
	CompositeCaches [][]string
	// CacheKeyVersion is part of every cache key of the kind. Bump it when
	// the cached row shape changes.
	CacheKeyVersion int

	Policy      privacy.Policy
	Constructor Constructor
	Triggers    Triggers
	Validators  []MutationValidator
	// IDGenerator assigns IDs to created entities that have none.
	IDGenerator func() any

	fieldIndex map[string]int
}

func (c *Config) prepare() {
	if c.IDField == "" {
		c.IDField = "id"
	}
	if c.Table == "" {
		c.Table = DefaultTable(c.Kind)
	}
	c.fieldIndex = make(map[string]int, len(c.Fields))
	for i, f := range c.Fields {
		c.fieldIndex[f.Name] = i
	}
}

// Validate checks the configuration. Register calls it.
func (c *Config) Validate() error {
	if c.fieldIndex == nil {
		c.prepare()
	}

	err := validation.ValidateStruct(c,
		validation.Field(&c.Kind, validation.Required),
		validation.Field(&c.Table, validation.Required),
		validation.Field(&c.Fields, validation.Required, validation.By(c.validateFields)),
		validation.Field(&c.CompositeCaches, validation.By(c.validateComposites)),
		validation.Field(&c.CacheKeyVersion, validation.Min(0)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, fmt.Sprintf("invalid schema for %q", c.Kind)).
			WithTextCode("SCHEMA_INVALID")
	}
	return nil
}

func (c *Config) validateFields(any) error {
	if len(c.fieldIndex) != len(c.Fields) {
		return fmt.Errorf("field names must be unique")
	}
	if _, ok := c.fieldIndex[c.IDField]; !ok {
		return fmt.Errorf("id field %q is not declared", c.IDField)
	}
	for _, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("field name is required")
		}
		if f.Association == nil {
			continue
		}
		if f.Association.Kind == "" {
			return fmt.Errorf("association on %q needs a kind", f.Name)
		}
		if f.Association.OnDelete < CascadeDelete || f.Association.OnDelete > SetNullInvalidateCacheOnly {
			return fmt.Errorf("association on %q needs an on delete behavior, got %s", f.Name, f.Association.OnDelete)
		}
	}
	return nil
}

func (c *Config) validateComposites(any) error {
	for _, names := range c.CompositeCaches {
		if len(names) < 2 {
			return fmt.Errorf("composite cache needs at least two fields")
		}
		for _, name := range names {
			if _, ok := c.fieldIndex[name]; !ok {
				return fmt.Errorf("composite cache field %q is not declared", name)
			}
		}
	}
	return nil
}

// Field returns the named field.
func (c *Config) Field(name string) (Field, bool) {
	i, ok := c.fieldIndex[name]
	if !ok {
		return Field{}, false
	}
	return c.Fields[i], true
}

// HasField reports whether name is declared.
func (c *Config) HasField(name string) bool {
	_, ok := c.fieldIndex[name]
	return ok
}

// FieldNames returns the declared field names in declaration order.
func (c *Config) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// Column returns the store column of a field, or name when it is not
// declared.
func (c *Config) Column(name string) string {
	if f, ok := c.Field(name); ok {
		return f.ColumnName()
	}
	return name
}

// Columns maps names to columns.
func (c *Config) Columns(names []string) []string {
	cols := make([]string, len(names))
	for i, name := range names {
		cols[i] = c.Column(name)
	}
	return cols
}

// IsFieldCacheable reports whether single field lookups on name are cached.
// Lookups by ID always are.
func (c *Config) IsFieldCacheable(name string) bool {
	if name == c.IDField {
		return true
	}
	f, ok := c.Field(name)
	return ok && f.Cache
}

// IsCompositeCacheable reports whether lookups on the ordered field tuple
// names are cached.
func (c *Config) IsCompositeCacheable(names []string) bool {
	for _, declared := range c.CompositeCaches {
		if equalNames(declared, names) {
			return true
		}
	}
	return false
}

// CacheableFieldNames returns the fields with cached single field lookups,
// ID first.
func (c *Config) CacheableFieldNames() []string {
	names := []string{c.IDField}
	for _, f := range c.Fields {
		if f.Cache && f.Name != c.IDField {
			names = append(names, f.Name)
		}
	}
	return names
}

// ToRow converts declared fields present in fields into a store row.
func (c *Config) ToRow(fields entity.Fields) store.Row {
	row := make(store.Row, len(fields))
	for _, f := range c.Fields {
		if v, ok := fields[f.Name]; ok {
			row[f.ColumnName()] = v
		}
	}
	return row
}

// FromRow converts a store row into the full fields of the kind. Declared
// columns missing from row are nil.
func (c *Config) FromRow(row store.Row) entity.Fields {
	fields := make(entity.Fields, len(c.Fields))
	for _, f := range c.Fields {
		fields[f.Name] = row[f.ColumnName()]
	}
	return fields
}

// ValidateFields runs the field rules against fields. Fields absent from
// fields are not checked.
func (c *Config) ValidateFields(ctx context.Context, fields entity.Fields) error {
	keys := make([]*validation.KeyRules, 0, len(c.Fields))
	for _, f := range c.Fields {
		if len(f.Rules) == 0 {
			continue
		}
		keys = append(keys, validation.Key(f.Name, f.Rules...).Optional())
	}
	if len(keys) == 0 {
		return nil
	}

	err := validation.ValidateWithContext(ctx, map[string]any(fields), validation.Map(keys...).AllowExtraKeys())
	if err == nil {
		return nil
	}
	if _, ok := err.(validation.InternalError); ok {
		return err
	}
	return entity.NewInvalidFieldValueError(c.Kind, err)
}

// Construct builds an entity from fields with the kind's Constructor, or an
// entity.Base when there is none. The ID field must be set.
func (c *Config) Construct(vc *entity.ViewerContext, fields entity.Fields) (entity.Entity, error) {
	if fields.Get(c.IDField) == nil {
		return nil, fmt.Errorf("schema: %s row has no %s", c.Kind, c.IDField)
	}
	if c.Constructor != nil {
		return c.Constructor(vc, fields)
	}
	return entity.NewBase(c.Kind, c.IDField, vc, fields), nil
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
