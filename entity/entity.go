package entity

import "fmt"

// Entity is implemented by every entity kind. Kinds usually embed *Base and add
// typed accessors on top of it.
type Entity interface {
	Kind() string
	ID() any
	Field(name string) any
	Fields() Fields
	UniqueIdentifier() string
	ViewerContext() *ViewerContext
}

// Base is the default Entity implementation.
type Base struct {
	kind    string
	idField string
	fields  Fields
	vc      *ViewerContext
}

var _ Entity = (*Base)(nil)

// NewBase builds a Base over a copy of fields.
func NewBase(kind, idField string, vc *ViewerContext, fields Fields) *Base {
	return &Base{
		kind:    kind,
		idField: idField,
		fields:  fields.Clone(),
		vc:      vc,
	}
}

func (b *Base) Kind() string { return b.kind }

func (b *Base) ID() any { return b.fields[b.idField] }

func (b *Base) Field(name string) any { return b.fields.Get(name) }

// Fields returns a copy of the underlying row.
func (b *Base) Fields() Fields { return b.fields.Clone() }

// UniqueIdentifier identifies the entity across kinds.
func (b *Base) UniqueIdentifier() string {
	return UniqueIdentifier(b.kind, b.ID())
}

func (b *Base) ViewerContext() *ViewerContext { return b.vc }

func (b *Base) String() string {
	return fmt.Sprintf("%s(%v)", b.kind, b.ID())
}

// UniqueIdentifier formats the identifier used by cycle detection and logging.
func UniqueIdentifier(kind string, id any) string {
	return fmt.Sprintf("%s:%v", kind, id)
}
