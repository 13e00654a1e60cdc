package field

import "fmt"

// Type is the value type of a document field.
type Type int

// Field value types.
const (
	TypeInvalid Type = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeBytes
	TypeAny
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeBytes:
		return "bytes"
	case TypeAny:
		return "any"
	}
	return fmt.Sprintf("invalid(%d)", int(t))
}

// Valid reports if the type is one of the declared value types.
func (t Type) Valid() bool {
	return t > TypeInvalid && t <= TypeAny
}

// Descriptor holds the accumulated declaration of a single field. It is the
// immutable, serializable output of the field builder.
type Descriptor struct {
	Name     string `json:"name,omitempty"`
	Type     Type   `json:"type,omitempty"`
	Unique   bool   `json:"unique,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Default  any    `json:"default,omitempty"`

	// Err holds the first builder error. It is surfaced when the enclosing
	// table is built.
	Err error `json:"-"`
}

// Builder is the fluent builder for a field declaration.
type Builder struct {
	desc *Descriptor
}

// String returns a new string field with the given name.
func String(name string) *Builder {
	return newBuilder(name, TypeString)
}

// Int returns a new integer field with the given name.
func Int(name string) *Builder {
	return newBuilder(name, TypeInt)
}

// Float returns a new float field with the given name.
func Float(name string) *Builder {
	return newBuilder(name, TypeFloat)
}

// Bool returns a new boolean field with the given name.
func Bool(name string) *Builder {
	return newBuilder(name, TypeBool)
}

// Bytes returns a new raw-bytes field with the given name.
func Bytes(name string) *Builder {
	return newBuilder(name, TypeBytes)
}

// Any returns a new field with no declared value type.
func Any(name string) *Builder {
	return newBuilder(name, TypeAny)
}

func newBuilder(name string, t Type) *Builder {
	b := &Builder{desc: &Descriptor{Name: name, Type: t}}
	if name == "" {
		b.desc.Err = fmt.Errorf("field name cannot be empty")
	}
	return b
}

// Unique marks the field as unique. Unique fields are backed by an index and
// checked before every insert and patch.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Optional marks the field as optional on insert.
func (b *Builder) Optional() *Builder {
	b.desc.Optional = true
	return b
}

// Default sets the value used on insert when the field is omitted.
func (b *Builder) Default(v any) *Builder {
	b.desc.Default = v
	return b
}

// Descriptor returns the accumulated field descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
