// Package index provides the fluent builder for declaring table indexes:
//
//	index.Fields("channelId")
//	index.Fields("orgId", "slug").Unique()
//
// Unique fields and foreign-key columns get their backing indexes
// synthesized during schema resolution; explicit declarations are for
// additional lookup paths.
package index

import "fmt"

// Descriptor holds the accumulated declaration of a single index.
type Descriptor struct {
	// Name is the index name. Defaults to the field names joined with "_".
	Name   string   `json:"name,omitempty"`
	Fields []string `json:"fields,omitempty"`
	Unique bool     `json:"unique,omitempty"`

	// Err holds the first builder error. It is surfaced when the enclosing
	// table is built.
	Err error `json:"-"`
}

// Builder is the fluent builder for an index declaration.
type Builder struct {
	desc *Descriptor
}

// Fields returns a new index over the given field columns, in order.
func Fields(fields ...string) *Builder {
	b := &Builder{desc: &Descriptor{Fields: fields}}
	if len(fields) == 0 {
		b.desc.Err = fmt.Errorf("index must cover at least one field")
	}
	return b
}

// Name overrides the generated index name.
func (b *Builder) Name(name string) *Builder {
	b.desc.Name = name
	return b
}

// Unique marks the index as enforcing uniqueness.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Descriptor returns the accumulated index descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
