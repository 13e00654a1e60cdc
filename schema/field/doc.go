// Package field provides the fluent builders for declaring document fields
// in table schemas:
//
//	field.String("email").Unique()
//	field.Int("retries").Default(int64(3))
//	field.Bool("archived").Optional()
//
// A builder yields an immutable *Descriptor consumed by the schema builder.
// Invalid usage is recorded on the descriptor's Err and surfaced when the
// enclosing table is built, keeping call sites chainable.
package field
