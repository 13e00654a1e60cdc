// Package edge provides the fluent builders for declaring relationships
// between tables:
//
//	// 1:many — the foreign key lives on the messages table.
//	edge.ToMany("messages", "messages").Ref("userId")
//	edge.ToOne("user", "users").Field("userId")
//
//	// 1:1 — the foreign key lives on the profiles table, unique.
//	edge.ToOne("profile", "profiles").Ref("userId")
//
//	// many:many — backed by a join table, synthesized if unnamed.
//	edge.ToMany("tags", "tags")
//
// A declaration may be one-sided: the storage strategy of each relationship
// is inferred and validated across both ends when the schema is resolved.
// Self-directed edges pair up only through an explicit inverse name:
//
//	edge.ToMany("children", "users").Inverse("parent")
//	edge.ToOne("parent", "users").Field("parentId").Inverse("children")
//
// A self-directed many edge with no declared inverse is symmetric: both
// directions are served by the same join rows.
package edge
