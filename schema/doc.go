// Package schema provides the per-table accumulator of field, edge, index,
// and deletion declarations:
//
//	b := schema.New()
//	b.Table("teams").
//	    Fields(field.String("name")).
//	    Edges(edge.ToMany("members", "members").Ref("teamId")).
//	    ScheduledDeletion(24 * time.Hour)
//	b.Table("members").
//	    Fields(field.String("email").Unique()).
//	    Edges(edge.ToOne("team", "teams").Field("teamId")).
//	    SoftDeletion()
//	tables, err := b.Build()
//
// Build yields immutable per-table descriptors that are only locally
// validated; pass them to graph.Resolve for the cross-table pass that
// resolves inverse edges, infers storage strategies, and synthesizes join
// tables.
package schema
