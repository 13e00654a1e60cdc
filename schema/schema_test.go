package schema_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-convex/convex-ents/schema"
	"github.com/get-convex/convex-ents/schema/edge"
	"github.com/get-convex/convex-ents/schema/field"
	"github.com/get-convex/convex-ents/schema/index"
)

func TestBuildCollectsDeclarations(t *testing.T) {
	t.Parallel()

	b := schema.New()
	b.Table("teams").
		Fields(
			field.String("name"),
			field.String("slug").Unique(),
		).
		Edges(edge.ToMany("members", "users")).
		Indexes(index.Fields("name")).
		ScheduledDeletion(time.Hour)
	b.Table("users").
		Edges(edge.ToOne("team", "teams"))

	tables, err := b.Build()
	require.NoError(t, err)
	require.Len(t, tables, 2)

	teams := tables[0]
	assert.Equal(t, "teams", teams.Name)
	require.Len(t, teams.Fields, 2)
	assert.True(t, teams.Fields[1].Unique)
	require.Len(t, teams.Edges, 1)
	assert.Equal(t, "members", teams.Edges[0].Name)
	assert.Equal(t, schema.DeletionScheduled, teams.Deletion.Behavior)
	assert.Equal(t, time.Hour, teams.Deletion.Delay)
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		declare func(b *schema.Builder)
		errMsg  string
	}{
		{
			name: "duplicate_table",
			declare: func(b *schema.Builder) {
				b.Table("teams")
				b.Table("teams")
			},
			errMsg: "declared twice",
		},
		{
			name: "empty_table_name",
			declare: func(b *schema.Builder) {
				b.Table("")
			},
			errMsg: "cannot be empty",
		},
		{
			name: "reserved_field_name",
			declare: func(b *schema.Builder) {
				b.Table("teams").Fields(field.String("_id"))
			},
			errMsg: "reserved",
		},
		{
			name: "duplicate_field",
			declare: func(b *schema.Builder) {
				b.Table("teams").Fields(field.String("name"), field.Int("name"))
			},
			errMsg: "redeclared",
		},
		{
			name: "duplicate_edge",
			declare: func(b *schema.Builder) {
				b.Table("teams").Edges(
					edge.ToMany("members", "users"),
					edge.ToOne("members", "users"),
				)
			},
			errMsg: "redeclared",
		},
		{
			name: "edge_conflicts_with_field",
			declare: func(b *schema.Builder) {
				b.Table("teams").
					Fields(field.String("owner")).
					Edges(edge.ToOne("owner", "users"))
			},
			errMsg: "conflicts with a field",
		},
		{
			name: "index_over_unknown_field",
			declare: func(b *schema.Builder) {
				b.Table("teams").
					Fields(field.String("name")).
					Indexes(index.Fields("nope"))
			},
			errMsg: "unknown field",
		},
		{
			name: "builder_error_surfaces",
			declare: func(b *schema.Builder) {
				b.Table("teams").Edges(edge.ToMany("members", "users").Unique())
			},
			errMsg: "Unique is allowed only on one edges",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := schema.New()
			tt.declare(b)
			_, err := b.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestIndexOverEdgeColumnAndDeletionTime(t *testing.T) {
	t.Parallel()

	b := schema.New()
	b.Table("members").
		SoftDeletion().
		Edges(edge.ToOne("team", "teams").Field("teamId")).
		Indexes(
			index.Fields("teamId"),
			index.Fields("deletionTime"),
		)
	_, err := b.Build()
	assert.NoError(t, err,
		"foreign-key columns and the deletion timestamp are indexable")
}

func TestDeletionBehaviorString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", schema.DeletionNone.String())
	assert.Equal(t, "soft", schema.DeletionSoft.String())
	assert.Equal(t, "scheduled", schema.DeletionScheduled.String())
}
