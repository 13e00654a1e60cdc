package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/get-convex/convex-ents/schema/index"
)

func TestIndexBuilder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() *index.Descriptor
		validate func(t *testing.T, desc *index.Descriptor)
	}{
		{
			name: "single_field",
			build: func() *index.Descriptor {
				return index.Fields("channelId").Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.NoError(t, desc.Err)
				assert.Equal(t, []string{"channelId"}, desc.Fields)
				assert.Empty(t, desc.Name)
				assert.False(t, desc.Unique)
			},
		},
		{
			name: "compound_unique_named",
			build: func() *index.Descriptor {
				return index.Fields("orgId", "slug").Unique().Name("org_slug").Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.NoError(t, desc.Err)
				assert.Equal(t, []string{"orgId", "slug"}, desc.Fields)
				assert.True(t, desc.Unique)
				assert.Equal(t, "org_slug", desc.Name)
			},
		},
		{
			name: "no_fields",
			build: func() *index.Descriptor {
				return index.Fields().Descriptor()
			},
			validate: func(t *testing.T, desc *index.Descriptor) {
				assert.ErrorContains(t, desc.Err, "at least one field")
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.validate(t, tt.build())
		})
	}
}
