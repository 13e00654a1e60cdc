package privacy

import (
	"context"
	"slices"

	"github.com/get-convex/convex-ents"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
}

// viewerCtxKey is the context key for storing the viewer.
type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
// Use this for testing or simple use cases.
type SimpleViewer struct {
	UserID string
	Roles  []string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string {
	return v.UserID
}

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string {
	return v.Roles
}

// DenyIfNoViewer returns a rule that denies access if no viewer is present
// in the context. This is typically used as the first rule in a policy to
// require authentication.
//
// Example:
//
//	privacy.Policy{
//	    Write: privacy.WritePolicy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.HasRole("admin"),
//	        privacy.AlwaysDenyRule(),
//	    },
//	}
func DenyIfNoViewer() ReadWriteRule {
	return ContextReadWriteRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("ents/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the specified
// role, and otherwise skips to the next rule.
func HasRole(role string) ReadWriteRule {
	return ContextReadWriteRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		if slices.Contains(viewer.GetRoles(), role) {
			return Allow
		}
		return Skip
	})
}

// DenyReadOfSoftDeleted returns a read rule hiding soft-deleted documents.
// It denies reads of documents carrying a deletion timestamp and skips
// otherwise.
func DenyReadOfSoftDeleted() ReadRule {
	return ReadRuleFunc(func(_ context.Context, table string, doc ents.Document) error {
		if doc.SoftDeleted() {
			return Denyf("ents/privacy: document %s in %s is deleted", doc.ID(), table)
		}
		return Skip
	})
}
