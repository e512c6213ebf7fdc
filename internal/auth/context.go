package auth

import (
	"context"

	"github.com/BradenHooton/farmtrack/internal/models"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
	claimsContextKey   contextKey = "claims"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	ID       string
	Email    string
	Role     models.Role
	IsActive bool
}

// HasRole reports whether the identity holds one of roles.
func (i *Identity) HasRole(roles ...models.Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

func WithIdentity(ctx context.Context, id *Identity, claims *models.TokenClaims) context.Context {
	ctx = context.WithValue(ctx, identityContextKey, id)
	return context.WithValue(ctx, claimsContextKey, claims)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok && id != nil
}

func ClaimsFromContext(ctx context.Context) (*models.TokenClaims, bool) {
	c, ok := ctx.Value(claimsContextKey).(*models.TokenClaims)
	return c, ok && c != nil
}
