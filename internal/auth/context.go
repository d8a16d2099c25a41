package auth

import "context"

// AuthenticatedPrincipal is the identity asserted by a verified bearer token.
type AuthenticatedPrincipal struct {
	// Subject is the identity provider's user id; it is the auth UID used by
	// the identity resolver.
	Subject string
	// Email is present when the token carries an email claim.
	Email string
	// Name is an optional display name.
	Name string
	// Issuer identifies which verifier accepted the token.
	Issuer string
	// Token is the raw bearer token, kept for userinfo calls.
	Token string
}

type principalContextKey struct{}

// SetUserContext stores the authenticated principal on the context.
func SetUserContext(ctx context.Context, principal AuthenticatedPrincipal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// GetUserFromContext retrieves the authenticated principal from the context.
func GetUserFromContext(ctx context.Context) (AuthenticatedPrincipal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(AuthenticatedPrincipal)
	return principal, ok
}
