package iam

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/mappa-gov/portal-iam/internal/auth"
	"golang.org/x/oauth2"
)

// ErrSessionUnavailable is returned when the session lookup itself fails.
// The identity is nil in that case.
var ErrSessionUnavailable = errors.New("session unavailable")

// SessionReader returns the current principal, or nil when nobody is
// authenticated.
type SessionReader interface {
	CurrentUser(ctx context.Context) (*Principal, error)
}

// SessionReaderFunc adapts a function to SessionReader.
type SessionReaderFunc func(ctx context.Context) (*Principal, error)

// CurrentUser implements SessionReader.
func (f SessionReaderFunc) CurrentUser(ctx context.Context) (*Principal, error) {
	return f(ctx)
}

// ContextSessionReader reads the principal placed on the request context by
// the authentication middleware.
type ContextSessionReader struct{}

// CurrentUser implements SessionReader.
func (ContextSessionReader) CurrentUser(ctx context.Context) (*Principal, error) {
	p, ok := auth.GetUserFromContext(ctx)
	if !ok || p.Subject == "" {
		return nil, nil
	}
	return &Principal{AuthUID: p.Subject, Email: p.Email}, nil
}

// StaticSessionReader always reports the same principal. A zero AuthUID means
// nobody is signed in.
type StaticSessionReader struct {
	Principal Principal
}

// CurrentUser implements SessionReader.
func (s StaticSessionReader) CurrentUser(context.Context) (*Principal, error) {
	if s.Principal.AuthUID == "" {
		return nil, nil
	}
	p := s.Principal
	return &p, nil
}

// UserInfoFetcher is the part of *oidc.Provider used by OIDCUserInfoReader.
type UserInfoFetcher interface {
	UserInfo(ctx context.Context, tokenSource oauth2.TokenSource) (*oidc.UserInfo, error)
}

// OIDCUserInfoReader asks the identity provider's userinfo endpoint who owns
// the bearer token on the request context.
type OIDCUserInfoReader struct {
	provider UserInfoFetcher
}

// NewOIDCUserInfoReader creates a reader backed by provider.
func NewOIDCUserInfoReader(provider UserInfoFetcher) *OIDCUserInfoReader {
	return &OIDCUserInfoReader{provider: provider}
}

// CurrentUser implements SessionReader. A request without a token has no
// principal; a failed userinfo call is an error.
func (r *OIDCUserInfoReader) CurrentUser(ctx context.Context) (*Principal, error) {
	p, ok := auth.GetUserFromContext(ctx)
	if !ok || p.Token == "" {
		return nil, nil
	}

	info, err := r.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: p.Token,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return nil, fmt.Errorf("oidc userinfo: %w", err)
	}
	if info.Subject == "" {
		return nil, nil
	}

	email := info.Email
	if email == "" {
		email = p.Email
	}
	return &Principal{AuthUID: info.Subject, Email: email}, nil
}
