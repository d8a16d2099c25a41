package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoVerifier is returned when no token verifier is configured.
	ErrNoVerifier = errors.New("no token verifier configured")
	// ErrInvalidToken wraps every token rejection.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (AuthenticatedPrincipal, error)
}

// portalClaims are the claims expected in tokens minted by the portal itself.
type portalClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// HMACVerifier validates HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
}

// NewHMACVerifier creates a verifier for HS256 tokens. When issuer is set, the
// iss claim must match it.
func NewHMACVerifier(secret, issuer string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("hmac verifier: secret is required")
	}
	return &HMACVerifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify parses and validates the token.
func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (AuthenticatedPrincipal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &portalClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return AuthenticatedPrincipal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return AuthenticatedPrincipal{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	return AuthenticatedPrincipal{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Issuer:  claims.Issuer,
		Token:   rawToken,
	}, nil
}

// SignHMACToken mints an HS256 token for subject. Used by the CLI and tests.
func SignHMACToken(secret, issuer, subject, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := portalClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// OIDCVerifier validates ID tokens issued by an external OpenID provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier returns a verifier for ID tokens from provider whose
// audience is clientID.
func NewOIDCVerifier(provider *oidc.Provider, clientID string) *OIDCVerifier {
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}
}

// Verify validates the ID token signature and standard claims.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (AuthenticatedPrincipal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return AuthenticatedPrincipal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return AuthenticatedPrincipal{}, fmt.Errorf("%w: decode claims: %v", ErrInvalidToken, err)
	}

	return AuthenticatedPrincipal{
		Subject: idToken.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Issuer:  idToken.Issuer,
		Token:   rawToken,
	}, nil
}

// ChainVerifier tries each verifier in order and returns the first success.
type ChainVerifier []TokenVerifier

// Verify implements TokenVerifier.
func (c ChainVerifier) Verify(ctx context.Context, rawToken string) (AuthenticatedPrincipal, error) {
	if len(c) == 0 {
		return AuthenticatedPrincipal{}, ErrNoVerifier
	}
	var errs []error
	for _, v := range c {
		p, err := v.Verify(ctx, rawToken)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	return AuthenticatedPrincipal{}, errors.Join(errs...)
}

// ExtractBearerToken returns the token from an Authorization header value.
func ExtractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
