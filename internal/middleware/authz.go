package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mappa-gov/portal-iam/internal/auth"
	"github.com/mappa-gov/portal-iam/internal/services/iam"
)

type viewContextKey struct{}

// WithView stores the caller's identity view on ctx.
func WithView(ctx context.Context, v *iam.View) context.Context {
	return context.WithValue(ctx, viewContextKey{}, v)
}

// ViewFromContext returns the view stored by the authorization middleware.
func ViewFromContext(ctx context.Context) (*iam.View, bool) {
	v, ok := ctx.Value(viewContextKey{}).(*iam.View)
	return v, ok && v != nil
}

// AuthzDependencies provides the collaborators needed for authorization decisions.
type AuthzDependencies struct {
	Guard    *auth.RouteGuard
	Resolver iam.IdentityResolver
	Logger   logrus.FieldLogger
}

// NewAuthzMiddleware enforces the guard's route policies. Routes without a
// policy pass through untouched. For guarded routes the caller's identity is
// resolved and checked; the resulting view is stored on the request context.
//
// Policies are matched against the path chi routes on (see routingPath), so an
// encoded slash inside a path parameter cannot move a request off its policy.
//
// Authorization fails closed: no identity is 401, a failed session lookup is
// 503 and a missing permission is 403.
func NewAuthzMiddleware(deps AuthzDependencies) (func(http.Handler) http.Handler, error) {
	if deps.Guard == nil {
		return nil, errors.New("authz middleware requires a route guard")
	}
	if deps.Resolver == nil {
		return nil, errors.New("authz middleware requires an identity resolver")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := routingPath(r)
			required, err := deps.Guard.RequiredPermissions(path, r.Method)
			if err != nil {
				logger.WithError(err).Error("route policy lookup failed")
				http.Error(w, "authorization error", http.StatusInternalServerError)
				return
			}
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			id, err := deps.Resolver.GetIdentity(r.Context(), iam.ResolveOptions{})
			if err != nil {
				logger.WithError(err).WithField("path", path).Warn("identity unavailable for guarded route")
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}
			if id == nil {
				unauthenticated(w, "authentication required")
				return
			}

			view := iam.NewView(id)
			allowed, err := deps.Guard.Allow(view, path, r.Method)
			if err != nil {
				logger.WithError(err).Error("route policy evaluation failed")
				http.Error(w, "authorization error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				logger.WithFields(logrus.Fields{
					"user_id":  view.UserID(),
					"method":   r.Method,
					"path":     path,
					"required": required,
				}).Info("request denied")
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithView(r.Context(), view)))
		})
	}, nil
}

// routingPath returns the path chi matches routes against: the raw, still
// escaped path when the request has one, the decoded path otherwise.
func routingPath(r *http.Request) string {
	if r.URL.RawPath != "" {
		return r.URL.RawPath
	}
	return r.URL.Path
}
