package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mappa-gov/portal-iam/internal/auth"
)

// Authenticate verifies the bearer token of each request and puts the
// principal on the request context.
//
// Requests without an Authorization header continue anonymously; the
// authorization middleware and handlers decide what anonymous callers may do.
// A header that is malformed or fails verification is rejected with 401.
func Authenticate(verifier auth.TokenVerifier, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := auth.ExtractBearerToken(header)
			if !ok {
				unauthenticated(w, "bearer token required")
				return
			}
			if verifier == nil {
				logger.WithField("path", r.URL.Path).Debug("bearer token received but no verifier is configured")
				unauthenticated(w, "authentication not configured")
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
				}).Debug("token verification failed")
				unauthenticated(w, "invalid token")
				return
			}
			principal.Token = token

			next.ServeHTTP(w, r.WithContext(auth.SetUserContext(r.Context(), principal)))
		})
	}
}

func unauthenticated(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="mappa"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
