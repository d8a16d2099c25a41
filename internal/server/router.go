package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mappa-gov/portal-iam/internal/auth"
	iammiddleware "github.com/mappa-gov/portal-iam/internal/middleware"
)

// RouterOptions controls the construction of the HTTP router.
type RouterOptions struct {
	Identity identityService
	Admin    adminService
	// Verifier authenticates bearer tokens. Without it every request is anonymous.
	Verifier auth.TokenVerifier
	// Guard defaults to a guard over auth.DefaultRoutePolicies.
	Guard          *auth.RouteGuard
	Logger         logrus.FieldLogger
	CORSOptions    *cors.Options
	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler
	Middleware     []func(http.Handler) http.Handler
}

// DefaultCORSOptions returns the CORS policy for the portal front-end dev servers.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
			"http://localhost:3000",
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter assembles the chi router with shared middleware and the IAM API.
func NewRouter(opts RouterOptions) (chi.Router, error) {
	if opts.Identity == nil {
		return nil, errors.New("router requires an identity service")
	}
	if opts.Admin == nil {
		return nil, errors.New("router requires an admin service")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	guard := opts.Guard
	if guard == nil {
		var err error
		if guard, err = auth.NewRouteGuard(auth.DefaultRoutePolicies); err != nil {
			return nil, err
		}
	}
	authz, err := iammiddleware.NewAuthzMiddleware(iammiddleware.AuthzDependencies{
		Guard:    guard,
		Resolver: opts.Identity,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(iammiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(iammiddleware.Metrics)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	h := &handlers{identity: opts.Identity, admin: opts.Admin, logger: logger}
	r.Route("/api/iam", func(r chi.Router) {
		r.Use(iammiddleware.Authenticate(opts.Verifier, logger))
		r.Use(authz)

		r.Get("/me", h.getMe)
		r.Post("/me/refresh", h.refreshMe)
		r.Get("/me/permissions/{code}", h.checkPermission)

		r.Get("/users/{userID}/roles", h.listUserRoles)
		r.Post("/users/{userID}/roles", h.assignRole)
		r.Delete("/users/{userID}/roles/{roleCode}", h.revokeRole)
		r.Get("/users/{userID}/permissions", h.listUserPermissions)
		r.Post("/users/{userID}/permissions", h.grantPermission)
		r.Delete("/users/{userID}/permissions/{permissionCode}", h.revokePermission)

		r.Delete("/cache", h.clearCache)
	})

	return r, nil
}

// NewHandler wraps the router with OpenTelemetry HTTP instrumentation.
func NewHandler(opts RouterOptions) (http.Handler, error) {
	router, err := NewRouter(opts)
	if err != nil {
		return nil, err
	}
	return otelhttp.NewHandler(router, "mappaiam.http"), nil
}
