package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mappa-gov/portal-iam/cmd/mappaiam/cmd/cmdutil"
	"github.com/mappa-gov/portal-iam/internal/auth"
	"github.com/mappa-gov/portal-iam/internal/config"
	"github.com/mappa-gov/portal-iam/internal/logging"
	"github.com/mappa-gov/portal-iam/internal/server"
	"github.com/mappa-gov/portal-iam/internal/services/iam"
	"github.com/mappa-gov/portal-iam/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identity API server",
	Long:  `Starts the HTTP server exposing the resolved identity and the role and permission admin endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New(cfg.Debug)
		ctx := context.Background()

		shutdownTracing, err := telemetry.Init(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				logger.WithError(err).Warn("Tracing shutdown failed")
			}
		}()

		verifier, session, err := buildAuth(ctx, cfg, logger)
		if err != nil {
			return err
		}

		bundle, err := cmdutil.NewIAMServiceBundle(ctx, cfg, session, logger)
		if err != nil {
			return err
		}
		defer bundle.Close()

		logger.WithFields(logrus.Fields{
			"cache_backend": cfg.Identity.CacheBackend,
			"cache_ttl":     cfg.Identity.CacheTTL,
		}).Info("Connected to database")

		handler, err := server.NewHandler(server.RouterOptions{
			Identity: bundle.Resolver,
			Admin:    bundle.Admin,
			Verifier: verifier,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to build router: %w", err)
		}

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.WithField("addr", cfg.ServerAddr).Info("Starting server")
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// SIGHUP drops every cached identity
		cacheClear := make(chan os.Signal, 1)
		signal.Notify(cacheClear, syscall.SIGHUP)

		for {
			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server error: %w", err)

			case sig := <-cacheClear:
				logger.WithField("signal", sig.String()).Info("Clearing identity cache")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bundle.Resolver.ClearIdentityCache(ctx)
				cancel()

			case sig := <-shutdown:
				logger.WithField("signal", sig.String()).Info("Shutting down gracefully")

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					_ = srv.Close()
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}

				logger.Info("Server stopped")
				return nil
			}
		}
	},
}

// buildAuth wires the bearer token verifiers and picks the session reader.
// Without any verifier every request is anonymous.
func buildAuth(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (auth.TokenVerifier, iam.SessionReader, error) {
	var chain auth.ChainVerifier
	var session iam.SessionReader = iam.ContextSessionReader{}

	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewHMACVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, v)
	}

	if cfg.Auth.OIDCIssuer != "" {
		provider, err := oidc.NewProvider(ctx, cfg.Auth.OIDCIssuer)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to discover OIDC provider %s: %w", cfg.Auth.OIDCIssuer, err)
		}
		chain = append(chain, auth.NewOIDCVerifier(provider, cfg.Auth.OIDCClientID))
		if cfg.Auth.UseUserInfo {
			session = iam.NewOIDCUserInfoReader(provider)
		}
		logger.WithField("issuer", cfg.Auth.OIDCIssuer).Info("OIDC token verification enabled")
	}

	if len(chain) == 0 {
		logger.Warn("No token verifier configured; every request is anonymous")
		return nil, session, nil
	}
	return chain, session, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
