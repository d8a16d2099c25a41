package cmdutil

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/mappa-gov/portal-iam/internal/config"
	"github.com/mappa-gov/portal-iam/internal/db/bunx"
	"github.com/mappa-gov/portal-iam/internal/logging"
	"github.com/mappa-gov/portal-iam/internal/repository"
	"github.com/mappa-gov/portal-iam/internal/services/iam"
)

// Repositories groups the Bun repositories the identity services read from.
type Repositories struct {
	Profiles    repository.ProfileRepository
	Users       repository.UserRepository
	Departments repository.DepartmentRepository
	Roles       repository.RoleRepository
	Permissions repository.PermissionRepository
}

// NewRepositories wires every repository against db.
func NewRepositories(db *bun.DB) Repositories {
	return Repositories{
		Profiles:    repository.NewBunProfileRepository(db),
		Users:       repository.NewBunUserRepository(db),
		Departments: repository.NewBunDepartmentRepository(db),
		Roles:       repository.NewBunRoleRepository(db),
		Permissions: repository.NewBunPermissionRepository(db),
	}
}

// IAMServiceBundle bundles the resolver and admin service with the
// connections they hold so callers can reuse them and release them together.
type IAMServiceBundle struct {
	Resolver *iam.Resolver
	Admin    *iam.Admin
	Repos    Repositories
	DB       *bun.DB

	redis *redis.Client
}

// Close releases the redis client (if any) and the database connection.
func (b *IAMServiceBundle) Close() {
	if b == nil {
		return
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.DB != nil {
		_ = bunx.Close(b.DB)
	}
}

// NewIAMServiceBundle centralizes identity service construction for the
// server and CLI commands. session decides who the current principal is.
func NewIAMServiceBundle(ctx context.Context, cfg *config.Config, session iam.SessionReader, logger logrus.FieldLogger) (*IAMServiceBundle, error) {
	db, err := bunx.NewDB(ctx, cfg.DatabaseURL, cfg.MaxDBConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	bundle := &IAMServiceBundle{DB: db, Repos: NewRepositories(db)}

	cache, err := bundle.newCache(ctx, cfg, logger)
	if err != nil {
		bundle.Close()
		return nil, err
	}

	resolver, err := iam.NewResolver(
		iam.ResolverDependencies{
			Session:     session,
			Profiles:    bundle.Repos.Profiles,
			Users:       bundle.Repos.Users,
			Departments: bundle.Repos.Departments,
			Roles:       bundle.Repos.Roles,
			Permissions: bundle.Repos.Permissions,
		},
		iam.ResolverConfig{
			Cache:         cache,
			TTL:           cfg.Identity.CacheTTL,
			LookupTimeout: cfg.Identity.LookupTimeout,
			RolePriority:  cfg.Identity.RolePriority,
			SharedCache:   cfg.KeyedCache(),
			Logger:        logger,
		},
	)
	if err != nil {
		bundle.Close()
		return nil, fmt.Errorf("failed to create identity resolver: %w", err)
	}

	bundle.Resolver = resolver
	bundle.Admin = iam.NewAdmin(bundle.Repos.Roles, bundle.Repos.Permissions, resolver, logger)
	return bundle, nil
}

func (b *IAMServiceBundle) newCache(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (iam.IdentityCache, error) {
	switch cfg.Identity.CacheBackend {
	case config.CacheBackendLRU:
		return iam.NewLRUCache(cfg.Identity.CacheSize, cfg.Identity.CacheTTL), nil
	case config.CacheBackendRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.redis = client
		return iam.NewRedisCache(client, cfg.Redis.KeyPrefix, logger), nil
	default:
		return iam.NewSingleSlotCache(), nil
	}
}

// WithIAMServiceBundle loads configuration, builds a bundle without a
// signed-in principal and hands it to fn. Used by one-shot admin commands.
func WithIAMServiceBundle(fn func(ctx context.Context, b *IAMServiceBundle) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	bundle, err := NewIAMServiceBundle(ctx, cfg, iam.StaticSessionReader{}, logging.New(cfg.Debug))
	if err != nil {
		return err
	}
	defer bundle.Close()

	return fn(ctx, bundle)
}
