package cmdutil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mappa-gov/portal-iam/internal/config"
	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/mappa-gov/portal-iam/internal/logging"
	"github.com/mappa-gov/portal-iam/internal/migrations"
	"github.com/mappa-gov/portal-iam/internal/services/iam"
)

func testConfig(backend string) *config.Config {
	return &config.Config{
		DatabaseURL: "file::memory:",
		Identity: config.IdentityConfig{
			CacheTTL:      time.Minute,
			CacheBackend:  backend,
			CacheSize:     16,
			LookupTimeout: time.Second,
			RolePriority:  []string{"super-admin", "admin"},
		},
		Redis: config.RedisConfig{KeyPrefix: "test:identity:"},
	}
}

func newBundle(t *testing.T, cfg *config.Config, session iam.SessionReader) *IAMServiceBundle {
	t.Helper()
	ctx := context.Background()

	b, err := NewIAMServiceBundle(ctx, cfg, session, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(b.Close)

	_, err = migrations.Migrate(ctx, b.DB)
	require.NoError(t, err)
	return b
}

func TestNewIAMServiceBundle_ResolvesAgainstDatabase(t *testing.T) {
	for _, backend := range []string{config.CacheBackendSingle, config.CacheBackendLRU} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			session := iam.StaticSessionReader{Principal: iam.Principal{AuthUID: "user-1", Email: "one@mappa.test"}}
			b := newBundle(t, testConfig(backend), session)

			require.NoError(t, b.Repos.Users.Create(ctx, &models.User{ID: "user-1", Email: "one@mappa.test"}))
			require.NoError(t, b.Admin.AssignRole(ctx, "user-1", "viewer", nil))

			id, err := b.Resolver.GetIdentity(ctx, iam.ResolveOptions{})
			require.NoError(t, err)
			require.NotNil(t, id)
			assert.Equal(t, "user-1", id.UserID)
			assert.Equal(t, "viewer", id.PrimaryRoleCode)
			assert.True(t, iam.NewView(id).HasPerm("WALLBOARD.VIEW"))
			assert.False(t, iam.NewView(id).HasPerm("iam.cache.clear"))
		})
	}
}

func TestNewIAMServiceBundle_RedisBackend(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := testConfig(config.CacheBackendRedis)
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	session := iam.StaticSessionReader{Principal: iam.Principal{AuthUID: "user-2"}}
	b := newBundle(t, cfg, session)

	require.NoError(t, b.Repos.Users.Create(ctx, &models.User{ID: "user-2", Email: "two@mappa.test"}))

	id, err := b.Resolver.GetIdentity(ctx, iam.ResolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.True(t, mr.Exists("test:identity:user-2"))

	b.Resolver.ClearIdentityCache(ctx)
	assert.False(t, mr.Exists("test:identity:user-2"))
}

func TestNewIAMServiceBundle_RedisErrors(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(config.CacheBackendRedis)
	cfg.Redis.URL = "not-a-url"
	_, err := NewIAMServiceBundle(ctx, cfg, iam.StaticSessionReader{}, logging.Discard())
	assert.ErrorContains(t, err, "invalid redis url")

	cfg.Redis.URL = "redis://127.0.0.1:1/0"
	_, err = NewIAMServiceBundle(ctx, cfg, iam.StaticSessionReader{}, logging.Discard())
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestNewIAMServiceBundle_RequiresSession(t *testing.T) {
	_, err := NewIAMServiceBundle(context.Background(), testConfig(config.CacheBackendSingle), nil, logging.Discard())
	assert.ErrorContains(t, err, "failed to create identity resolver")
}

func TestIAMServiceBundle_CloseNil(t *testing.T) {
	var b *IAMServiceBundle
	assert.NotPanics(t, b.Close)
}
