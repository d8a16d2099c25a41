package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with nested keys
// joined by underscores (identity.cache_ttl -> MAPPA_IDENTITY_CACHE_TTL).
const EnvPrefix = "MAPPA"

// Identity cache backends.
const (
	CacheBackendSingle = "single"
	CacheBackendLRU    = "lru"
	CacheBackendRedis  = "redis"
)

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN); postgres:// or a SQLite path
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Maximum database connection pool size (Postgres)
	MaxDBConnections int

	// Enable debug logging, including fail-soft lookup diagnostics
	Debug bool

	Identity      IdentityConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
}

// IdentityConfig controls identity resolution and caching.
type IdentityConfig struct {
	// CacheTTL is how long a resolved identity is reused
	CacheTTL time.Duration
	// CacheBackend is one of single, lru or redis
	CacheBackend string
	// CacheSize bounds the lru backend
	CacheSize int
	// LookupTimeout bounds every individual store lookup
	LookupTimeout time.Duration
	// RolePriority breaks ties when choosing the primary role
	RolePriority []string
}

// RedisConfig configures the redis identity cache backend.
type RedisConfig struct {
	URL       string
	KeyPrefix string
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// JWTSecret enables HS256 portal tokens when set
	JWTSecret string
	// JWTIssuer, when set, must match the iss claim of portal tokens
	JWTIssuer string
	// OIDCIssuer enables ID token verification and userinfo lookups when set
	OIDCIssuer string
	// OIDCClientID is the expected audience of ID tokens
	OIDCClientID string
	// UseUserInfo resolves the session through the OIDC userinfo endpoint
	// instead of trusting token claims
	UseUserInfo bool
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	OTLPEndpoint   string
	OTLPInsecure   bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "file:mappa.db?cache=shared")
	v.SetDefault("server_addr", "localhost:8080")
	v.SetDefault("max_db_connections", 25)
	v.SetDefault("debug", false)

	v.SetDefault("identity.cache_ttl", "10m")
	v.SetDefault("identity.cache_backend", CacheBackendSingle)
	v.SetDefault("identity.cache_size", 1024)
	v.SetDefault("identity.lookup_timeout", "5s")
	v.SetDefault("identity.role_priority", []string{"super-admin", "admin"})

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key_prefix", "mappa:iam:identity:")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.oidc_issuer", "")
	v.SetDefault("auth.oidc_client_id", "")
	v.SetDefault("auth.use_userinfo", false)

	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_insecure", false)
	v.SetDefault("observability.service_name", "mappaiam")
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.environment", "development")
}

// Load reads configuration from the global viper instance: defaults, then an
// optional config file already read by the caller, then MAPPA_ environment
// variables (highest precedence).
func Load() (*Config, error) {
	v := viper.GetViper()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		DatabaseURL:      v.GetString("database_url"),
		ServerAddr:       v.GetString("server_addr"),
		MaxDBConnections: v.GetInt("max_db_connections"),
		Debug:            v.GetBool("debug"),
		Identity: IdentityConfig{
			CacheTTL:      v.GetDuration("identity.cache_ttl"),
			CacheBackend:  strings.ToLower(strings.TrimSpace(v.GetString("identity.cache_backend"))),
			CacheSize:     v.GetInt("identity.cache_size"),
			LookupTimeout: v.GetDuration("identity.lookup_timeout"),
			RolePriority:  v.GetStringSlice("identity.role_priority"),
		},
		Redis: RedisConfig{
			URL:       v.GetString("redis.url"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Auth: AuthConfig{
			JWTSecret:    v.GetString("auth.jwt_secret"),
			JWTIssuer:    v.GetString("auth.jwt_issuer"),
			OIDCIssuer:   v.GetString("auth.oidc_issuer"),
			OIDCClientID: v.GetString("auth.oidc_client_id"),
			UseUserInfo:  v.GetBool("auth.use_userinfo"),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint:   v.GetString("observability.otlp_endpoint"),
			OTLPInsecure:   v.GetBool("observability.otlp_insecure"),
			ServiceName:    v.GetString("observability.service_name"),
			ServiceVersion: v.GetString("observability.service_version"),
			Environment:    v.GetString("observability.environment"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and cross-field constraints.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("MAPPA_DATABASE_URL is required")
	}
	if c.Identity.CacheTTL <= 0 {
		return fmt.Errorf("identity.cache_ttl must be positive, got %s", c.Identity.CacheTTL)
	}
	if c.Identity.LookupTimeout <= 0 {
		return fmt.Errorf("identity.lookup_timeout must be positive, got %s", c.Identity.LookupTimeout)
	}

	switch c.Identity.CacheBackend {
	case CacheBackendSingle:
	case CacheBackendLRU:
		if c.Identity.CacheSize <= 0 {
			return fmt.Errorf("identity.cache_size must be positive for the lru backend")
		}
	case CacheBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown identity.cache_backend %q (want single, lru or redis)", c.Identity.CacheBackend)
	}

	if c.Auth.OIDCIssuer != "" && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("auth.oidc_client_id is required when auth.oidc_issuer is set")
	}
	if c.Auth.UseUserInfo && c.Auth.OIDCIssuer == "" {
		return fmt.Errorf("auth.use_userinfo requires auth.oidc_issuer")
	}
	return nil
}

// AuthEnabled reports whether any bearer token verifier is configured.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != "" || c.Auth.OIDCIssuer != ""
}

// KeyedCache reports whether the configured cache holds many principals.
func (c *Config) KeyedCache() bool {
	return c.Identity.CacheBackend != CacheBackendSingle
}
