package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/mappa-gov/portal-iam/internal/repository"
	"github.com/mappa-gov/portal-iam/internal/telemetry"
)

const tracerName = "mappaiam/services/iam"

// DefaultLookupTimeout bounds each individual store lookup.
const DefaultLookupTimeout = 5 * time.Second

// Lookup steps, used as log fields and metric labels.
const (
	stepSession              = "session"
	stepProfileByID          = "profile_by_id"
	stepProfileByEmail       = "profile_by_email"
	stepUserByID             = "user_by_id"
	stepUserByEmail          = "user_by_email"
	stepUserRoles            = "user_roles"
	stepRolePermissions      = "role_permissions"
	stepUserPermissions      = "user_permissions"
	stepDepartment           = "department"
	stepDepartmentMembership = "department_membership"
)

// ResolverDependencies holds the collaborators of a Resolver.
type ResolverDependencies struct {
	Session     SessionReader
	Profiles    repository.ProfileRepository
	Users       repository.UserRepository
	Departments repository.DepartmentRepository
	Roles       repository.RoleRepository
	Permissions repository.PermissionRepository
}

// ResolverConfig tunes a Resolver. Zero values select the defaults.
type ResolverConfig struct {
	// Cache stores resolved identities. Defaults to a SingleSlotCache.
	Cache IdentityCache
	// TTL defaults to DefaultIdentityTTL.
	TTL time.Duration
	// LookupTimeout defaults to DefaultLookupTimeout.
	LookupTimeout time.Duration
	// RolePriority defaults to DefaultRolePriority.
	RolePriority []string
	// SharedCache marks Cache as holding many principals. Anonymous requests
	// then leave it alone instead of emptying it.
	SharedCache bool
	Logger      logrus.FieldLogger
	// Now is the clock used for cache expiry. Defaults to time.Now. A
	// RedisCache adopts it for its key TTLs.
	Now func() time.Time
}

// ResolveOptions controls a single GetIdentity call.
type ResolveOptions struct {
	// Force skips the cache and resolves from the store.
	Force bool
}

// Resolver assembles identities from the store and caches them.
type Resolver struct {
	deps          ResolverDependencies
	cache         IdentityCache
	ttl           time.Duration
	lookupTimeout time.Duration
	rolePriority  []string
	sharedCache   bool
	logger        logrus.FieldLogger
	now           func() time.Time

	flights singleflight.Group

	// mu orders cache stores against invalidations; generation increments on
	// every ClearIdentityCache so a resolution that started before a clear
	// never writes its result back.
	mu         sync.Mutex
	generation uint64
}

// NewResolver creates a Resolver.
func NewResolver(deps ResolverDependencies, cfg ResolverConfig) (*Resolver, error) {
	switch {
	case deps.Session == nil:
		return nil, errors.New("iam resolver: session reader is required")
	case deps.Profiles == nil:
		return nil, errors.New("iam resolver: profile repository is required")
	case deps.Users == nil:
		return nil, errors.New("iam resolver: user repository is required")
	case deps.Departments == nil:
		return nil, errors.New("iam resolver: department repository is required")
	case deps.Roles == nil:
		return nil, errors.New("iam resolver: role repository is required")
	case deps.Permissions == nil:
		return nil, errors.New("iam resolver: permission repository is required")
	}

	r := &Resolver{
		deps:          deps,
		cache:         cfg.Cache,
		ttl:           cfg.TTL,
		lookupTimeout: cfg.LookupTimeout,
		rolePriority:  cfg.RolePriority,
		sharedCache:   cfg.SharedCache,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
	if r.cache == nil {
		r.cache = NewSingleSlotCache()
	}
	if r.ttl <= 0 {
		r.ttl = DefaultIdentityTTL
	}
	if r.lookupTimeout <= 0 {
		r.lookupTimeout = DefaultLookupTimeout
	}
	if len(r.rolePriority) == 0 {
		r.rolePriority = DefaultRolePriority
	}
	if r.logger == nil {
		r.logger = logrus.StandardLogger()
	}
	r.logger = r.logger.WithField("component", "iam_resolver")
	if r.now == nil {
		r.now = time.Now
	}
	if rc, ok := r.cache.(*RedisCache); ok && cfg.Now != nil {
		rc.WithClock(cfg.Now)
	}
	return r, nil
}

// GetIdentity resolves the current principal's identity.
//
// It returns (nil, nil) when nobody is signed in and (nil, error wrapping
// ErrSessionUnavailable) when the session lookup fails; in both cases the
// cache is cleared first. Store failures never surface: they only leave parts
// of the identity empty. The returned identity is owned by the caller.
func (r *Resolver) GetIdentity(ctx context.Context, opts ResolveOptions) (*Identity, error) {
	started := time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.GetIdentity",
		attribute.Bool(telemetry.AttrForce, opts.Force),
	)
	defer span.End()

	principal, err := r.currentPrincipal(ctx)
	if err != nil {
		r.logger.WithError(err).WithField("step", stepSession).Debug("session lookup failed")
		telemetry.RecordLookupFailure(stepSession)
		telemetry.RecordError(span, err)
		r.forgetAnonymous(ctx)
		telemetry.RecordResolution(telemetry.OutcomeSessionError, time.Since(started))
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	if principal == nil {
		r.forgetAnonymous(ctx)
		telemetry.RecordResolution(telemetry.OutcomeAnonymous, time.Since(started))
		return nil, nil
	}
	span.SetAttributes(attribute.String(telemetry.AttrAuthUID, principal.AuthUID))

	if opts.Force {
		telemetry.RecordCacheLookup(telemetry.CacheBypass)
	} else if cached, ok := r.cachedIdentity(ctx, principal.AuthUID); ok {
		telemetry.RecordCacheLookup(telemetry.CacheHit)
		span.SetAttributes(attribute.String(telemetry.AttrCacheResult, telemetry.CacheHit))
		telemetry.RecordResolution(telemetry.OutcomeResolved, time.Since(started))
		return cached, nil
	} else {
		telemetry.RecordCacheLookup(telemetry.CacheMiss)
		span.SetAttributes(attribute.String(telemetry.AttrCacheResult, telemetry.CacheMiss))
	}

	key := principal.AuthUID
	if opts.Force {
		key = "force:" + key
	}
	// Concurrent misses for one principal share a single resolution. The
	// shared work must not die with whichever caller started it; every store
	// lookup is still bounded by the lookup timeout.
	v, _, _ := r.flights.Do(key, func() (any, error) {
		return r.resolveAndStore(context.WithoutCancel(ctx), *principal), nil
	})
	identity := v.(*Identity)

	span.SetAttributes(
		attribute.String(telemetry.AttrUserID, identity.UserID),
		attribute.Int(telemetry.AttrRoleCount, len(identity.RoleCodes)),
		attribute.Int(telemetry.AttrPermCount, len(identity.PermissionCodes)),
	)
	telemetry.RecordResolution(telemetry.OutcomeResolved, time.Since(started))
	return identity.Clone(), nil
}

// ClearIdentityCache evicts every cached identity. Call it after changing any
// role or permission so the next resolution reads fresh data.
func (r *Resolver) ClearIdentityCache(ctx context.Context) {
	r.mu.Lock()
	r.generation++
	r.cache.Clear(ctx)
	r.mu.Unlock()
	telemetry.RecordCacheInvalidation()
}

func (r *Resolver) currentPrincipal(ctx context.Context) (*Principal, error) {
	lctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	p, err := r.deps.Session.CurrentUser(lctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	authUID := strings.TrimSpace(p.AuthUID)
	if authUID == "" {
		return nil, nil
	}
	return &Principal{AuthUID: authUID, Email: strings.TrimSpace(p.Email)}, nil
}

// forgetAnonymous drops cached state when there is no principal. A shared
// cache belongs to other principals too and is left intact.
func (r *Resolver) forgetAnonymous(ctx context.Context) {
	if r.sharedCache {
		return
	}
	r.ClearIdentityCache(ctx)
}

func (r *Resolver) cachedIdentity(ctx context.Context, authUID string) (*Identity, bool) {
	entry, ok := r.cache.Get(ctx, authUID)
	if !ok {
		return nil, false
	}
	if !entry.Fresh(authUID, r.now()) {
		r.cache.Delete(ctx, authUID)
		return nil, false
	}
	return entry.Identity.Clone(), true
}

func (r *Resolver) resolveAndStore(ctx context.Context, principal Principal) *Identity {
	r.mu.Lock()
	generation := r.generation
	r.mu.Unlock()

	identity := r.assemble(ctx, principal)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != generation {
		r.logger.WithField("auth_uid", principal.AuthUID).
			Debug("identity cache cleared during resolution; result not cached")
		return identity
	}
	r.cache.Set(ctx, &CacheEntry{
		AuthUID:   principal.AuthUID,
		Identity:  identity,
		ExpiresAt: r.now().Add(r.ttl),
	})
	return identity
}

// assemble runs the resolution chain: profile view, raw user fallback, then
// department resolution concurrently with role and permission aggregation.
func (r *Resolver) assemble(ctx context.Context, principal Principal) *Identity {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.assemble",
		attribute.String(telemetry.AttrAuthUID, principal.AuthUID),
	)
	defer span.End()

	profile := r.resolveProfile(ctx, principal.AuthUID, principal.Email)
	var user *models.User
	if profile == nil {
		user = r.resolveUserRow(ctx, principal.AuthUID, principal.Email)
	}

	userID := principal.AuthUID
	switch {
	case profile != nil && strings.TrimSpace(profile.UserID) != "":
		userID = strings.TrimSpace(profile.UserID)
	case user != nil && strings.TrimSpace(user.ID) != "":
		userID = strings.TrimSpace(user.ID)
	}

	var viewRoles, viewPerms orderedSet
	var preferredRole string
	if profile != nil {
		viewRoles.add(profile.RoleCodes...)
		viewPerms.add(profile.PermissionCodes...)
		if profile.PrimaryRoleCode != nil {
			preferredRole = *profile.PrimaryRoleCode
		}
	}

	var (
		dept      Department
		roles     RoleSet
		rolePerms PermissionSet
		userPerms PermissionSet
		g         errgroup.Group
	)

	g.Go(func() error {
		dept = r.resolveDepartment(ctx, userID, profile, user)
		return nil
	})

	if len(viewPerms.items) == 0 {
		g.Go(func() error {
			userPerms = r.GetUserPermissions(ctx, userID)
			return nil
		})
	}

	g.Go(func() error {
		if len(viewRoles.items) > 0 {
			roles = RoleSet{RoleIDs: []string{}, RoleCodes: viewRoles.list()}
		} else {
			roles = r.GetUserRoles(ctx, userID)
		}
		if len(viewPerms.items) == 0 {
			rolePerms = r.GetRolePermissions(ctx, roles.RoleIDs)
		}
		return nil
	})

	_ = g.Wait()

	var perms PermissionSet
	if len(viewPerms.items) > 0 {
		perms = PermissionSet{PermissionIDs: []string{}, PermissionCodes: viewPerms.list()}
	} else {
		perms = MergePermissions(rolePerms, userPerms)
	}

	identity := &Identity{
		AuthUID:         principal.AuthUID,
		UserID:          userID,
		Email:           firstNonEmpty(principal.Email, profileEmail(profile), userEmail(user)),
		RoleIDs:         nonNil(roles.RoleIDs),
		RoleCodes:       nonNil(roles.RoleCodes),
		PermissionIDs:   nonNil(perms.PermissionIDs),
		PermissionCodes: nonNil(perms.PermissionCodes),
		PermissionMeta:  perms.PermissionMeta,
		PrimaryRoleCode: PickPrimaryRole(roles.RoleCodes, preferredRole, r.rolePriority),
		IsSuperAdmin:    (profile != nil && profile.IsSuperAdmin) || hasCodeFold(roles.RoleCodes, "super-admin"),
		IsAdmin:         (profile != nil && profile.IsAdmin) || hasCodeFold(roles.RoleCodes, "admin"),
		DepartmentID:    dept.ID,
		DepartmentPath:  dept.Path,
		DepartmentLevel: dept.Level,
	}
	return identity
}

// lookupFailed logs a fail-soft lookup error. Missing rows are expected and
// are not failures.
func (r *Resolver) lookupFailed(step, key string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		return
	}
	telemetry.RecordLookupFailure(step)
	r.logger.WithError(err).WithFields(logrus.Fields{
		"step": step,
		"key":  key,
	}).Debug("identity lookup failed; continuing without it")
}

// lookup runs one bounded store call, converting any failure into nil.
func lookup[T any](r *Resolver, ctx context.Context, step, key string, fn func(context.Context, string) (*T, error)) *T {
	lctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	v, err := fn(lctx, key)
	if err != nil {
		r.lookupFailed(step, key, err)
		return nil
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func profileEmail(p *models.UserProfile) string {
	if p == nil || p.Email == nil {
		return ""
	}
	return *p.Email
}

func userEmail(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.Email
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
