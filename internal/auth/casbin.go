package auth

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/util"
)

//go:embed model.conf
var casbinModelContent string

// PermissionChecker is satisfied by the identity view handed to the guard.
type PermissionChecker interface {
	HasPerm(code string) bool
}

// RoutePolicy requires Permission for requests matching Path (keyMatch2
// syntax, e.g. /api/iam/users/:userID/roles) and Method ("*" for any).
type RoutePolicy struct {
	Permission string
	Path       string
	Method     string
}

// DefaultRoutePolicies guard the administrative IAM endpoints.
var DefaultRoutePolicies = []RoutePolicy{
	{Permission: "iam.roles.view", Path: "/api/iam/users/:userID/roles", Method: http.MethodGet},
	{Permission: "iam.permissions.view", Path: "/api/iam/users/:userID/permissions", Method: http.MethodGet},
	{Permission: "iam.roles.assign", Path: "/api/iam/users/:userID/roles", Method: http.MethodPost},
	{Permission: "iam.roles.assign", Path: "/api/iam/users/:userID/roles/:roleCode", Method: http.MethodDelete},
	{Permission: "iam.permissions.grant", Path: "/api/iam/users/:userID/permissions", Method: http.MethodPost},
	{Permission: "iam.permissions.grant", Path: "/api/iam/users/:userID/permissions/:permissionCode", Method: http.MethodDelete},
	{Permission: "iam.cache.clear", Path: "/api/iam/cache", Method: http.MethodDelete},
}

// RouteGuard decides whether an identity may call a route, based on the
// permission code each route requires.
type RouteGuard struct {
	enforcer *casbin.SyncedEnforcer
}

// NewRouteGuard builds a casbin enforcer from the embedded model and loads
// policies into it. A route without a policy is denied.
func NewRouteGuard(policies []RoutePolicy) (*RouteGuard, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	enforcer.AddFunction("hasPerm", hasPermFunction)

	rules := make([][]string, 0, len(policies))
	for _, p := range policies {
		if p.Permission == "" || p.Path == "" {
			return nil, fmt.Errorf("route policy requires permission and path: %+v", p)
		}
		method := p.Method
		if method == "" {
			method = "*"
		}
		rules = append(rules, []string{p.Permission, p.Path, method})
	}
	if len(rules) > 0 {
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return nil, fmt.Errorf("load route policies: %w", err)
		}
	}

	return &RouteGuard{enforcer: enforcer}, nil
}

// Allow reports whether checker may call method on path, given in the form
// the router matched it (RawPath when set). A nil checker is always denied.
func (g *RouteGuard) Allow(checker PermissionChecker, path, method string) (bool, error) {
	if checker == nil {
		return false, nil
	}
	allowed, err := g.enforcer.Enforce(checker, path, method)
	if err != nil {
		return false, fmt.Errorf("enforce route policy: %w", err)
	}
	return allowed, nil
}

// RequiredPermissions lists the permission codes guarding path and method.
// path takes the same form as for Allow.
func (g *RouteGuard) RequiredPermissions(path, method string) ([]string, error) {
	rules, err := g.enforcer.GetPolicy()
	if err != nil {
		return nil, fmt.Errorf("list route policies: %w", err)
	}
	var codes []string
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		if (rule[2] == method || rule[2] == "*") && util.KeyMatch2(path, rule[1]) {
			codes = append(codes, rule[0])
		}
	}
	return codes, nil
}

func hasPermFunction(args ...any) (any, error) {
	if len(args) != 2 {
		return false, errors.New("hasPerm expects 2 arguments")
	}
	checker, ok := args[0].(PermissionChecker)
	if !ok {
		return false, nil
	}
	code, ok := args[1].(string)
	if !ok {
		return false, nil
	}
	return checker.HasPerm(code), nil
}
