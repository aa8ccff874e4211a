// Package gate decides whether a session may see a portal route.
//
// The gate reads a session.Session snapshot and the navigation.Registry; it never
// resolves credentials itself and never fails. Each evaluation ends in one of four
// states, and at most one redirect.
package gate

import (
	"github.com/trezcool/masomo-web/core/navigation"
	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/core/user"
)

type State int

const (
	// Resolving: the session is not known yet. Render a waiting indicator, nothing else.
	Resolving State = iota
	// Unauthenticated: no user. Redirect to login with the requested path as intent.
	Unauthenticated
	// Unauthorized: the user's role may not see the route. Redirect to the role's landing.
	Unauthorized
	// Authorized: render the route.
	Authorized
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// UnregisteredPolicy tells the gate what to do with paths missing from the Registry.
type UnregisteredPolicy int

const (
	DenyUnregistered UnregisteredPolicy = iota
	AllowUnregistered
)

// ParseUnregisteredPolicy maps "allow" to AllowUnregistered; anything else denies.
func ParseUnregisteredPolicy(s string) UnregisteredPolicy {
	if s == "allow" {
		return AllowUnregistered
	}
	return DenyUnregistered
}

// NavigationIntent is where the user was going before being sent to login.
type NavigationIntent struct {
	Path string
}

// Redirect is a navigation the gate asks for. Replace redirects do not leave the gated route in history.
type Redirect struct {
	Path    string
	Replace bool
	Intent  *NavigationIntent
}

type Decision struct {
	State    State
	Redirect *Redirect
}

// Render reports whether the protected content may be rendered.
func (d Decision) Render() bool {
	return d.State == Authorized
}

// Policy is the role check of a gated route, on top of the Registry check.
type Policy struct {
	required *user.Role
	allowed  []user.Role
}

// RequireRole only lets `role` through.
func RequireRole(role user.Role) Policy {
	return Policy{required: &role}
}

// AllowRoles lets any of `roles` through. No roles means no extra check.
func AllowRoles(roles ...user.Role) Policy {
	return Policy{allowed: append([]user.Role(nil), roles...)}
}

// AnyRole only relies on the Registry.
func AnyRole() Policy {
	return Policy{}
}

func (p Policy) permits(role user.Role) bool {
	if p.required != nil && role != *p.required {
		return false
	}
	if len(p.allowed) > 0 && !user.RoleIn(role, p.allowed) {
		return false
	}
	return true
}

type Gate struct {
	registry     *navigation.Registry
	loginPath    string
	unregistered UnregisteredPolicy
}

type Option func(*Gate)

func WithLoginPath(path string) Option {
	return func(g *Gate) {
		if path != "" {
			g.loginPath = path
		}
	}
}

func WithUnregisteredPaths(policy UnregisteredPolicy) Option {
	return func(g *Gate) { g.unregistered = policy }
}

func New(registry *navigation.Registry, opts ...Option) *Gate {
	g := &Gate{
		registry:     registry,
		loginPath:    navigation.LoginPath,
		unregistered: DenyUnregistered,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) LoginPath() string {
	return g.loginPath
}

// UnregisteredPaths returns the policy applied to paths missing from the Registry.
func (g *Gate) UnregisteredPaths() UnregisteredPolicy {
	return g.unregistered
}

// Registry returns the navigation.Registry the gate checks against.
func (g *Gate) Registry() *navigation.Registry {
	return g.registry
}

// Evaluate decides what to do with a session `s` requesting the route `path`.
// `intent` is what login should bring the user back to; it defaults to `path`.
func (g *Gate) Evaluate(s session.Session, path string, policy Policy, intent ...string) Decision {
	if s.IsResolving {
		return Decision{State: Resolving}
	}

	if s.User == nil {
		target := path
		if len(intent) > 0 && intent[0] != "" {
			target = intent[0]
		}
		return Decision{
			State:    Unauthenticated,
			Redirect: &Redirect{Path: g.loginPath, Replace: true, Intent: &NavigationIntent{Path: target}},
		}
	}

	role := s.User.Role
	if policy.permits(role) && g.routeAllows(role, path) {
		return Decision{State: Authorized}
	}

	landing := navigation.LandingFor(role)
	if landing == path {
		// the registry refuses a role its own landing: send to login rather than loop
		landing = g.loginPath
	}
	return Decision{State: Unauthorized, Redirect: &Redirect{Path: landing, Replace: true}}
}

func (g *Gate) routeAllows(role user.Role, path string) bool {
	if g.unregistered == AllowUnregistered && !g.registry.IsRegistered(path) {
		return true
	}
	return g.registry.CanAccessRoute(role, path)
}

// Guard evaluates the gate and hands its redirect, if any, to `nav`.
// It returns the Decision; only Authorized decisions may render.
func (g *Gate) Guard(s session.Session, path string, policy Policy, nav Navigator, intent ...string) Decision {
	d := g.Evaluate(s, path, policy, intent...)
	if d.Redirect != nil {
		nav.Redirect(*d.Redirect)
	}
	return d
}
