// Package navigation holds the table of portal routes and the roles allowed to reach them.
//
// Paths are matched as exact strings. There is no prefix or wildcard matching:
// "/teacher/classes" does not cover "/teacher/classes/:id", each path must be registered on its own.
// Parametrised routes are registered with their router template ("/teacher/classes/:id").
package navigation

import (
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/user"
)

type (
	Meta struct {
		Icon        string `json:"icon,omitempty"`
		Description string `json:"description,omitempty"`
		Hidden      bool   `json:"-"` // not rendered in menus; still checked
	}

	RouteDescriptor struct {
		ID           string      `json:"id"`
		Label        string      `json:"label"`
		Path         string      `json:"path"`
		AllowedRoles []user.Role `json:"allowed_roles"`
		Meta         Meta        `json:"meta"`
	}

	// Registry is read-only once built and safe for concurrent use.
	Registry struct {
		routes []RouteDescriptor
		byPath map[string]int
	}
)

// New builds a Registry, keeping `routes` order.
// IDs and paths must be unique; every route needs at least one valid role.
func New(routes ...RouteDescriptor) (*Registry, error) {
	reg := &Registry{
		routes: make([]RouteDescriptor, 0, len(routes)),
		byPath: make(map[string]int, len(routes)),
	}
	ids := make(map[string]struct{}, len(routes))

	for _, rd := range routes {
		if rd.ID == "" {
			return nil, core.NewFieldError("id", "route id is required")
		}
		if _, dup := ids[rd.ID]; dup {
			return nil, core.NewFieldError("id", "duplicate route id "+rd.ID)
		}
		if rd.Path == "" || rd.Path[0] != '/' {
			return nil, core.NewFieldError("path", "route "+rd.ID+" needs an absolute path")
		}
		if _, dup := reg.byPath[rd.Path]; dup {
			return nil, core.NewFieldError("path", "duplicate route path "+rd.Path)
		}
		if len(rd.AllowedRoles) == 0 {
			return nil, core.NewFieldError("allowed_roles", "route "+rd.ID+" allows no role")
		}
		for _, role := range rd.AllowedRoles {
			if !role.Valid() {
				return nil, core.NewValidationError(
					errors.Wrapf(user.ErrInvalidRole, "route %s", rd.ID),
					core.FieldError{Field: "allowed_roles", Error: "invalid role " + string(role)},
				)
			}
		}

		rd.AllowedRoles = append([]user.Role(nil), rd.AllowedRoles...)
		ids[rd.ID] = struct{}{}
		reg.byPath[rd.Path] = len(reg.routes)
		reg.routes = append(reg.routes, rd)
	}
	return reg, nil
}

// MustNew is like New but panics on error. Intended for static tables.
func MustNew(routes ...RouteDescriptor) *Registry {
	reg, err := New(routes...)
	if err != nil {
		panic(errors.Wrap(err, "building navigation registry"))
	}
	return reg
}

// Lookup returns the descriptor registered for `path`.
func (reg *Registry) Lookup(path string) (RouteDescriptor, bool) {
	idx, ok := reg.byPath[path]
	if !ok {
		return RouteDescriptor{}, false
	}
	return copyRoute(reg.routes[idx]), true
}

// AllowedRolesFor returns the roles allowed on `path`, or false if `path` is not registered.
func (reg *Registry) AllowedRolesFor(path string) ([]user.Role, bool) {
	idx, ok := reg.byPath[path]
	if !ok {
		return nil, false
	}
	return append([]user.Role(nil), reg.routes[idx].AllowedRoles...), true
}

// CanAccessRoute reports whether `role` may reach `path`. Unregistered paths are denied.
func (reg *Registry) CanAccessRoute(role user.Role, path string) bool {
	idx, ok := reg.byPath[path]
	if !ok {
		return false
	}
	return user.RoleIn(role, reg.routes[idx].AllowedRoles)
}

// IsRegistered reports whether `path` has a descriptor.
func (reg *Registry) IsRegistered(path string) bool {
	_, ok := reg.byPath[path]
	return ok
}

// NavigationFor returns every route `role` may reach, in registration order.
func (reg *Registry) NavigationFor(role user.Role) []RouteDescriptor {
	nav := make([]RouteDescriptor, 0)
	for _, rd := range reg.routes {
		if user.RoleIn(role, rd.AllowedRoles) {
			nav = append(nav, copyRoute(rd))
		}
	}
	return nav
}

// MenuFor is NavigationFor without the hidden routes.
func (reg *Registry) MenuFor(role user.Role) []RouteDescriptor {
	nav := reg.NavigationFor(role)
	menu := nav[:0]
	for _, rd := range nav {
		if !rd.Meta.Hidden {
			menu = append(menu, rd)
		}
	}
	return menu
}

// Routes returns all the registered routes, in registration order.
func (reg *Registry) Routes() []RouteDescriptor {
	routes := make([]RouteDescriptor, 0, len(reg.routes))
	for _, rd := range reg.routes {
		routes = append(routes, copyRoute(rd))
	}
	return routes
}

func copyRoute(rd RouteDescriptor) RouteDescriptor {
	rd.AllowedRoles = append([]user.Role(nil), rd.AllowedRoles...)
	return rd
}
