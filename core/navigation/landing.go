package navigation

import "github.com/trezcool/masomo-web/core/user"

// LoginPath is the login entry point of the portal.
const LoginPath = "/login"

// Landing paths
const (
	AdminLanding   = "/admin/dashboard"
	TeacherLanding = "/teacher/dashboard"
	StudentLanding = "/student/dashboard"
)

// LandingFor returns the home route of `role`: where its users are sent when a redirect is needed.
func LandingFor(role user.Role) string {
	switch role {
	case user.RoleAdmin:
		return AdminLanding
	case user.RoleTeacher:
		return TeacherLanding
	case user.RoleStudent:
		return StudentLanding
	default: // unreachable for parsed roles
		return LoginPath
	}
}
