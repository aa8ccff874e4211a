package navigation

import "github.com/trezcool/masomo-web/core/user"

var (
	adminOnly   = []user.Role{user.RoleAdmin}
	teacherOnly = []user.Role{user.RoleTeacher}
	studentOnly = []user.Role{user.RoleStudent}
	everyone    = []user.Role{user.RoleAdmin, user.RoleTeacher, user.RoleStudent}
)

// DefaultRoutes is the portal route table. Order drives menu order.
func DefaultRoutes() []RouteDescriptor {
	return []RouteDescriptor{
		// Admin portal
		{
			ID: "admin-dashboard", Label: "Dashboard", Path: AdminLanding, AllowedRoles: adminOnly,
			Meta: Meta{Icon: "dashboard", Description: "School wide statistics"},
		},
		{
			ID: "admin-users", Label: "Users", Path: "/admin/users", AllowedRoles: adminOnly,
			Meta: Meta{Icon: "people", Description: "Every admin, teacher and student"},
		},
		{
			ID: "admin-classes", Label: "Classes", Path: "/admin/classes", AllowedRoles: adminOnly,
			Meta: Meta{Icon: "school", Description: "Every class of the school"},
		},

		// Teacher portal
		{
			ID: "teacher-dashboard", Label: "Dashboard", Path: TeacherLanding, AllowedRoles: teacherOnly,
			Meta: Meta{Icon: "dashboard", Description: "Your classes at a glance"},
		},
		{
			ID: "teacher-classes", Label: "My Classes", Path: "/teacher/classes", AllowedRoles: teacherOnly,
			Meta: Meta{Icon: "class", Description: "Create and manage your classes"},
		},
		{
			ID: "teacher-class", Label: "Class", Path: "/teacher/classes/:id", AllowedRoles: teacherOnly,
			Meta: Meta{Description: "Class roster", Hidden: true},
		},
		{
			ID: "teacher-class-invite", Label: "Invite", Path: "/teacher/classes/:id/invite", AllowedRoles: teacherOnly,
			Meta: Meta{Hidden: true},
		},
		{
			ID: "teacher-class-join-code", Label: "Regenerate join code", Path: "/teacher/classes/:id/join-code",
			AllowedRoles: teacherOnly, Meta: Meta{Hidden: true},
		},
		{
			ID: "teacher-class-delete", Label: "Delete class", Path: "/teacher/classes/:id/delete", AllowedRoles: teacherOnly,
			Meta: Meta{Hidden: true},
		},
		{
			ID: "teacher-member-promote", Label: "Promote member", Path: "/teacher/classes/:id/members/:member/promote",
			AllowedRoles: teacherOnly, Meta: Meta{Hidden: true},
		},
		{
			ID: "teacher-member-demote", Label: "Demote member", Path: "/teacher/classes/:id/members/:member/demote",
			AllowedRoles: teacherOnly, Meta: Meta{Hidden: true},
		},
		{
			ID: "teacher-member-remove", Label: "Remove member", Path: "/teacher/classes/:id/members/:member/remove",
			AllowedRoles: teacherOnly, Meta: Meta{Hidden: true},
		},
		{
			ID: "teacher-exams", Label: "Exams", Path: "/teacher/exams", AllowedRoles: teacherOnly,
			Meta: Meta{Icon: "assignment", Description: "Exams of your classes"},
		},
		{
			ID: "teacher-exam-new", Label: "New Exam", Path: "/teacher/exams/new", AllowedRoles: teacherOnly,
			Meta: Meta{Icon: "note_add", Description: "Create an exam"},
		},

		// Student portal
		{
			ID: "student-dashboard", Label: "Dashboard", Path: StudentLanding, AllowedRoles: studentOnly,
			Meta: Meta{Icon: "dashboard", Description: "Your progress"},
		},
		{
			ID: "student-classes", Label: "My Classes", Path: "/student/classes", AllowedRoles: studentOnly,
			Meta: Meta{Icon: "class", Description: "Classes you are enrolled in"},
		},
		{
			ID: "student-class-join", Label: "Join a class", Path: "/student/classes/join", AllowedRoles: studentOnly,
			Meta: Meta{Hidden: true},
		},
		{
			ID: "student-exams", Label: "Exams", Path: "/student/exams", AllowedRoles: studentOnly,
			Meta: Meta{Icon: "assignment", Description: "Upcoming and past exams"},
		},

		// Shared
		{
			ID: "profile", Label: "Profile", Path: "/profile", AllowedRoles: everyone,
			Meta: Meta{Icon: "account_circle", Description: "Your account"},
		},
	}
}

// DefaultRegistry builds the Registry of DefaultRoutes.
func DefaultRegistry() *Registry {
	return MustNew(DefaultRoutes()...)
}
