package echoweb

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/classroom"
	"github.com/trezcool/masomo-web/core/gate"
	"github.com/trezcool/masomo-web/core/user"
)

var flashMessages = map[string]string{
	"class-created":  "Class created.",
	"class-deleted":  "Class deleted.",
	"code-renewed":   "A new join code was generated.",
	"member-updated": "Member updated.",
	"member-removed": "Member removed.",
	"joined":         "You joined the class.",
	"exam-created":   "Exam created.",
}

type pages struct {
	s   *server
	svc classroom.Service
}

func registerPortalPages(s *server) {
	p := pages{s: s, svc: s.deps.ClassroomSvc}

	admin := s.gateMiddleware(gate.RequireRole(user.RoleAdmin))
	s.app.GET("/admin/dashboard", p.adminDashboard, admin)
	s.app.GET("/admin/users", p.adminUsers, admin)
	s.app.GET("/admin/classes", p.adminClasses, admin)

	teacher := s.gateMiddleware(gate.RequireRole(user.RoleTeacher))
	s.app.GET("/teacher/dashboard", p.teacherDashboard, teacher)
	s.app.GET("/teacher/classes", p.teacherClasses, teacher)
	s.app.POST("/teacher/classes", p.createClass, teacher)
	s.app.GET("/teacher/classes/:id", p.teacherClass, teacher)
	s.app.POST("/teacher/classes/:id/invite", p.inviteToClass, teacher)
	s.app.POST("/teacher/classes/:id/join-code", p.regenerateJoinCode, teacher)
	s.app.POST("/teacher/classes/:id/delete", p.deleteClass, teacher)
	s.app.POST("/teacher/classes/:id/members/:member/promote", p.promoteMember, teacher)
	s.app.POST("/teacher/classes/:id/members/:member/demote", p.demoteMember, teacher)
	s.app.POST("/teacher/classes/:id/members/:member/remove", p.removeMember, teacher)
	s.app.GET("/teacher/exams", p.teacherExams, teacher)
	s.app.GET("/teacher/exams/new", p.newExam, teacher)
	s.app.POST("/teacher/exams/new", p.createExam, teacher)

	student := s.gateMiddleware(gate.RequireRole(user.RoleStudent))
	s.app.GET("/student/dashboard", p.studentDashboard, student)
	s.app.GET("/student/classes", p.studentClasses, student)
	s.app.POST("/student/classes/join", p.joinClass, student)
	s.app.GET("/student/exams", p.studentExams, student)

	anyUser := s.gateMiddleware(gate.AllowRoles(user.AllRoles...))
	s.app.GET("/profile", p.profile, anyUser)
}

func (p pages) render(ctx echo.Context, code int, name, title string, page Page) error {
	page.Title = title
	if page.Flash == "" {
		page.Flash = flashMessages[ctx.QueryParam("done")]
	}
	return p.s.render(ctx, code, name, page)
}

func redirectDone(ctx echo.Context, path, done string) error {
	return ctx.Redirect(http.StatusSeeOther, path+"?"+url.Values{"done": {done}}.Encode())
}

// formErrors returns the field errors of `err` if it is a validation error.
func formErrors(err error) (map[string]string, bool) {
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	if !ok {
		return nil, false
	}
	flds := vErr.FieldsMap()
	if len(flds) == 0 {
		flds = map[string]string{"form": vErr.Error()}
	}
	return flds, true
}

// Admin

func (p pages) adminDashboard(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	dash, err := p.svc.AdminDashboard(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "getting admin dashboard")
	}
	return p.render(ctx, http.StatusOK, "admin_dashboard", "Dashboard", Page{Data: dash})
}

func (p pages) adminUsers(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	users, err := p.svc.ListUsers(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "listing users")
	}
	return p.render(ctx, http.StatusOK, "admin_users", "Users", Page{Data: users})
}

func (p pages) adminClasses(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	classes, err := p.svc.ListClasses(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "listing classes")
	}
	return p.render(ctx, http.StatusOK, "admin_classes", "Classes", Page{Data: classes})
}

// Teacher

func (p pages) teacherDashboard(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	dash, err := p.svc.TeacherDashboard(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "getting teacher dashboard")
	}
	return p.render(ctx, http.StatusOK, "teacher_dashboard", "Dashboard", Page{Data: dash})
}

func (p pages) teacherClasses(ctx echo.Context) error {
	return p.renderTeacherClasses(ctx, http.StatusOK, classroom.NewClass{}, nil)
}

func (p pages) renderTeacherClasses(ctx echo.Context, code int, form classroom.NewClass, fldErrs map[string]string) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	classes, err := p.svc.ListClasses(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "listing classes")
	}
	return p.render(ctx, code, "teacher_classes", "My Classes", Page{Data: classes, Form: form, Errors: fldErrs})
}

func (p pages) createClass(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var form classroom.NewClass
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	class, err := p.svc.CreateClass(ctx.Request().Context(), a, form)
	if err != nil {
		if fldErrs, ok := formErrors(err); ok {
			return p.renderTeacherClasses(ctx, http.StatusBadRequest, form, fldErrs)
		}
		return errors.Wrap(err, "creating class")
	}
	return redirectDone(ctx, classPath(class.ID), "class-created")
}

func classPath(id string) string {
	return "/teacher/classes/" + url.PathEscape(id)
}

func (p pages) teacherClass(ctx echo.Context) error {
	return p.renderTeacherClass(ctx, http.StatusOK, nil, nil, "")
}

func (p pages) renderTeacherClass(ctx echo.Context, code int, form *classroom.Invitation, fldErrs map[string]string, flash string) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	class, err := p.svc.GetClass(ctx.Request().Context(), a, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting class")
	}
	page := Page{Data: class, Errors: fldErrs, Flash: flash}
	if form != nil {
		page.Form = *form
	}
	return p.render(ctx, code, "teacher_class", class.Name, page)
}

func (p pages) inviteToClass(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	inv := bindInvitation(ctx)
	n, err := p.svc.InviteToClass(ctx.Request().Context(), a, ctx.Param("id"), inv)
	if err != nil {
		if fldErrs, ok := formErrors(err); ok {
			return p.renderTeacherClass(ctx, http.StatusBadRequest, &inv, fldErrs, "")
		}
		return errors.Wrap(err, "inviting to class")
	}
	flash := "1 invitation sent."
	if n != 1 {
		flash = strconv.Itoa(n) + " invitations sent."
	}
	return p.renderTeacherClass(ctx, http.StatusOK, nil, nil, flash)
}

func (p pages) regenerateJoinCode(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if _, err = p.svc.RegenerateJoinCode(ctx.Request().Context(), a, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "regenerating join code")
	}
	return redirectDone(ctx, classPath(ctx.Param("id")), "code-renewed")
}

func (p pages) deleteClass(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = p.svc.DeleteClass(ctx.Request().Context(), a, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return redirectDone(ctx, "/teacher/classes", "class-deleted")
}

func (p pages) promoteMember(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if _, err = p.svc.PromoteMember(ctx.Request().Context(), a, ctx.Param("id"), ctx.Param("member")); err != nil {
		return errors.Wrap(err, "promoting member")
	}
	return redirectDone(ctx, classPath(ctx.Param("id")), "member-updated")
}

func (p pages) demoteMember(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if _, err = p.svc.DemoteMember(ctx.Request().Context(), a, ctx.Param("id"), ctx.Param("member")); err != nil {
		return errors.Wrap(err, "demoting member")
	}
	return redirectDone(ctx, classPath(ctx.Param("id")), "member-updated")
}

func (p pages) removeMember(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = p.svc.RemoveMember(ctx.Request().Context(), a, ctx.Param("id"), ctx.Param("member")); err != nil {
		return errors.Wrap(err, "removing member")
	}
	return redirectDone(ctx, classPath(ctx.Param("id")), "member-removed")
}

func (p pages) teacherExams(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	exams, err := p.svc.ListExams(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "listing exams")
	}
	return p.render(ctx, http.StatusOK, "teacher_exams", "Exams", Page{Data: exams})
}

func (p pages) newExam(ctx echo.Context) error {
	return p.renderExamForm(ctx, http.StatusOK, newExamForm(), nil)
}

func (p pages) renderExamForm(ctx echo.Context, code int, form examForm, fldErrs map[string]string) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	classes, err := p.svc.ListClasses(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "listing classes")
	}
	return p.render(ctx, code, "teacher_exam_new", "New Exam", Page{Data: classes, Form: form, Errors: fldErrs})
}

func (p pages) createExam(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	form, err := bindExamForm(ctx)
	if err != nil {
		if fldErrs, ok := formErrors(err); ok {
			return p.renderExamForm(ctx, http.StatusBadRequest, form, fldErrs)
		}
		return err
	}
	if form.AddQuestion {
		return p.renderExamForm(ctx, http.StatusOK, form, nil)
	}

	if _, err = p.svc.CreateExam(ctx.Request().Context(), a, form.NewExam()); err != nil {
		if fldErrs, ok := formErrors(err); ok {
			return p.renderExamForm(ctx, http.StatusBadRequest, form, fldErrs)
		}
		return errors.Wrap(err, "creating exam")
	}
	return redirectDone(ctx, "/teacher/exams", "exam-created")
}

// Student

func (p pages) studentDashboard(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	dash, err := p.svc.StudentDashboard(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "getting student dashboard")
	}
	return p.render(ctx, http.StatusOK, "student_dashboard", "Dashboard", Page{Data: dash})
}

func (p pages) studentClasses(ctx echo.Context) error {
	return p.renderStudentClasses(ctx, http.StatusOK, classroom.JoinRequest{}, nil)
}

func (p pages) renderStudentClasses(ctx echo.Context, code int, form classroom.JoinRequest, fldErrs map[string]string) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	classes, err := p.svc.ListClasses(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "listing classes")
	}
	return p.render(ctx, code, "student_classes", "My Classes", Page{Data: classes, Form: form, Errors: fldErrs})
}

func (p pages) joinClass(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var form classroom.JoinRequest
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to JoinRequest")
	}
	if _, err = p.svc.JoinClass(ctx.Request().Context(), a, form); err != nil {
		if fldErrs, ok := formErrors(err); ok {
			return p.renderStudentClasses(ctx, http.StatusBadRequest, form, fldErrs)
		}
		return errors.Wrap(err, "joining class")
	}
	return redirectDone(ctx, "/student/classes", "joined")
}

func (p pages) studentExams(ctx echo.Context) error {
	a, err := contextActor(ctx)
	if err != nil {
		return err
	}
	exams, err := p.svc.ListExams(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "listing exams")
	}
	return p.render(ctx, http.StatusOK, "student_exams", "Exams", Page{Data: exams})
}

// Shared

func (p pages) profile(ctx echo.Context) error {
	return p.render(ctx, http.StatusOK, "profile", "Profile", Page{})
}
