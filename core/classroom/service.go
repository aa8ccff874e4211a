// Package classroom reshapes what the classes API returns into what the portal pages show.
package classroom

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"sort"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/user"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("permission denied")

	recentClassesLimit = 5
)

type (
	// API is the part of the classes API used by the portal.
	API interface {
		ListClasses(ctx context.Context, token string) ([]Class, error)
		GetClass(ctx context.Context, token, id string) (Class, error)
		CreateClass(ctx context.Context, token string, nc NewClass) (Class, error)
		JoinClass(ctx context.Context, token, joinCode string) (Class, error)
		PromoteMember(ctx context.Context, token, classID, userID string) (Member, error)
		DemoteMember(ctx context.Context, token, classID, userID string) (Member, error)
		RemoveMember(ctx context.Context, token, classID, userID string) error
		DeleteClass(ctx context.Context, token, id string) error
		RegenerateJoinCode(ctx context.Context, token, id string) (string, error)
		ListExams(ctx context.Context, token string) ([]Exam, error)
		CreateExam(ctx context.Context, token string, ne NewExam) (Exam, error)
		ListUsers(ctx context.Context, token string) ([]user.User, error)
		AdminStats(ctx context.Context, token string) (AdminStats, error)
		TeacherStats(ctx context.Context, token string) (TeacherStats, error)
		StudentStats(ctx context.Context, token string) (StudentStats, error)
	}

	Service interface {
		AdminDashboard(ctx context.Context, a Actor) (AdminDashboard, error)
		TeacherDashboard(ctx context.Context, a Actor) (TeacherDashboard, error)
		StudentDashboard(ctx context.Context, a Actor) (StudentDashboard, error)

		ListClasses(ctx context.Context, a Actor) ([]ClassCard, error)
		GetClass(ctx context.Context, a Actor, id string) (Class, error)
		CreateClass(ctx context.Context, a Actor, nc NewClass) (Class, error)
		JoinClass(ctx context.Context, a Actor, jr JoinRequest) (Class, error)
		InviteToClass(ctx context.Context, a Actor, classID string, inv Invitation) (int, error)
		PromoteMember(ctx context.Context, a Actor, classID, userID string) (Member, error)
		DemoteMember(ctx context.Context, a Actor, classID, userID string) (Member, error)
		RemoveMember(ctx context.Context, a Actor, classID, userID string) error
		DeleteClass(ctx context.Context, a Actor, id string) error
		RegenerateJoinCode(ctx context.Context, a Actor, id string) (string, error)

		ListExams(ctx context.Context, a Actor) ([]Exam, error)
		CreateExam(ctx context.Context, a Actor, ne NewExam) (Exam, error)

		ListUsers(ctx context.Context, a Actor) ([]user.User, error)
	}

	service struct {
		api        API
		mailSvc    core.EmailService
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	api API,
	mailSvc core.EmailService,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
) Service {
	return &service{
		api:        api,
		mailSvc:    mailSvc,
		validate:   validate,
		translator: translator,
		logger:     logger,
	}
}

// Dashboards

func (svc *service) AdminDashboard(ctx context.Context, a Actor) (AdminDashboard, error) {
	var (
		stats   AdminStats
		classes []Class
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = svc.api.AdminStats(gctx, a.Token)
		return errors.Wrap(err, "fetching admin stats")
	})
	g.Go(func() error {
		var err error
		classes, err = svc.api.ListClasses(gctx, a.Token)
		return errors.Wrap(err, "listing classes")
	})
	if err := g.Wait(); err != nil {
		return AdminDashboard{}, err
	}

	dash := AdminDashboard{
		TotalUsers:    stats.TotalUsers,
		ActiveUsers:   stats.ActiveUsers,
		ActivePercent: percent(float64(stats.ActiveUsers), float64(stats.TotalUsers)),
		Classes:       stats.Classes,
		Exams:         stats.Exams,
		Roles:         make([]RoleShare, 0, len(user.AllRoles)),
	}
	for _, role := range user.AllRoles {
		count := stats.UsersByRole[role.String()]
		dash.Roles = append(dash.Roles, RoleShare{
			Role:    role,
			Label:   role.Label(),
			Count:   count,
			Percent: percent(float64(count), float64(stats.TotalUsers)),
		})
	}

	sort.SliceStable(classes, func(i, j int) bool { return classes[i].CreatedAt.After(classes[j].CreatedAt) })
	if len(classes) > recentClassesLimit {
		classes = classes[:recentClassesLimit]
	}
	dash.RecentClasses = classCards(classes)
	return dash, nil
}

func (svc *service) TeacherDashboard(ctx context.Context, a Actor) (TeacherDashboard, error) {
	stats, err := svc.api.TeacherStats(ctx, a.Token)
	if err != nil {
		return TeacherDashboard{}, errors.Wrap(err, "fetching teacher stats")
	}

	dash := TeacherDashboard{
		Classes:  stats.Classes,
		Students: stats.Students,
		Exams:    make([]ExamCard, 0, len(stats.Exams)),
	}
	var submitted, expected int
	for _, ep := range stats.Exams {
		dash.Exams = append(dash.Exams, ExamCard{
			ID:             ep.ExamID,
			Title:          ep.Title,
			ClassName:      ep.ClassName,
			StartsAt:       formatTime(ep.StartsAt),
			Submitted:      ep.Submitted,
			Expected:       ep.Expected,
			CompletionRate: percent(float64(ep.Submitted), float64(ep.Expected)),
		})
		submitted += ep.Submitted
		expected += ep.Expected
	}
	dash.AverageCompletion = percent(float64(submitted), float64(expected))
	return dash, nil
}

func (svc *service) StudentDashboard(ctx context.Context, a Actor) (StudentDashboard, error) {
	stats, err := svc.api.StudentStats(ctx, a.Token)
	if err != nil {
		return StudentDashboard{}, errors.Wrap(err, "fetching student stats")
	}

	exams := append([]Exam(nil), stats.UpcomingExams...)
	sort.SliceStable(exams, func(i, j int) bool { return exams[i].StartsAt.Before(exams[j].StartsAt) })

	dash := StudentDashboard{
		Classes:       stats.Classes,
		UpcomingExams: make([]ExamCard, 0, len(exams)),
		Scores:        make([]ScoreCard, 0, len(stats.Scores)),
	}
	for _, e := range exams {
		dash.UpcomingExams = append(dash.UpcomingExams, ExamCard{
			ID:        e.ID,
			Title:     e.Title,
			ClassName: e.ClassName,
			StartsAt:  formatTime(e.StartsAt),
		})
	}

	var score, maxScore float64
	for _, s := range stats.Scores {
		dash.Scores = append(dash.Scores, ScoreCard{
			Title:   s.Title,
			Percent: percent(s.Score, s.MaxScore),
			TakenAt: formatTime(s.TakenAt),
		})
		score += s.Score
		maxScore += s.MaxScore
	}
	dash.AverageScore = percent(score, maxScore)
	return dash, nil
}

// Classes

func (svc *service) ListClasses(ctx context.Context, a Actor) ([]ClassCard, error) {
	classes, err := svc.api.ListClasses(ctx, a.Token)
	if err != nil {
		return nil, errors.Wrap(err, "listing classes")
	}
	sort.SliceStable(classes, func(i, j int) bool {
		return strings.ToLower(classes[i].Name) < strings.ToLower(classes[j].Name)
	})
	return classCards(classes), nil
}

// GetClass returns the class with its roster ordered owner first, then teachers, then students.
func (svc *service) GetClass(ctx context.Context, a Actor, id string) (Class, error) {
	class, err := svc.api.GetClass(ctx, a.Token, id)
	if err != nil {
		return Class{}, errors.Wrap(err, "getting class")
	}
	SortMembers(class.Members)
	return class, nil
}

func (svc *service) CreateClass(ctx context.Context, a Actor, nc NewClass) (Class, error) {
	if err := nc.Validate(svc.validate, svc.translator); err != nil {
		return Class{}, err
	}
	class, err := svc.api.CreateClass(ctx, a.Token, nc)
	if err != nil {
		return Class{}, errors.Wrap(err, "creating class")
	}
	svc.logger.Info(fmt.Sprintf("class %q created", class.ID), a.User)
	return class, nil
}

func (svc *service) JoinClass(ctx context.Context, a Actor, jr JoinRequest) (Class, error) {
	if err := jr.Validate(svc.validate, svc.translator); err != nil {
		return Class{}, err
	}
	class, err := svc.api.JoinClass(ctx, a.Token, jr.JoinCode)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Class{}, core.NewFieldError("join_code", "no class matches this code")
		}
		return Class{}, errors.Wrap(err, "joining class")
	}
	return class, nil
}

// InviteToClass emails the class join code to every invitee and returns how many were invited.
func (svc *service) InviteToClass(ctx context.Context, a Actor, classID string, inv Invitation) (int, error) {
	if err := inv.Validate(svc.validate, svc.translator); err != nil {
		return 0, err
	}
	class, err := svc.api.GetClass(ctx, a.Token, classID)
	if err != nil {
		return 0, errors.Wrap(err, "getting class")
	}
	if class.JoinCode == "" {
		return 0, errors.Wrap(ErrForbidden, "class has no join code")
	}

	data := struct {
		ClassName string
		Subject   string
		Teacher   string
		JoinCode  string
		Message   string
	}{
		ClassName: class.Name,
		Subject:   class.Subject,
		Teacher:   a.User.Name,
		JoinCode:  class.JoinCode,
		Message:   inv.Message,
	}

	msgs := make([]*core.EmailMessage, 0, len(inv.Emails))
	for _, email := range inv.Emails {
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Address: email}},
			Subject:      fmt.Sprintf("%s invited you to %s", a.User.Name, class.Name),
			TemplateName: "class_invite",
			TemplateData: data,
		})
	}
	svc.mailSvc.SendMessages(msgs...)
	return len(msgs), nil
}

func (svc *service) PromoteMember(ctx context.Context, a Actor, classID, userID string) (Member, error) {
	m, err := svc.api.PromoteMember(ctx, a.Token, classID, userID)
	return m, errors.Wrap(err, "promoting member")
}

func (svc *service) DemoteMember(ctx context.Context, a Actor, classID, userID string) (Member, error) {
	m, err := svc.api.DemoteMember(ctx, a.Token, classID, userID)
	return m, errors.Wrap(err, "demoting member")
}

func (svc *service) RemoveMember(ctx context.Context, a Actor, classID, userID string) error {
	if userID == a.User.ID {
		return errors.Wrap(ErrForbidden, "removing yourself")
	}
	return errors.Wrap(svc.api.RemoveMember(ctx, a.Token, classID, userID), "removing member")
}

func (svc *service) DeleteClass(ctx context.Context, a Actor, id string) error {
	if err := svc.api.DeleteClass(ctx, a.Token, id); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	svc.logger.Info(fmt.Sprintf("class %q deleted", id), a.User)
	return nil
}

// RegenerateJoinCode returns the new join code of the class, upper-cased.
func (svc *service) RegenerateJoinCode(ctx context.Context, a Actor, id string) (string, error) {
	code, err := svc.api.RegenerateJoinCode(ctx, a.Token, id)
	if err != nil {
		return "", errors.Wrap(err, "regenerating join code")
	}
	return strings.ToUpper(code), nil
}

// Exams

func (svc *service) ListExams(ctx context.Context, a Actor) ([]Exam, error) {
	exams, err := svc.api.ListExams(ctx, a.Token)
	if err != nil {
		return nil, errors.Wrap(err, "listing exams")
	}
	now := NowFunc()
	for i := range exams {
		exams[i].Status = examStatus(exams[i], now)
	}
	sort.SliceStable(exams, func(i, j int) bool { return exams[i].StartsAt.Before(exams[j].StartsAt) })
	return exams, nil
}

func (svc *service) CreateExam(ctx context.Context, a Actor, ne NewExam) (Exam, error) {
	if err := ne.Validate(svc.validate, svc.translator); err != nil {
		return Exam{}, err
	}
	exam, err := svc.api.CreateExam(ctx, a.Token, ne)
	if err != nil {
		return Exam{}, errors.Wrap(err, "creating exam")
	}
	exam.Status = examStatus(exam, NowFunc())
	return exam, nil
}

// Users

// ListUsers returns every user, admins first, then by name.
func (svc *service) ListUsers(ctx context.Context, a Actor) ([]user.User, error) {
	users, err := svc.api.ListUsers(ctx, a.Token)
	if err != nil {
		return nil, errors.Wrap(err, "listing users")
	}
	sort.SliceStable(users, func(i, j int) bool {
		pi, pj := users[i].Role.Priority(), users[j].Role.Priority()
		if pi != pj {
			return pi > pj
		}
		return strings.ToLower(users[i].Name) < strings.ToLower(users[j].Name)
	})
	return users, nil
}

// Helpers

// SortMembers orders a roster: owner, teachers, students, each by name.
func SortMembers(members []Member) {
	sort.SliceStable(members, func(i, j int) bool {
		ri, rj := memberRoleRank[members[i].Role], memberRoleRank[members[j].Role]
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(members[i].Name) < strings.ToLower(members[j].Name)
	})
}

func classCards(classes []Class) []ClassCard {
	cards := make([]ClassCard, 0, len(classes))
	for _, c := range classes {
		cards = append(cards, ClassCard{
			ID:          c.ID,
			Name:        c.Name,
			Subject:     c.Subject,
			Owner:       c.OwnerName,
			MemberCount: c.MemberCount,
			CreatedAt:   formatTime(c.CreatedAt),
		})
	}
	return cards
}

func examStatus(e Exam, now time.Time) ExamStatus {
	end := e.StartsAt.Add(time.Duration(e.DurationMinutes) * time.Minute)
	switch {
	case now.Before(e.StartsAt):
		return ExamScheduled
	case now.Before(end):
		return ExamOpen
	default:
		return ExamClosed
	}
}

// percent returns part/total as a percentage rounded to 1 decimal; 0 when total is 0.
func percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(part/total*1000) / 10
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DisplayTimeLayout)
}
