package classroom

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/user"
	"github.com/trezcool/masomo-web/fs"
	"github.com/trezcool/masomo-web/services/email"
	"github.com/trezcool/masomo-web/tests"
)

var now = time.Date(2021, time.March, 1, 9, 0, 0, 0, time.UTC)

// fakeAPI serves canned answers and records the calls it gets.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	classes      []Class
	exams        []Exam
	users        []user.User
	adminStats   AdminStats
	teacherStats TeacherStats
	studentStats StudentStats
	err          error
}

var _ API = (*fakeAPI)(nil)

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return f.err
}

func (f *fakeAPI) ListClasses(_ context.Context, _ string) ([]Class, error) {
	return append([]Class(nil), f.classes...), f.record("ListClasses")
}

func (f *fakeAPI) GetClass(_ context.Context, _, id string) (Class, error) {
	if err := f.record("GetClass"); err != nil {
		return Class{}, err
	}
	for _, c := range f.classes {
		if c.ID == id {
			c.Members = append([]Member(nil), c.Members...)
			return c, nil
		}
	}
	return Class{}, ErrNotFound
}

func (f *fakeAPI) CreateClass(_ context.Context, _ string, nc NewClass) (Class, error) {
	return Class{ID: "c-new", Name: nc.Name, Subject: nc.Subject}, f.record("CreateClass")
}

func (f *fakeAPI) JoinClass(_ context.Context, _, joinCode string) (Class, error) {
	if err := f.record("JoinClass"); err != nil {
		return Class{}, err
	}
	for _, c := range f.classes {
		if c.JoinCode == joinCode {
			return c, nil
		}
	}
	return Class{}, errors.Wrap(ErrNotFound, "404")
}

func (f *fakeAPI) PromoteMember(_ context.Context, _, _, userID string) (Member, error) {
	return Member{UserID: userID, Role: MemberTeacher}, f.record("PromoteMember")
}

func (f *fakeAPI) DemoteMember(_ context.Context, _, _, userID string) (Member, error) {
	return Member{UserID: userID, Role: MemberStudent}, f.record("DemoteMember")
}

func (f *fakeAPI) RemoveMember(context.Context, string, string, string) error {
	return f.record("RemoveMember")
}

func (f *fakeAPI) DeleteClass(context.Context, string, string) error {
	return f.record("DeleteClass")
}

func (f *fakeAPI) RegenerateJoinCode(context.Context, string, string) (string, error) {
	return "xk42qz", f.record("RegenerateJoinCode")
}

func (f *fakeAPI) ListExams(context.Context, string) ([]Exam, error) {
	return append([]Exam(nil), f.exams...), f.record("ListExams")
}

func (f *fakeAPI) CreateExam(_ context.Context, _ string, ne NewExam) (Exam, error) {
	return Exam{
		ID: "e-new", ClassID: ne.ClassID, Title: ne.Title, StartsAt: ne.StartsAt,
		DurationMinutes: ne.DurationMinutes, QuestionCount: len(ne.Questions), TotalPoints: ne.TotalPoints(),
	}, f.record("CreateExam")
}

func (f *fakeAPI) ListUsers(context.Context, string) ([]user.User, error) {
	return append([]user.User(nil), f.users...), f.record("ListUsers")
}

func (f *fakeAPI) AdminStats(context.Context, string) (AdminStats, error) {
	return f.adminStats, f.record("AdminStats")
}

func (f *fakeAPI) TeacherStats(context.Context, string) (TeacherStats, error) {
	return f.teacherStats, f.record("TeacherStats")
}

func (f *fakeAPI) StudentStats(context.Context, string) (StudentStats, error) {
	return f.studentStats, f.record("StudentStats")
}

func setup(t *testing.T, api *fakeAPI) (Service, *emailsvc.ConsoleService) {
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = time.Now })

	conf := testutil.NewConfig()
	logger := testutil.NewLogger(t)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, core.NewMailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf), logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	return NewService(api, mailSvc, validate, translator, logger), mailSvc
}

func actor(role user.Role) Actor {
	return Actor{Token: "token", User: testutil.NewUser("Mwalimu Juma", role)}
}

func TestService_AdminDashboard(t *testing.T) {
	api := &fakeAPI{
		adminStats: AdminStats{
			TotalUsers:  3,
			ActiveUsers: 2,
			UsersByRole: map[string]int{"admin": 1, "student": 2},
			Classes:     7,
			Exams:       4,
		},
	}
	for i := 0; i < 7; i++ {
		api.classes = append(api.classes, Class{
			ID: string(rune('a' + i)), Name: "Class", OwnerName: "Juma", CreatedAt: now.Add(time.Duration(i) * time.Hour),
		})
	}
	svc, _ := setup(t, api)

	dash, err := svc.AdminDashboard(context.Background(), actor(user.RoleAdmin))
	require.NoError(t, err)

	assert.Equal(t, 66.7, dash.ActivePercent)
	assert.Equal(t, []RoleShare{
		{Role: user.RoleAdmin, Label: "Admin", Count: 1, Percent: 33.3},
		{Role: user.RoleTeacher, Label: "Teacher", Count: 0, Percent: 0},
		{Role: user.RoleStudent, Label: "Student", Count: 2, Percent: 66.7},
	}, dash.Roles)
	assert.Equal(t, 7, dash.Classes)
	require.Len(t, dash.RecentClasses, recentClassesLimit)
	assert.Equal(t, "g", dash.RecentClasses[0].ID, "newest first")
	assert.Equal(t, "Mar 1, 2021 15:00", dash.RecentClasses[0].CreatedAt)
	assert.ElementsMatch(t, []string{"AdminStats", "ListClasses"}, api.calls)
}

func TestService_AdminDashboard_noUsers(t *testing.T) {
	svc, _ := setup(t, &fakeAPI{})

	dash, err := svc.AdminDashboard(context.Background(), actor(user.RoleAdmin))
	require.NoError(t, err)
	assert.Zero(t, dash.ActivePercent)
	for _, share := range dash.Roles {
		assert.Zero(t, share.Percent)
	}
	assert.Empty(t, dash.RecentClasses)
}

func TestService_dashboards_apiError(t *testing.T) {
	apiErr := errors.New("api down")
	svc, _ := setup(t, &fakeAPI{err: apiErr})
	ctx := context.Background()

	_, err := svc.AdminDashboard(ctx, actor(user.RoleAdmin))
	assert.Equal(t, apiErr, errors.Cause(err))
	_, err = svc.TeacherDashboard(ctx, actor(user.RoleTeacher))
	assert.Equal(t, apiErr, errors.Cause(err))
	_, err = svc.StudentDashboard(ctx, actor(user.RoleStudent))
	assert.Equal(t, apiErr, errors.Cause(err))
}

func TestService_TeacherDashboard(t *testing.T) {
	svc, _ := setup(t, &fakeAPI{
		teacherStats: TeacherStats{
			Classes:  2,
			Students: 30,
			Exams: []ExamProgress{
				{ExamID: "e1", Title: "Midterm", ClassName: "Algebra", StartsAt: now, Submitted: 2, Expected: 3},
				{ExamID: "e2", Title: "Quiz", ClassName: "Algebra", Submitted: 0, Expected: 0},
			},
		},
	})

	dash, err := svc.TeacherDashboard(context.Background(), actor(user.RoleTeacher))
	require.NoError(t, err)
	assert.Equal(t, 2, dash.Classes)
	assert.Equal(t, 30, dash.Students)
	require.Len(t, dash.Exams, 2)
	assert.Equal(t, 66.7, dash.Exams[0].CompletionRate)
	assert.Equal(t, "Mar 1, 2021 09:00", dash.Exams[0].StartsAt)
	assert.Zero(t, dash.Exams[1].CompletionRate, "no division by zero")
	assert.Empty(t, dash.Exams[1].StartsAt)
	assert.Equal(t, 66.7, dash.AverageCompletion)
}

func TestService_StudentDashboard(t *testing.T) {
	svc, _ := setup(t, &fakeAPI{
		studentStats: StudentStats{
			Classes: 3,
			UpcomingExams: []Exam{
				{ID: "late", Title: "Final", StartsAt: now.Add(48 * time.Hour)},
				{ID: "soon", Title: "Quiz", StartsAt: now.Add(time.Hour)},
			},
			Scores: []Score{
				{Title: "Midterm", Score: 17, MaxScore: 20, TakenAt: now},
				{Title: "Quiz", Score: 1, MaxScore: 3, TakenAt: now},
			},
		},
	})

	dash, err := svc.StudentDashboard(context.Background(), actor(user.RoleStudent))
	require.NoError(t, err)
	require.Len(t, dash.UpcomingExams, 2)
	assert.Equal(t, "soon", dash.UpcomingExams[0].ID)
	assert.Equal(t, 85.0, dash.Scores[0].Percent)
	assert.Equal(t, 33.3, dash.Scores[1].Percent)
	assert.Equal(t, 78.3, dash.AverageScore)
}

func TestService_GetClass_rosterOrder(t *testing.T) {
	svc, _ := setup(t, &fakeAPI{classes: []Class{{
		ID: "c1",
		Members: []Member{
			{UserID: "s2", Name: "zawadi", Role: MemberStudent},
			{UserID: "t1", Name: "Baraka", Role: MemberTeacher},
			{UserID: "s1", Name: "Amani", Role: MemberStudent},
			{UserID: "o", Name: "Zuberi", Role: MemberOwner},
			{UserID: "t0", Name: "amina", Role: MemberTeacher},
		},
	}}})

	class, err := svc.GetClass(context.Background(), actor(user.RoleTeacher), "c1")
	require.NoError(t, err)
	ids := make([]string, 0, len(class.Members))
	for _, m := range class.Members {
		ids = append(ids, m.UserID)
	}
	assert.Equal(t, []string{"o", "t0", "t1", "s1", "s2"}, ids)

	_, err = svc.GetClass(context.Background(), actor(user.RoleTeacher), "nope")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestService_ListClasses(t *testing.T) {
	svc, _ := setup(t, &fakeAPI{classes: []Class{
		{ID: "2", Name: "physics"}, {ID: "1", Name: "Algebra"}, {ID: "3", Name: "Zoology"},
	}})

	cards, err := svc.ListClasses(context.Background(), actor(user.RoleStudent))
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Equal(t, "1", cards[0].ID)
	assert.Equal(t, "2", cards[1].ID)
	assert.Equal(t, "3", cards[2].ID)
}

func TestService_CreateClass(t *testing.T) {
	tests := []struct {
		name       string
		data       NewClass
		wantFields map[string]string
	}{
		{name: "valid", data: NewClass{Name: "  Algebra I ", Subject: "Maths"}},
		{name: "blank name", data: NewClass{Name: "   "}, wantFields: map[string]string{"name": "this field is required"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(fakeAPI)
			svc, _ := setup(t, api)

			class, err := svc.CreateClass(context.Background(), actor(user.RoleTeacher), tt.data)
			if tt.wantFields != nil {
				vErr, ok := errors.Cause(err).(*core.ValidationError)
				require.True(t, ok, "want *core.ValidationError, got %v", err)
				assert.Equal(t, tt.wantFields, vErr.FieldsMap())
				assert.Empty(t, api.calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Algebra I", class.Name)
		})
	}
}

func TestService_JoinClass(t *testing.T) {
	api := &fakeAPI{classes: []Class{{ID: "c1", Name: "Algebra", JoinCode: "ABC123"}}}
	svc, _ := setup(t, api)
	ctx := context.Background()

	class, err := svc.JoinClass(ctx, actor(user.RoleStudent), JoinRequest{JoinCode: " abc-123 "})
	require.NoError(t, err)
	assert.Equal(t, "c1", class.ID)

	_, err = svc.JoinClass(ctx, actor(user.RoleStudent), JoinRequest{JoinCode: "ZZZ999"})
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"join_code": "no class matches this code"}, vErr.FieldsMap())

	_, err = svc.JoinClass(ctx, actor(user.RoleStudent), JoinRequest{JoinCode: "ABC"})
	_, ok = errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok)
}

func TestService_InviteToClass(t *testing.T) {
	api := &fakeAPI{classes: []Class{
		{ID: "c1", Name: "Algebra", Subject: "Maths", JoinCode: "ABC123"},
		{ID: "c2", Name: "Closed"},
	}}
	svc, mailSvc := setup(t, api)
	ctx := context.Background()
	teacher := actor(user.RoleTeacher)

	n, err := svc.InviteToClass(ctx, teacher, "c1", Invitation{
		Emails:  []string{"A@test.cd, b@test.cd", " a@test.cd "},
		Message: "See you on Monday",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sent := mailSvc.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "a@test.cd", sent[0].To[0].Address)
	assert.Equal(t, "b@test.cd", sent[1].To[0].Address)
	assert.Equal(t, "Mwalimu Juma invited you to Algebra", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "ABC123")
	assert.Contains(t, sent[0].TextContent, "See you on Monday")

	_, err = svc.InviteToClass(ctx, teacher, "c1", Invitation{Emails: []string{"not-an-email"}})
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok)
	assert.Contains(t, vErr.FieldsMap(), "emails[0]")

	_, err = svc.InviteToClass(ctx, teacher, "c2", Invitation{Emails: []string{"c@test.cd"}})
	assert.Equal(t, ErrForbidden, errors.Cause(err))
	assert.Len(t, mailSvc.Sent(), 2)
}

func TestService_members(t *testing.T) {
	api := new(fakeAPI)
	svc, _ := setup(t, api)
	ctx := context.Background()
	teacher := actor(user.RoleTeacher)

	m, err := svc.PromoteMember(ctx, teacher, "c1", "u9")
	require.NoError(t, err)
	assert.Equal(t, MemberTeacher, m.Role)

	m, err = svc.DemoteMember(ctx, teacher, "c1", "u9")
	require.NoError(t, err)
	assert.Equal(t, MemberStudent, m.Role)

	require.NoError(t, svc.RemoveMember(ctx, teacher, "c1", "u9"))
	assert.Equal(t, ErrForbidden, errors.Cause(svc.RemoveMember(ctx, teacher, "c1", teacher.User.ID)))

	code, err := svc.RegenerateJoinCode(ctx, teacher, "c1")
	require.NoError(t, err)
	assert.Equal(t, "XK42QZ", code)

	require.NoError(t, svc.DeleteClass(ctx, teacher, "c1"))
	assert.Equal(t, []string{"PromoteMember", "DemoteMember", "RemoveMember", "RegenerateJoinCode", "DeleteClass"}, api.calls)
}

func TestService_ListExams(t *testing.T) {
	svc, _ := setup(t, &fakeAPI{exams: []Exam{
		{ID: "future", StartsAt: now.Add(time.Hour), DurationMinutes: 60},
		{ID: "past", StartsAt: now.Add(-3 * time.Hour), DurationMinutes: 60},
		{ID: "running", StartsAt: now.Add(-30 * time.Minute), DurationMinutes: 60},
	}})

	exams, err := svc.ListExams(context.Background(), actor(user.RoleTeacher))
	require.NoError(t, err)
	require.Len(t, exams, 3)
	assert.Equal(t, "past", exams[0].ID)
	assert.Equal(t, ExamClosed, exams[0].Status)
	assert.Equal(t, ExamOpen, exams[1].Status)
	assert.Equal(t, ExamScheduled, exams[2].Status)
}

func TestService_CreateExam(t *testing.T) {
	question := func(prompt string) Question {
		return Question{Prompt: prompt, Kind: QuestionText, Points: 2}
	}
	valid := func() NewExam {
		return NewExam{
			ClassID:         "c1",
			Title:           "Midterm",
			StartsAt:        now.Add(24 * time.Hour),
			DurationMinutes: 90,
			Questions: []Question{
				question("What is the derivative of x squared?"),
				{Prompt: "2 + 2 = ?", Kind: "CHOICE", Options: []string{"3", "4"}, Answer: "4", Points: 1},
			},
		}
	}

	tests := []struct {
		name       string
		mutate     func(ne *NewExam)
		wantFields []string
	}{
		{name: "valid", mutate: func(*NewExam) {}},
		{
			name:       "starts in the past",
			mutate:     func(ne *NewExam) { ne.StartsAt = now.Add(-time.Minute) },
			wantFields: []string{"starts_at"},
		},
		{
			name:       "no questions",
			mutate:     func(ne *NewExam) { ne.Questions = nil },
			wantFields: []string{"questions"},
		},
		{
			name: "near duplicate question",
			mutate: func(ne *NewExam) {
				ne.Questions = append(ne.Questions, question("What is the derivative of x squared ?"))
			},
			wantFields: []string{"questions[2].prompt"},
		},
		{
			name:       "choice without enough options",
			mutate:     func(ne *NewExam) { ne.Questions[1].Options = []string{"4"} },
			wantFields: []string{"questions[1].options"},
		},
		{
			name:       "choice answer not an option",
			mutate:     func(ne *NewExam) { ne.Questions[1].Answer = "5" },
			wantFields: []string{"questions[1].answer"},
		},
		{
			name:       "bad duration",
			mutate:     func(ne *NewExam) { ne.DurationMinutes = 1 },
			wantFields: []string{"duration_minutes"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(fakeAPI)
			svc, _ := setup(t, api)

			data := valid()
			tt.mutate(&data)
			exam, err := svc.CreateExam(context.Background(), actor(user.RoleTeacher), data)

			if tt.wantFields != nil {
				vErr, ok := errors.Cause(err).(*core.ValidationError)
				require.True(t, ok, "want *core.ValidationError, got %v", err)
				fields := make([]string, 0, len(vErr.Fields))
				for _, f := range vErr.Fields {
					fields = append(fields, f.Field)
				}
				assert.Equal(t, tt.wantFields, fields)
				assert.Empty(t, api.calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3, exam.TotalPoints)
			assert.Equal(t, 2, exam.QuestionCount)
			assert.Equal(t, ExamScheduled, exam.Status)
		})
	}
}

func TestService_ListUsers(t *testing.T) {
	svc, _ := setup(t, &fakeAPI{users: []user.User{
		{ID: "1", Name: "zed", Role: user.RoleStudent},
		{ID: "2", Name: "Bob", Role: user.RoleTeacher},
		{ID: "3", Name: "amy", Role: user.RoleStudent},
		{ID: "4", Name: "Root", Role: user.RoleAdmin},
	}})

	users, err := svc.ListUsers(context.Background(), actor(user.RoleAdmin))
	require.NoError(t, err)
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []string{"4", "2", "3", "1"}, ids)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(5, 0))
	assert.Equal(t, 100.0, percent(3, 3))
	assert.Equal(t, 14.3, percent(1, 7))
}
