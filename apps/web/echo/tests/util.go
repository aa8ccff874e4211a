package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-web/apps/web/echo"
	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/classroom"
	"github.com/trezcool/masomo-web/core/gate"
	"github.com/trezcool/masomo-web/core/navigation"
	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/core/user"
	"github.com/trezcool/masomo-web/fs"
	"github.com/trezcool/masomo-web/services/classes"
	"github.com/trezcool/masomo-web/services/email"
	"github.com/trezcool/masomo-web/storage/database/inmem"
	"github.com/trezcool/masomo-web/tests"
)

const password = "s3cret-pwd"

var (
	admin   = user.User{ID: "u-admin", Name: "Neema Admin", Email: "admin@masomo.cd", Role: user.RoleAdmin}
	teacher = user.User{ID: "u-teacher", Name: "Juma Mwalimu", Email: "juma@masomo.cd", Role: user.RoleTeacher}
	student = user.User{ID: "u-student", Name: "Amani Mwanafunzi", Email: "amani@masomo.cd", Role: user.RoleStudent}
)

// fakeAuth knows the three test users. Each login issues a new token.
type fakeAuth struct {
	mu      sync.Mutex
	tokens  map[string]user.User
	revoked []string
	meGate  chan struct{} // when set, Me waits for it to be closed
}

var _ echoweb.Authenticator = (*fakeAuth)(nil)

func newFakeAuth() *fakeAuth {
	return &fakeAuth{tokens: make(map[string]user.User)}
}

func (f *fakeAuth) Login(_ context.Context, email, pwd string) (classes.LoginResult, error) {
	for _, usr := range []user.User{admin, teacher, student} {
		if usr.Email == email && pwd == password {
			token := f.issue(usr)
			return classes.LoginResult{Token: token, User: usr, ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
	}
	return classes.LoginResult{}, user.ErrInvalidCredentials
}

func (f *fakeAuth) issue(usr user.User) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "tkn-" + usr.ID + "-" + time.Now().Format(time.RFC3339Nano)
	f.tokens[token] = usr
	return token
}

func (f *fakeAuth) Me(ctx context.Context, token string) (user.User, error) {
	if f.meGate != nil {
		select {
		case <-f.meGate:
		case <-ctx.Done():
			return user.User{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	usr, ok := f.tokens[token]
	if !ok {
		return user.User{}, errors.Wrap(user.ErrTokenRejected, "401")
	}
	return usr, nil
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
	f.revoked = append(f.revoked, token)
	return nil
}

// forget drops every token of `usr`, as if they expired on the classes API.
func (f *fakeAuth) forget(usr user.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, u := range f.tokens {
		if u.ID == usr.ID {
			delete(f.tokens, token)
		}
	}
}

// fakeAPI is an in-memory classes API.
type fakeAPI struct {
	mu      sync.Mutex
	classes map[string]classroom.Class
	exams   []classroom.Exam
	err     error
}

var _ classroom.API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	created := time.Date(2021, time.February, 1, 8, 0, 0, 0, time.UTC)
	return &fakeAPI{
		classes: map[string]classroom.Class{
			"c1": {
				ID: "c1", Name: "Algebra", Subject: "Maths", JoinCode: "ALG123", OwnerID: teacher.ID,
				OwnerName: teacher.Name, MemberCount: 2, CreatedAt: created,
				Members: []classroom.Member{
					{UserID: student.ID, Name: student.Name, Email: student.Email, Role: classroom.MemberStudent},
					{UserID: teacher.ID, Name: teacher.Name, Email: teacher.Email, Role: classroom.MemberOwner},
				},
			},
		},
	}
}

func (f *fakeAPI) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeAPI) ListClasses(context.Context, string) ([]classroom.Class, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := make([]classroom.Class, 0, len(f.classes))
	for _, c := range f.classes {
		list = append(list, c)
	}
	return list, nil
}

func (f *fakeAPI) GetClass(_ context.Context, _, id string) (classroom.Class, error) {
	if err := f.fail(); err != nil {
		return classroom.Class{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[id]
	if !ok {
		return classroom.Class{}, errors.Wrap(classroom.ErrNotFound, "404")
	}
	return c, nil
}

func (f *fakeAPI) CreateClass(_ context.Context, _ string, nc classroom.NewClass) (classroom.Class, error) {
	if err := f.fail(); err != nil {
		return classroom.Class{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := classroom.Class{ID: "c-" + strings.ToLower(nc.Name), Name: nc.Name, Subject: nc.Subject, OwnerID: teacher.ID}
	f.classes[c.ID] = c
	return c, nil
}

func (f *fakeAPI) JoinClass(_ context.Context, _, joinCode string) (classroom.Class, error) {
	if err := f.fail(); err != nil {
		return classroom.Class{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.classes {
		if c.JoinCode == joinCode {
			return c, nil
		}
	}
	return classroom.Class{}, errors.Wrap(classroom.ErrNotFound, "404")
}

func (f *fakeAPI) PromoteMember(_ context.Context, _, _, userID string) (classroom.Member, error) {
	return classroom.Member{UserID: userID, Role: classroom.MemberTeacher}, f.fail()
}

func (f *fakeAPI) DemoteMember(_ context.Context, _, _, userID string) (classroom.Member, error) {
	return classroom.Member{UserID: userID, Role: classroom.MemberStudent}, f.fail()
}

func (f *fakeAPI) RemoveMember(context.Context, string, string, string) error {
	return f.fail()
}

func (f *fakeAPI) DeleteClass(_ context.Context, _, id string) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.classes, id)
	return nil
}

func (f *fakeAPI) RegenerateJoinCode(context.Context, string, string) (string, error) {
	return "new123", f.fail()
}

func (f *fakeAPI) ListExams(context.Context, string) ([]classroom.Exam, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]classroom.Exam(nil), f.exams...), nil
}

func (f *fakeAPI) CreateExam(_ context.Context, _ string, ne classroom.NewExam) (classroom.Exam, error) {
	if err := f.fail(); err != nil {
		return classroom.Exam{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e := classroom.Exam{
		ID: "e1", ClassID: ne.ClassID, Title: ne.Title, StartsAt: ne.StartsAt,
		DurationMinutes: ne.DurationMinutes, QuestionCount: len(ne.Questions), TotalPoints: ne.TotalPoints(),
	}
	f.exams = append(f.exams, e)
	return e, nil
}

func (f *fakeAPI) ListUsers(context.Context, string) ([]user.User, error) {
	return []user.User{student, admin, teacher}, f.fail()
}

func (f *fakeAPI) AdminStats(context.Context, string) (classroom.AdminStats, error) {
	stats := classroom.AdminStats{
		TotalUsers: 3, ActiveUsers: 2, Classes: 1,
		UsersByRole: map[string]int{"admin": 1, "teacher": 1, "student": 1},
	}
	return stats, f.fail()
}

func (f *fakeAPI) TeacherStats(context.Context, string) (classroom.TeacherStats, error) {
	return classroom.TeacherStats{Classes: 1, Students: 1}, f.fail()
}

func (f *fakeAPI) StudentStats(context.Context, string) (classroom.StudentStats, error) {
	return classroom.StudentStats{Classes: 1}, f.fail()
}

type env struct {
	conf   *core.Config
	srv    echoweb.Server
	auth   *fakeAuth
	api    *fakeAPI
	creds  session.CredentialStore
	mail   *emailsvc.ConsoleService
	logger *testutil.Logger
}

func setup(t *testing.T, opts ...func(*env)) *env {
	e := &env{
		conf:   testutil.NewConfig(),
		auth:   newFakeAuth(),
		api:    newFakeAPI(),
		creds:  inmemdb.NewCredentialStore(),
		logger: testutil.NewLogger(t),
	}
	for _, opt := range opts {
		opt(e)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	classroom.InitValidators(validate, translator)

	templates := core.NewMailTemplates(appfs.FS, appfs.EmailTemplatesDir, e.conf)
	e.mail = emailsvc.NewConsoleServiceMock(e.conf, templates, e.logger)

	srv, err := echoweb.NewServer(echoweb.ServerDeps{
		Conf:           e.conf,
		Logger:         e.logger,
		Auth:           e.auth,
		Credentials:    e.creds,
		ClassroomSvc:   classroom.NewService(e.api, e.mail, validate, translator, e.logger),
		Gate:           gate.New(navigation.DefaultRegistry(), gate.WithLoginPath(e.conf.Gate.LoginPath)),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	require.NoError(t, err)
	e.srv = srv
	return e
}

type httpTest struct {
	name         string
	method       string
	path         string
	form         url.Values
	as           *user.User
	wantCode     int
	wantLocation string
	wantBody     string
}

func newRequest(method, path string, form url.Values, cookies ...*http.Cookie) (*http.Request, *httptest.ResponseRecorder) {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req, httptest.NewRecorder()
}

func (e *env) do(method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req, rec := newRequest(method, path, form, cookies...)
	e.srv.ServeHTTP(rec, req)
	return rec
}

// login logs `usr` in and returns their session cookie.
func (e *env) login(t *testing.T, usr user.User) *http.Cookie {
	rec := e.do(http.MethodPost, "/login", url.Values{"email": {usr.Email}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	return sessionCookie(t, e.conf, rec)
}

func sessionCookie(t *testing.T, conf *core.Config, rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == conf.Session.CookieName {
			return c
		}
	}
	t.Fatalf("sessionCookie() failed: no %s cookie", conf.Session.CookieName)
	return nil
}

func (e *env) checkResponse(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != tt.wantLocation {
		t.Errorf("failed! location = %q; wantLocation %q", loc, tt.wantLocation)
	}
	if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
		t.Errorf("failed! body does not contain %q: %s", tt.wantBody, rec.Body.String())
	}
}
