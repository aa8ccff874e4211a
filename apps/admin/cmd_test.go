package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-web/core/gate"
	"github.com/trezcool/masomo-web/core/navigation"
	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/core/user"
	"github.com/trezcool/masomo-web/services/classes"
	inmemdb "github.com/trezcool/masomo-web/storage/database/inmem"
)

var teacher = user.User{ID: "u-teacher", Name: "Juma Mwalimu", Email: "juma@masomo.cd", Role: user.RoleTeacher}

type fakeAuth struct {
	revoked []string
	meErr   error
}

func (f *fakeAuth) Login(_ context.Context, email, pwd string) (classes.LoginResult, error) {
	if email != teacher.Email || pwd != "s3cret" {
		return classes.LoginResult{}, user.ErrInvalidCredentials
	}
	return classes.LoginResult{Token: "tkn", User: teacher, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) Me(_ context.Context, token string) (user.User, error) {
	if f.meErr != nil {
		return user.User{}, f.meErr
	}
	if token != "tkn" {
		return user.User{}, user.ErrTokenRejected
	}
	return teacher, nil
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return nil
}

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	out := new(bytes.Buffer)
	return &commandLine{
		gate:  gate.New(navigation.DefaultRegistry()),
		auth:  &fakeAuth{},
		creds: inmemdb.NewCredentialStore(),
		out:   out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    []string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error, out string) {
	switch {
	case tt.wantErr != nil:
		if errors.Cause(err) != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
	for _, want := range tt.wantOut {
		if !strings.Contains(out, want) {
			t.Errorf("cli.run() output does not contain %q:\n%s", want, out)
		}
	}
}

func Test_commandLine_usage(t *testing.T) {
	tests := []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: []string{"Usage:"}},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"routes", "-lol"}, wantErr: errHelp},
		{name: "check without path", args: []string{"check", "-role", "admin"}, wantErr: errHelp},
		{name: "revoke without user", args: []string{"revoke"}, wantErr: errHelp},
		{name: "migrate without command", args: []string{"migrate"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, out := setup(t)
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err, out.String())
		})
	}
}

func Test_commandLine_routes(t *testing.T) {
	tests := []cliTest{
		{name: "every route", args: []string{"routes"}, wantOut: []string{"/admin/users", "/teacher/classes/:id", "/student/exams", "admin,teacher,student"}},
		{name: "of a role", args: []string{"routes", "-role", "Student"}, wantOut: []string{"landing: /student/dashboard", "/student/classes/join", "/profile"}},
		{name: "unknown role", args: []string{"routes", "-role", "parent"}, wantErr: user.ErrInvalidRole},
		{name: "check authorized", args: []string{"check", "-role", "teacher", "-path", "/teacher/classes/:id"}, wantOut: []string{"authorized"}},
		{name: "check unauthorized", args: []string{"check", "-role", "student", "-path", "/admin/users"}, wantOut: []string{"unauthorized", "redirect: /student/dashboard"}},
		{name: "check anonymous", args: []string{"check", "-path", "/profile"}, wantOut: []string{"unauthenticated", "redirect: /login (then /profile)"}},
		{name: "check unregistered", args: []string{"check", "-role", "admin", "-path", "/nope"}, wantOut: []string{"unauthorized", "warning: path is not registered"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, out := setup(t)
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err, out.String())
		})
	}

	t.Run("student menu hides other portals", func(t *testing.T) {
		cli, out := setup(t)
		require.NoError(t, cli.run([]string{"admin", "routes", "-role", "student"}))
		assert.NotContains(t, out.String(), "/teacher/")
		assert.NotContains(t, out.String(), "/admin/")
	})
}

func Test_commandLine_whoami(t *testing.T) {
	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no email", args: []string{"whoami"}, wantErr: errHelp},
		{name: "no password", args: []string{"whoami", "-email", teacher.Email}, wantErr: errHelp},
		{name: "wrong password", args: []string{"whoami", "-email", teacher.Email}, extra: extra{pwd: "nope"}, wantErr: user.ErrInvalidCredentials},
		{
			name: "logged in", args: []string{"whoami", "-email", " JUMA@masomo.cd"}, extra: extra{pwd: "s3cret"},
			wantOut: []string{"Juma Mwalimu <juma@masomo.cd>", "role:    Teacher", "landing: /teacher/dashboard", "My Classes"},
		},
	}
	for _, tt := range tests {
		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			cli, out := setup(t)
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err, out.String())
		})
	}

	t.Run("token is revoked", func(t *testing.T) {
		readPasswordFunc = func(int) ([]byte, error) { return []byte("s3cret"), nil }
		cli, _ := setup(t)
		require.NoError(t, cli.run([]string{"admin", "whoami", "-email", teacher.Email}))
		assert.Equal(t, []string{"tkn"}, cli.auth.(*fakeAuth).revoked)
	})

	t.Run("token rejected after login", func(t *testing.T) {
		readPasswordFunc = func(int) ([]byte, error) { return []byte("s3cret"), nil }
		cli, out := setup(t)
		cli.auth.(*fakeAuth).meErr = user.ErrTokenRejected

		var err error
		require.NotPanics(t, func() {
			err = cli.run([]string{"admin", "whoami", "-email", teacher.Email})
		})
		assert.Equal(t, user.ErrTokenRejected, errors.Cause(err))
		assert.NotContains(t, out.String(), "landing:")
		assert.Equal(t, []string{"tkn"}, cli.auth.(*fakeAuth).revoked)
	})

	t.Run("prompt error", func(t *testing.T) {
		readPasswordFunc = func(int) ([]byte, error) { return nil, errors.New("not a terminal") }
		cli, _ := setup(t)
		assert.EqualError(t, cli.run([]string{"admin", "whoami", "-email", teacher.Email}), "not a terminal")
	})
}

func Test_commandLine_revoke(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)
	for _, sid := range []string{"s1", "s2"} {
		require.NoError(t, cli.creds.Save(ctx, session.Credential{SessionID: sid, Token: "tkn-" + sid, UserID: teacher.ID, ExpiresAt: expiresAt}))
	}
	require.NoError(t, cli.creds.Save(ctx, session.Credential{SessionID: "s3", Token: "tkn-s3", UserID: "other", ExpiresAt: expiresAt}))

	require.NoError(t, cli.run([]string{"admin", "revoke", "-user", teacher.ID}))
	assert.Contains(t, out.String(), "2 session(s) revoked")

	_, err := cli.creds.Get(ctx, "s1")
	assert.Equal(t, session.ErrCredentialNotFound, errors.Cause(err))
	_, err = cli.creds.Get(ctx, "s3")
	assert.NoError(t, err)
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	t.Run("no database", func(t *testing.T) {
		assert.Equal(t, errNoSQL, cli.run([]string{"admin", "migrate", "up"}))
	})

	cli.db = &sqlx.DB{}
	gooseRunFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err, "")
		})
	}
}
