// Package classes is the HTTP client of the classes API: authentication, classes, exams and dashboards.
package classes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/classroom"
	"github.com/trezcool/masomo-web/core/user"
)

const maxBodySize = 4 << 20

// APIError is an unexpected answer of the classes API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("classes api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("classes api: %d %s", e.Status, e.Message)
}

// Temporary reports whether the API failed on its side.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError
}

// envelope wraps every answer of the classes API.
type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

type Client struct {
	baseURL    *url.URL
	retryLimit int
	http       *http.Client
	logger     core.Logger
}

var _ classroom.API = (*Client)(nil)

func NewClient(cfg Config, logger core.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing classes api url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("classes api url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}

	return &Client{baseURL: base, retryLimit: retries, http: hc, logger: logger}, nil
}

// Auth

type (
	loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	// LoginResult is what a successful login returns.
	LoginResult struct {
		Token     string    `json:"token"`
		User      user.User `json:"user"`
		ExpiresAt time.Time `json:"expires_at"`
	}
)

// Login exchanges credentials for a bearer token.
// Rejected credentials return user.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: password}, &res)
	if err != nil {
		if errors.Cause(err) == user.ErrTokenRejected {
			return LoginResult{}, user.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if res.Token == "" {
		return LoginResult{}, errors.New("classes api: login without token")
	}
	if err = res.User.Clean(); err != nil {
		return LoginResult{}, errors.Wrap(err, "login user")
	}
	return res, nil
}

// Me returns the user of `token`. An expired or revoked token returns user.ErrTokenRejected.
func (c *Client) Me(ctx context.Context, token string) (user.User, error) {
	var usr user.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &usr); err != nil {
		return user.User{}, err
	}
	if err := usr.Clean(); err != nil {
		return user.User{}, errors.Wrap(err, "current user")
	}
	return usr, nil
}

// Logout revokes `token`. A token the API already forgot is not an error.
func (c *Client) Logout(ctx context.Context, token string) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
	if errors.Cause(err) == user.ErrTokenRejected {
		return nil
	}
	return err
}

// Classes

func (c *Client) ListClasses(ctx context.Context, token string) ([]classroom.Class, error) {
	classes := make([]classroom.Class, 0)
	err := c.do(ctx, http.MethodGet, "/classes", token, nil, &classes)
	return classes, err
}

func (c *Client) GetClass(ctx context.Context, token, id string) (classroom.Class, error) {
	var class classroom.Class
	err := c.do(ctx, http.MethodGet, "/classes/"+url.PathEscape(id), token, nil, &class)
	return class, err
}

func (c *Client) CreateClass(ctx context.Context, token string, nc classroom.NewClass) (classroom.Class, error) {
	var class classroom.Class
	err := c.do(ctx, http.MethodPost, "/classes", token, nc, &class)
	return class, err
}

func (c *Client) JoinClass(ctx context.Context, token, joinCode string) (classroom.Class, error) {
	var class classroom.Class
	err := c.do(ctx, http.MethodPost, "/classes/join", token, classroom.JoinRequest{JoinCode: joinCode}, &class)
	return class, err
}

func (c *Client) PromoteMember(ctx context.Context, token, classID, userID string) (classroom.Member, error) {
	var m classroom.Member
	err := c.do(ctx, http.MethodPost, memberPath(classID, userID)+"/promote", token, nil, &m)
	return m, err
}

func (c *Client) DemoteMember(ctx context.Context, token, classID, userID string) (classroom.Member, error) {
	var m classroom.Member
	err := c.do(ctx, http.MethodPost, memberPath(classID, userID)+"/demote", token, nil, &m)
	return m, err
}

func (c *Client) RemoveMember(ctx context.Context, token, classID, userID string) error {
	return c.do(ctx, http.MethodDelete, memberPath(classID, userID), token, nil, nil)
}

func (c *Client) DeleteClass(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/classes/"+url.PathEscape(id), token, nil, nil)
}

func (c *Client) RegenerateJoinCode(ctx context.Context, token, id string) (string, error) {
	var res struct {
		JoinCode string `json:"join_code"`
	}
	err := c.do(ctx, http.MethodPost, "/classes/"+url.PathEscape(id)+"/join-code", token, nil, &res)
	return res.JoinCode, err
}

func memberPath(classID, userID string) string {
	return "/classes/" + url.PathEscape(classID) + "/members/" + url.PathEscape(userID)
}

// Exams

func (c *Client) ListExams(ctx context.Context, token string) ([]classroom.Exam, error) {
	exams := make([]classroom.Exam, 0)
	err := c.do(ctx, http.MethodGet, "/exams", token, nil, &exams)
	return exams, err
}

func (c *Client) CreateExam(ctx context.Context, token string, ne classroom.NewExam) (classroom.Exam, error) {
	var exam classroom.Exam
	err := c.do(ctx, http.MethodPost, "/exams", token, ne, &exam)
	return exam, err
}

// Users

func (c *Client) ListUsers(ctx context.Context, token string) ([]user.User, error) {
	users := make([]user.User, 0)
	if err := c.do(ctx, http.MethodGet, "/users", token, nil, &users); err != nil {
		return nil, err
	}
	valid := users[:0]
	for _, usr := range users {
		if err := usr.Clean(); err != nil {
			c.logger.Warn(fmt.Sprintf("skipping user %q: %v", usr.ID, err))
			continue
		}
		valid = append(valid, usr)
	}
	return valid, nil
}

// Dashboards

func (c *Client) AdminStats(ctx context.Context, token string) (classroom.AdminStats, error) {
	var stats classroom.AdminStats
	err := c.do(ctx, http.MethodGet, "/dashboard/"+user.RoleAdmin.String(), token, nil, &stats)
	return stats, err
}

func (c *Client) TeacherStats(ctx context.Context, token string) (classroom.TeacherStats, error) {
	var stats classroom.TeacherStats
	err := c.do(ctx, http.MethodGet, "/dashboard/"+user.RoleTeacher.String(), token, nil, &stats)
	return stats, err
}

func (c *Client) StudentStats(ctx context.Context, token string) (classroom.StudentStats, error) {
	var stats classroom.StudentStats
	err := c.do(ctx, http.MethodGet, "/dashboard/"+user.RoleStudent.String(), token, nil, &stats)
	return stats, err
}

// Transport

// do calls the API and decodes the envelope data into `out`.
// GET requests are retried on transport errors and 5xx answers.
func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return errors.Wrap(err, "encoding request")
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.retryLimit
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * 200 * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		var retry bool
		retry, err = c.roundTrip(ctx, method, path, token, body, out)
		if err == nil || !retry {
			return err
		}
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, body []byte, out interface{}) (bool, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	// path segments are escaped already
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, rdr)
	if err != nil {
		return false, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return true, errors.Wrapf(err, "reading %s %s", method, path)
	}

	var env envelope
	if len(raw) > 0 {
		if err = json.Unmarshal(raw, &env); err != nil && res.StatusCode < http.StatusBadRequest {
			return false, errors.Wrapf(err, "decoding %s %s", method, path)
		}
	}

	if res.StatusCode >= http.StatusBadRequest || !env.Success {
		apiErr := statusError(res.StatusCode, env)
		if res.StatusCode >= http.StatusInternalServerError {
			c.logger.Warn(fmt.Sprintf("classes api: %s %s: %d", method, path, res.StatusCode), apiErr)
			return true, apiErr
		}
		return false, apiErr
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err = json.Unmarshal(env.Data, out); err != nil {
			return false, errors.Wrapf(err, "decoding %s %s data", method, path)
		}
	}
	return false, nil
}

// statusError maps an API failure to the errors the portal knows about.
func statusError(status int, env envelope) error {
	msg := env.Message
	switch status {
	case http.StatusUnauthorized:
		return wrap(user.ErrTokenRejected, msg)
	case http.StatusForbidden:
		return wrap(classroom.ErrForbidden, msg)
	case http.StatusNotFound:
		return wrap(classroom.ErrNotFound, msg)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		if msg == "" {
			msg = http.StatusText(status)
		}
		vErr := &core.ValidationError{Err: errors.New(msg)}
		fields := make([]string, 0, len(env.Errors))
		for field := range env.Errors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			vErr.Fields = append(vErr.Fields, core.FieldError{Field: field, Error: env.Errors[field]})
		}
		return vErr
	}
	if status < http.StatusBadRequest {
		// 2xx with success=false
		status = http.StatusBadGateway
	}
	return &APIError{Status: status, Message: msg}
}

func wrap(err error, msg string) error {
	if msg == "" {
		return errors.WithStack(err)
	}
	return errors.Wrap(err, msg)
}
