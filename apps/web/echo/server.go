// Package echoweb serves the Masomo portal pages. Every portal route goes through the role gate.
package echoweb

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/classroom"
	"github.com/trezcool/masomo-web/core/gate"
	"github.com/trezcool/masomo-web/core/navigation"
	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/core/user"
	"github.com/trezcool/masomo-web/fs"
)

const sessionMaxIdle = 30 * time.Minute

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Auth           Authenticator
		Credentials    session.CredentialStore
		ClassroomSvc   classroom.Service
		Gate           *gate.Gate
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		sessions *sessionRegistry

		errors   chan error
		shutdown chan os.Signal
		stop     chan struct{}
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) (Server, error) {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		sessions: newSessionRegistry(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
		stop:     make(chan struct{}),
	}
	if err := s.setup(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) setup() error {
	conf := s.deps.Conf

	tmpls, err := newTemplates(appfs.FS, appfs.PageTemplatesDir)
	if err != nil {
		return errors.Wrap(err, "loading page templates")
	}
	s.app.Renderer = tmpls

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))
	s.app.Use(s.sessionMiddleware)

	s.app.HTTPErrorHandler = s.newAppHTTPErrorHandler(s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/login", s.loginPage)
	s.app.POST("/login", s.login)
	s.app.POST("/logout", s.logout)

	registerPortalPages(s)
	return s.checkRoutes()
}

// checkRoutes verifies that every gated echo route has a descriptor in the registry.
// When unregistered paths are denied, a missing one would be refused to everybody.
func (s *server) checkRoutes() error {
	reg := s.deps.Gate.Registry()
	for _, r := range s.app.Routes() {
		if isPublicPath(r.Path) || reg.IsRegistered(r.Path) {
			continue
		}
		if s.deps.Gate.UnregisteredPaths() == gate.AllowUnregistered {
			s.deps.Logger.Warn("route open to every role", map[string]interface{}{"method": r.Method, "path": r.Path})
			continue
		}
		return errors.Errorf("route %s %s is not in the navigation registry", r.Method, r.Path)
	}
	return nil
}

func isPublicPath(p string) bool {
	switch p {
	case "/", "/login", "/logout", "":
		return true
	}
	return false
}

func (s *server) Start() {
	go s.sweepSessions()
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	s.stopSweeper()
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	s.stopSweeper()
	return s.app.Close()
}

func (s *server) stopSweeper() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *server) sweepSessions() {
	ticker := time.NewTicker(sessionMaxIdle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if n := s.sessions.sweep(now, sessionMaxIdle); n > 0 {
				s.deps.Logger.Debug("idle sessions dropped", map[string]interface{}{"count": n})
			}
		}
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// render fills the common parts of `page` and renders the `name` template.
func (s *server) render(ctx echo.Context, code int, name string, page Page) error {
	page.AppName = s.deps.Conf.AppName
	page.Path = ctx.Path()
	if page.User == nil {
		if snap := getBrowserSession(ctx).provider.Snapshot(); snap.Authenticated() {
			page.User = snap.User
		}
	}
	if page.User != nil && page.Menu == nil {
		page.Menu = s.deps.Gate.Registry().MenuFor(page.User.Role)
	}
	return ctx.Render(code, name, page)
}

// home sends users to their landing page, and everybody else to login.
func (s *server) home(ctx echo.Context) error {
	snap := getBrowserSession(ctx).provider.Snapshot()
	switch {
	case snap.IsResolving:
		return s.renderWaiting(ctx)
	case snap.User == nil:
		return ctx.Redirect(http.StatusFound, s.deps.Gate.LoginPath())
	default:
		return ctx.Redirect(http.StatusFound, navigation.LandingFor(snap.User.Role))
	}
}

func contextActor(ctx echo.Context) (classroom.Actor, error) {
	a, ok := getBrowserSession(ctx).actor()
	if !ok {
		// gated handlers only run for authenticated sessions
		return classroom.Actor{}, errors.Wrap(user.ErrTokenRejected, "no session user")
	}
	return a, nil
}
