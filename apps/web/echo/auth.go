package echoweb

import (
	"context"
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/navigation"
	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/core/user"
	"github.com/trezcool/masomo-web/services/classes"
)

var signingMethod = jwt.SigningMethodHS256

// Authenticator is the part of the classes API that deals with tokens.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (classes.LoginResult, error)
	Me(ctx context.Context, token string) (user.User, error)
	Logout(ctx context.Context, token string) error
}

// Claims are carried by the session cookie. The bearer token stays on the server, under SessionID.
type Claims struct {
	jwt.StandardClaims
	SessionID string `json:"sid"`
}

// NewClaims returns the Claims of session `sid`, valid until `expiresAt`.
func NewClaims(conf *core.Config, sid string, expiresAt time.Time) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			ExpiresAt: expiresAt.Unix(),
			IssuedAt:  now.Unix(),
		},
		SessionID: sid,
	}
}

// GenerateToken generates a signed JWT token string representing the session Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(signingMethod, claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func parseToken(tokenStr, secretKey string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != signingMethod.Alg() {
			return nil, errors.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing token")
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// cookieSessionID returns the session ID of the request's cookie, or "" if there is no valid one.
func (s *server) cookieSessionID(ctx echo.Context) string {
	cookie, err := ctx.Cookie(s.deps.Conf.Session.CookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	claims, err := parseToken(cookie.Value, s.deps.Conf.SecretKey)
	if err != nil {
		s.deps.Logger.Debug("ignoring session cookie", err)
		return ""
	}
	return claims.SessionID
}

func (s *server) setSessionCookie(ctx echo.Context, sid string, expiresAt time.Time) error {
	token, err := GenerateToken(NewClaims(s.deps.Conf, sid, expiresAt), s.deps.Conf.SecretKey)
	if err != nil {
		return err
	}
	ctx.SetCookie(&http.Cookie{
		Name:     s.deps.Conf.Session.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.deps.Conf.Session.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *server) clearSessionCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     s.deps.Conf.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.deps.Conf.Session.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// restoreFunc recovers the user of session `sid` from its stored credential.
// A credential the classes API rejects is deleted.
func (s *server) restoreFunc(sid string, entry *sessionEntry) session.RestoreFunc {
	return func(ctx context.Context) (*user.User, error) {
		cred, err := s.deps.Credentials.Get(ctx, sid)
		if err != nil {
			if errors.Cause(err) == session.ErrCredentialNotFound {
				return nil, nil
			}
			return nil, errors.Wrap(err, "getting credential")
		}

		usr, err := s.deps.Auth.Me(ctx, cred.Token)
		if err != nil {
			if errors.Cause(err) == user.ErrTokenRejected {
				if dErr := s.deps.Credentials.Delete(ctx, sid); dErr != nil {
					s.deps.Logger.Error("deleting rejected credential", dErr)
				}
				return nil, nil
			}
			return nil, errors.Wrap(err, "getting current user")
		}
		entry.setToken(cred.Token)
		return &usr, nil
	}
}

// Handlers

func (s *server) loginPage(ctx echo.Context) error {
	bs := getBrowserSession(ctx)
	snap := bs.provider.Snapshot()
	if snap.IsResolving {
		return s.renderWaiting(ctx)
	}
	if snap.User != nil {
		landing := navigation.LandingFor(snap.User.Role)
		// a landing the registry refuses would bounce back here
		if s.deps.Gate.Registry().CanAccessRoute(snap.User.Role, landing) {
			return ctx.Redirect(http.StatusSeeOther, landing)
		}
	}
	form := user.Credentials{Next: core.SafeRedirectPath(ctx.QueryParam("next"))}
	return s.render(ctx, http.StatusOK, "login", Page{Title: "Log in", Form: form})
}

func (s *server) login(ctx echo.Context) error {
	var creds user.Credentials
	if err := ctx.Bind(&creds); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := creds.Validate(s.deps.Validate, s.deps.Translator); err != nil {
		return s.renderLoginError(ctx, creds, err)
	}

	reqCtx := ctx.Request().Context()
	res, err := s.deps.Auth.Login(reqCtx, creds.Email, creds.Password)
	if err != nil {
		if errors.Cause(err) == user.ErrInvalidCredentials {
			return s.renderLoginError(ctx, creds, core.NewFieldError("form", user.ErrInvalidCredentials.Error()))
		}
		return errors.Wrap(err, "logging in")
	}

	// a new login always starts a new session
	if old := getBrowserSession(ctx); old.id != "" {
		s.endSession(reqCtx, old)
	}

	now := time.Now()
	expiresAt := now.Add(s.deps.Conf.Session.TTL)
	if !res.ExpiresAt.IsZero() && res.ExpiresAt.Before(expiresAt) {
		expiresAt = res.ExpiresAt
	}
	sid := uuid.New().String()
	cred := session.Credential{
		SessionID: sid,
		Token:     res.Token,
		UserID:    res.User.ID,
		CreatedAt: now.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	if err = s.deps.Credentials.Save(reqCtx, cred); err != nil {
		return errors.Wrap(err, "saving credential")
	}

	entry := s.sessions.add(sid, res.Token, session.NewResolvedProvider(s.deps.Logger, nil))
	if err = entry.provider.Login(res.User); err != nil {
		return errors.Wrap(err, "logging session in")
	}
	if err = s.setSessionCookie(ctx, sid, expiresAt); err != nil {
		return err
	}
	s.deps.Logger.Info("user logged in", res.User)

	next := creds.Next
	if next == "" {
		next = navigation.LandingFor(res.User.Role)
	}
	return ctx.Redirect(http.StatusSeeOther, next)
}

func (s *server) renderLoginError(ctx echo.Context, creds user.Credentials, err error) error {
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	if !ok {
		return err
	}
	creds.Password = ""
	return s.render(ctx, http.StatusBadRequest, "login", Page{Title: "Log in", Form: creds, Errors: vErr.FieldsMap()})
}

func (s *server) logout(ctx echo.Context) error {
	if bs := getBrowserSession(ctx); bs.id != "" {
		s.endSession(ctx.Request().Context(), bs)
	}
	s.clearSessionCookie(ctx)
	return ctx.Redirect(http.StatusSeeOther, s.deps.Gate.LoginPath())
}

// endSession logs the browser session out: the credential is revoked and the session user cleared.
func (s *server) endSession(ctx context.Context, bs *browserSession) {
	if token := bs.entry.getToken(); token != "" {
		if err := s.deps.Auth.Logout(ctx, token); err != nil {
			s.deps.Logger.Warn("revoking token", err)
		}
	}
	if err := s.deps.Credentials.Delete(ctx, bs.id); err != nil {
		s.deps.Logger.Error("deleting credential", err)
	}
	bs.provider.Logout()
	s.sessions.remove(bs.id, bs.entry)
}
