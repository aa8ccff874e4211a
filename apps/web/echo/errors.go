package echoweb

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/classroom"
	"github.com/trezcool/masomo-web/core/user"
)

var (
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "page not found")
	errBadGateway    = echo.NewHTTPError(http.StatusBadGateway, "the classes service is unavailable")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func (s *server) newAppHTTPErrorHandler(signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}

		var code int
		var message interface{}
		bs := getBrowserSession(ctx)

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *core.ValidationError:
			if len(origErr.Fields) > 0 {
				message = origErr.FieldsMap()
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			switch origErr {
			case user.ErrTokenRejected:
				// the classes API forgot the session: log out, then ask to log in again
				if bs.id != "" {
					s.endSession(ctx.Request().Context(), bs)
				}
				s.clearSessionCookie(ctx)
				target := s.deps.Gate.LoginPath()
				if ctx.Request().Method == http.MethodGet {
					if next := core.SafeRedirectPath(ctx.Request().RequestURI); next != "" {
						target += "?" + url.Values{"next": {next}}.Encode()
					}
				}
				if rErr := ctx.Redirect(http.StatusSeeOther, target); rErr != nil {
					s.deps.Logger.Error("redirecting to login", rErr)
				}
				return
			case classroom.ErrNotFound:
				code, message = errHttpNotFound.Code, errHttpNotFound.Message
			case classroom.ErrForbidden:
				code, message = errHttpForbidden.Code, errHttpForbidden.Message
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				args := []interface{}{errors.Wrap(err, msg), map[string]interface{}{"path": ctx.Request().URL.Path}}
				if snap := bs.provider.Snapshot(); snap.User != nil {
					args = append(args, *snap.User)
				}
				if apiErr, ok := origErr.(interface{ Temporary() bool }); ok && apiErr.Temporary() {
					code, message = errBadGateway.Code, errBadGateway.Message
					s.deps.Logger.Warn(msg, args...)
				} else {
					s.deps.Logger.Error(msg, args...)
				}

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}

		// Send response
		if ctx.Request().Method == http.MethodHead { // Issue #608
			err = ctx.NoContent(code)
		} else if wantsJSON(ctx) {
			if m, ok := message.(string); ok {
				message = echo.Map{"error": m}
			}
			err = ctx.JSON(code, message)
		} else {
			err = s.renderError(ctx, code, message)
		}
		if err != nil {
			s.deps.Logger.Error("sending error response", err)
		}
	}
}

func (s *server) renderError(ctx echo.Context, code int, message interface{}) error {
	page := Page{Title: http.StatusText(code)}
	switch m := message.(type) {
	case string:
		page.Data = m
	case map[string]string:
		page.Data = "Please check the form."
		page.Errors = m
	default:
		page.Data = http.StatusText(code)
	}
	return s.render(ctx, code, "error", page)
}

func wantsJSON(ctx echo.Context) bool {
	return strings.Contains(ctx.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
