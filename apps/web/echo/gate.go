package echoweb

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/gate"
)

const retryAfterSeconds = 1

// echoNavigator redirects the response of `ctx`. Replace redirects use 303 so the gated
// request is not replayed; the others use 302.
func echoNavigator(ctx echo.Context, errp *error) gate.Navigator {
	return gate.NavigatorFunc(func(r gate.Redirect) {
		if ctx.Response().Committed {
			return
		}
		target := r.Path
		// only GETs can be replayed after login
		if r.Intent != nil && ctx.Request().Method == http.MethodGet {
			if next := core.SafeRedirectPath(r.Intent.Path); next != "" && next != target {
				target += "?" + url.Values{"next": {next}}.Encode()
			}
		}
		code := http.StatusFound
		if r.Replace {
			code = http.StatusSeeOther
		}
		*errp = ctx.Redirect(code, target)
	})
}

// gateMiddleware lets a request through only if its session may see the route.
// The route is identified by its template (ctx.Path()), which is how routes are registered.
func (s *server) gateMiddleware(policy gate.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			bs := getBrowserSession(ctx)

			var navErr error
			nav := gate.NewOnceNavigator(echoNavigator(ctx, &navErr))
			d := s.deps.Gate.Guard(bs.provider.Snapshot(), ctx.Path(), policy, nav, ctx.Request().RequestURI)

			switch d.State {
			case gate.Authorized:
				return next(ctx)
			case gate.Resolving:
				return s.renderWaiting(ctx)
			default:
				if d.State == gate.Unauthorized {
					s.deps.Logger.Debug("route refused", map[string]interface{}{"path": ctx.Path(), "role": bs.role()})
				}
				return navErr
			}
		}
	}
}

// renderWaiting renders the page shown while a session is resolving. It reloads itself and never redirects.
func (s *server) renderWaiting(ctx echo.Context) error {
	ctx.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	ctx.Response().Header().Set("Cache-Control", "no-store")
	reload := core.SafeRedirectPath(ctx.Request().RequestURI)
	if reload == "" {
		reload = "/"
	}
	return s.render(ctx, http.StatusOK, "waiting", Page{Title: "Loading", Data: reload})
}

func (bs *browserSession) role() string {
	if snap := bs.provider.Snapshot(); snap.User != nil {
		return snap.User.Role.String()
	}
	return ""
}
