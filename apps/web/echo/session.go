package echoweb

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core/classroom"
	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/core/user"
)

const ctxSessionKey = "browserSession"

type (
	// sessionEntry is the server side of a browser session.
	sessionEntry struct {
		provider *session.Provider

		mu        sync.Mutex
		token     string
		lastSeen  time.Time
		checkedAt time.Time // last time the stored credential was found
	}

	// sessionRegistry holds one session.Provider per browser session.
	sessionRegistry struct {
		mu      sync.Mutex
		entries map[string]*sessionEntry
	}

	browserSession struct {
		id       string // "" for anonymous sessions
		entry    *sessionEntry
		provider *session.Provider
	}
)

func (e *sessionEntry) setToken(token string) {
	e.mu.Lock()
	e.token = token
	e.mu.Unlock()
}

func (e *sessionEntry) getToken() string {
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token
}

func (e *sessionEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

// dueCheck reports whether the credential should be looked up again, and marks it checked.
func (e *sessionEntry) dueCheck(now time.Time, every time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now.Sub(e.checkedAt) < every {
		return false
	}
	e.checkedAt = now
	return true
}

func (e *sessionEntry) idleSince(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Sub(e.lastSeen)
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{entries: make(map[string]*sessionEntry)}
}

func newSessionEntry(token string, provider *session.Provider) *sessionEntry {
	now := time.Now()
	e := &sessionEntry{provider: provider, token: token, lastSeen: now, checkedAt: now}
	// the token goes with the user
	provider.Subscribe(func(s session.Session) {
		if s.User == nil && !s.IsResolving {
			e.setToken("")
		}
	})
	return e
}

// load returns the entry of `sid`, creating an unresolved one if there is none.
func (reg *sessionRegistry) load(sid string, newProvider func() *session.Provider) (entry *sessionEntry, created bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if e, ok := reg.entries[sid]; ok {
		return e, false
	}
	e := newSessionEntry("", newProvider())
	reg.entries[sid] = e
	return e, true
}

func (reg *sessionRegistry) add(sid, token string, provider *session.Provider) *sessionEntry {
	e := newSessionEntry(token, provider)
	reg.mu.Lock()
	reg.entries[sid] = e
	reg.mu.Unlock()
	return e
}

// remove drops `sid` if it still maps to `entry`.
func (reg *sessionRegistry) remove(sid string, entry *sessionEntry) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if cur, ok := reg.entries[sid]; ok && cur == entry {
		delete(reg.entries, sid)
	}
}

func (reg *sessionRegistry) len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.entries)
}

// sweep drops the entries idle for longer than `maxIdle`. Their credentials stay in the store,
// so a returning browser is restored again.
func (reg *sessionRegistry) sweep(now time.Time, maxIdle time.Duration) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var n int
	for sid, e := range reg.entries {
		if e.idleSince(now) > maxIdle {
			delete(reg.entries, sid)
			n++
		}
	}
	return n
}

// sessionMiddleware attaches the browser session to the request.
// A session seen for the first time is restored from its credential in the background;
// the request waits for it at most Session.RestoreWait.
func (s *server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		bs := &browserSession{id: s.cookieSessionID(ctx)}

		if bs.id == "" {
			bs.provider = session.NewResolvedProvider(s.deps.Logger, nil)
		} else {
			entry, created := s.sessions.load(bs.id, func() *session.Provider {
				return session.NewProvider(s.deps.Logger)
			})
			if created {
				go s.restore(bs.id, entry)
			}
			entry.touch(time.Now())
			bs.entry = entry
			bs.provider = entry.provider
			if bs.provider.WaitResolved(ctx.Request().Context(), s.deps.Conf.Session.RestoreWait) && !created {
				s.recheck(ctx.Request().Context(), bs.id, entry)
			}
		}

		ctx.Set(ctxSessionKey, bs)
		return next(ctx)
	}
}

// restore resolves a new session entry. A failed restore forgets the entry, so the next request retries.
func (s *server) restore(sid string, entry *sessionEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.Conf.Session.RestoreTimeout)
	defer cancel()

	var failed bool
	restoreFn := s.restoreFunc(sid, entry)
	entry.provider.Resolve(ctx, func(ctx context.Context) (*user.User, error) {
		usr, err := restoreFn(ctx)
		failed = err != nil
		return usr, err
	})
	if failed {
		s.sessions.remove(sid, entry)
	}
}

// recheck logs out a cached session whose credential is gone from the store (revoked or expired).
// A store error keeps the session.
func (s *server) recheck(ctx context.Context, sid string, entry *sessionEntry) {
	if !entry.provider.Snapshot().Authenticated() || !entry.dueCheck(time.Now(), s.deps.Conf.Session.RecheckEvery) {
		return
	}
	_, err := s.deps.Credentials.Get(ctx, sid)
	switch {
	case err == nil:
	case errors.Cause(err) == session.ErrCredentialNotFound:
		s.deps.Logger.Info("session credential revoked", map[string]interface{}{"sid": sid})
		entry.provider.Logout()
		s.sessions.remove(sid, entry)
	default:
		s.deps.Logger.Warn("checking session credential", errors.Wrap(err, "getting credential"))
	}
}

func getBrowserSession(ctx echo.Context) *browserSession {
	if bs, ok := ctx.Get(ctxSessionKey).(*browserSession); ok {
		return bs
	}
	return &browserSession{provider: session.NewResolvedProvider(nil, nil)}
}

// actor returns the classroom.Actor of an authorized request.
func (bs *browserSession) actor() (classroom.Actor, bool) {
	snap := bs.provider.Snapshot()
	if !snap.Authenticated() {
		return classroom.Actor{}, false
	}
	return classroom.Actor{Token: bs.entry.getToken(), User: *snap.User}, true
}
