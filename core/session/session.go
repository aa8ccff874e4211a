// Package session holds the authentication state of one browser session.
//
// A Provider is the only writer of its Session; everybody else reads snapshots
// or subscribes to changes. A Provider starts resolving: the persisted credential
// has not been checked yet. Resolve performs that check exactly once.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/user"
)

var (
	ErrResolving            = errors.New("session is still resolving")
	ErrAlreadyAuthenticated = errors.New("session already has a user")
)

// Session is a consistent snapshot of the authentication state.
type Session struct {
	User        *user.User
	IsResolving bool
}

// Authenticated reports whether the snapshot is resolved and has a user.
func (s Session) Authenticated() bool {
	return !s.IsResolving && s.User != nil
}

// RestoreFunc recovers the user of a persisted credential.
// It returns a nil user (and no error) when there is no credential to restore.
type RestoreFunc func(ctx context.Context) (*user.User, error)

type Provider struct {
	mu      sync.RWMutex
	usr     *user.User
	pending bool

	subsMu  sync.Mutex
	subs    []subscriber
	nextSub int

	once     sync.Once
	resolved chan struct{}

	logger core.Logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type subscriber struct {
	id int
	fn func(Session)
}

// NewProvider returns an unresolved Provider. A nil `logger` discards the restore errors.
func NewProvider(logger core.Logger) *Provider {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Provider{
		pending:  true,
		resolved: make(chan struct{}),
		logger:   logger,
	}
}

// NewResolvedProvider returns a Provider that has nothing to restore.
func NewResolvedProvider(logger core.Logger, usr *user.User) *Provider {
	p := NewProvider(logger)
	p.Resolve(context.Background(), func(context.Context) (*user.User, error) { return usr, nil })
	return p
}

// Snapshot returns the current Session.
func (p *Provider) Snapshot() Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot()
}

func (p *Provider) snapshot() Session {
	s := Session{IsResolving: p.pending}
	if p.usr != nil {
		usr := *p.usr
		s.User = &usr
	}
	return s
}

// Subscribe registers `fn` to be called after every change of the Session, in subscription order.
// The returned func removes the subscription.
func (p *Provider) Subscribe(fn func(Session)) (unsubscribe func()) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	p.nextSub++
	id := p.nextSub
	p.subs = append(p.subs, subscriber{id: id, fn: fn})

	return func() {
		p.subsMu.Lock()
		defer p.subsMu.Unlock()
		for i, sub := range p.subs {
			if sub.id == id {
				p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
				return
			}
		}
	}
}

func (p *Provider) notify(s Session) {
	p.subsMu.Lock()
	subs := make([]subscriber, len(p.subs))
	copy(subs, p.subs)
	p.subsMu.Unlock()

	for _, sub := range subs {
		sub.fn(s)
	}
}

// Resolve runs `restore` and ends the resolving window. Only the first call has any effect;
// later (or concurrent) calls return once the first one is done.
// A restore error resolves the Session without a user.
func (p *Provider) Resolve(ctx context.Context, restore RestoreFunc) {
	p.once.Do(func() {
		usr, err := restore(ctx)
		if err != nil {
			p.logger.Warn("restoring session", errors.Wrap(err, "restoring session"))
			usr = nil
		}
		if usr != nil {
			usr = copyUser(usr)
		}

		p.mu.Lock()
		p.usr = usr
		p.pending = false
		s := p.snapshot()
		p.mu.Unlock()

		close(p.resolved)
		p.notify(s)
	})
	<-p.resolved
}

// Resolved is closed once the Session is resolved.
func (p *Provider) Resolved() <-chan struct{} {
	return p.resolved
}

// WaitResolved waits at most `d` for the Session to be resolved and reports whether it is.
func (p *Provider) WaitResolved(ctx context.Context, d time.Duration) bool {
	select {
	case <-p.resolved:
		return true
	default:
	}
	if d <= 0 {
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.resolved:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Login sets the Session's user. It is only valid on a resolved Session without user.
func (p *Provider) Login(usr user.User) error {
	p.mu.Lock()
	if p.pending {
		p.mu.Unlock()
		return ErrResolving
	}
	if p.usr != nil {
		p.mu.Unlock()
		return ErrAlreadyAuthenticated
	}
	p.usr = copyUser(&usr)
	s := p.snapshot()
	p.mu.Unlock()

	p.notify(s)
	return nil
}

// Logout clears the Session's user, if any.
func (p *Provider) Logout() {
	p.mu.Lock()
	if p.usr == nil {
		p.mu.Unlock()
		return
	}
	p.usr = nil
	s := p.snapshot()
	p.mu.Unlock()

	p.notify(s)
}

func copyUser(usr *user.User) *user.User {
	cp := *usr
	return &cp
}
