package gate

import "sync"

// Navigator performs the redirects asked by the gate.
type Navigator interface {
	Redirect(r Redirect)
}

// NavigatorFunc adapts a func to a Navigator.
type NavigatorFunc func(r Redirect)

func (f NavigatorFunc) Redirect(r Redirect) { f(r) }

// OnceNavigator forwards only the first redirect of a render pass to its Navigator.
type OnceNavigator struct {
	next Navigator

	mu   sync.Mutex
	done *Redirect
}

func NewOnceNavigator(next Navigator) *OnceNavigator {
	return &OnceNavigator{next: next}
}

func (n *OnceNavigator) Redirect(r Redirect) {
	n.mu.Lock()
	if n.done != nil {
		n.mu.Unlock()
		return
	}
	n.done = &r
	n.mu.Unlock()

	n.next.Redirect(r)
}

// Redirected returns the redirect that went through, if any.
func (n *OnceNavigator) Redirected() (Redirect, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done == nil {
		return Redirect{}, false
	}
	return *n.done, true
}
