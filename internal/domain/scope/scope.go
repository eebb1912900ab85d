// Package scope provides logging scopes: lifetimes that bound the state a
// log site keeps for the work done inside them.
//
// A log site specialized by a scope gets its own rate limiter state, and that
// state is discarded once the scope is closed, either explicitly via Close or
// after the scope becomes unreachable and the garbage collector reclaims it.
package scope

import (
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/ratelog/internal/domain/logsite"
)

// Scope is a lifetime used to specialize log site keys.
//
// Keys specialized by a scope hold only the scope's token, never the Scope
// itself, so per-site state does not keep the Scope reachable.
type Scope struct {
	token *token
}

// token is the qualifier placed into specialized keys. It carries the hooks
// to run when the owning Scope ends.
type token struct {
	label string

	mu     sync.Mutex
	closed bool
	hooks  []func()
}

// Compile-time interface verification.
var (
	_ logsite.Lifetime    = (*token)(nil)
	_ logsite.Specializer = (*Scope)(nil)
)

// Create returns a new scope. An empty label is replaced by a random UUID.
//
// When the returned scope becomes unreachable its hooks are queued and run on
// a later call to OnClose, Specialize or Drain.
func Create(label string) *Scope {
	if label == "" {
		label = uuid.NewString()
	}
	t := &token{label: label}
	s := &Scope{token: t}
	runtime.AddCleanup(s, enqueue, t)
	createdTotal.Add(1)
	return s
}

// Label returns the scope's label.
func (s *Scope) Label() string {
	if s == nil {
		return ""
	}
	return s.token.label
}

// String implements fmt.Stringer.
func (s *Scope) String() string {
	if s == nil {
		return "Scope[<nil>]"
	}
	return "Scope[" + s.token.label + "]"
}

// Specialize returns key specialized by this scope. A nil scope returns key
// unchanged.
func (s *Scope) Specialize(key logsite.Key) logsite.Key {
	if s == nil {
		return key
	}
	maybeDrain()
	return logsite.Specialize(key, s.token)
}

// OnClose registers hook to run when the scope ends. If the scope has already
// been closed the hook runs immediately.
func (s *Scope) OnClose(hook func()) {
	if s == nil {
		return
	}
	s.token.OnClose(hook)
}

// Close ends the scope and runs every registered hook exactly once.
// Calling Close more than once is a no-op.
func (s *Scope) Close() {
	if s == nil {
		return
	}
	s.token.close()
}

// Closed reports whether the scope has ended.
func (s *Scope) Closed() bool {
	if s == nil {
		return false
	}
	s.token.mu.Lock()
	defer s.token.mu.Unlock()
	return s.token.closed
}

func (t *token) String() string { return t.label }

// OnClose implements logsite.Lifetime.
func (t *token) OnClose(hook func()) {
	if hook == nil {
		return
	}
	Drain()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		hook()
		return
	}
	t.hooks = append(t.hooks, hook)
	t.mu.Unlock()
}

// close runs the registered hooks and reports whether this call closed the
// token. Hooks run outside the lock.
func (t *token) close() bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.closed = true
	hooks := t.hooks
	t.hooks = nil
	t.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	closedTotal.Add(1)
	return true
}
