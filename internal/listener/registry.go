package listener

import (
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is an ordered set of listeners.
//
// The same listener may be subscribed more than once; each subscription is
// an independent entry with its own handle.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	nextID  uint64
	logger  Logger
}

type entry struct {
	id uint64
	l  Listener
}

// Subscription identifies one registration. The zero value is inert.
type Subscription struct {
	id  uint64
	reg *Registry
}

// Unsubscribe removes this registration. Calling it more than once is a no-op.
func (s Subscription) Unsubscribe() {
	if s.reg != nil {
		s.reg.Unsubscribe(s)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{logger: noopLogger{}}
}

// SetLogger sets the logger for listener failures.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Subscribe appends l and returns its handle. A nil listener is not
// registered and yields an inert handle.
func (r *Registry) Subscribe(l Listener) Subscription {
	if l == nil {
		return Subscription{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.entries = append(r.entries, entry{id: r.nextID, l: l})
	return Subscription{id: r.nextID, reg: r}
}

// SubscribeFunc is Subscribe for a plain function.
func (r *Registry) SubscribeFunc(fn func(Event) error) Subscription {
	if fn == nil {
		return Subscription{}
	}
	return r.Subscribe(Func(fn))
}

// Unsubscribe removes the registration identified by sub. Unknown or
// already-removed handles are ignored.
func (r *Registry) Unsubscribe(sub Subscription) {
	if sub.id == 0 || sub.reg != r {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id == sub.id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Notify delivers ev to every listener in subscription order.
//
// The set is snapshotted first, so listeners may subscribe or unsubscribe
// during delivery; such changes take effect for the next event.
func (r *Registry) Notify(ev Event) {
	r.mu.RLock()
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	logger := r.logger
	r.mu.RUnlock()

	for _, e := range entries {
		if err := deliver(e.l, ev); err != nil {
			logger.Error("listener failed", "type", ev.Type(), "subscription", e.id, "error", err)
		}
	}
}

// deliver calls l, converting a panic into an error.
func deliver(l Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.HandleEvent(ev)
}
