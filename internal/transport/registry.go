// ABOUTME: Listener registry with set semantics and isolated fan-out
// ABOUTME: Lives above individual sockets so registrations survive reconnects

package transport

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/2389/research-flow/internal/metrics"
	"github.com/2389/research-flow/internal/progress"
)

// Listener receives decoded, non-heartbeat progress events.
// Implementations must be comparable (pointer types are); registration is
// keyed by listener identity.
type Listener interface {
	HandleEvent(progress.Event)
}

// FuncListener adapts a function to Listener. Use ListenerFunc to create one;
// the returned pointer is the identity used by On and Off.
type FuncListener struct {
	fn func(progress.Event)
}

// ListenerFunc wraps fn in a comparable Listener handle.
func ListenerFunc(fn func(progress.Event)) *FuncListener {
	return &FuncListener{fn: fn}
}

// HandleEvent calls the wrapped function.
func (l *FuncListener) HandleEvent(e progress.Event) {
	l.fn(e)
}

// Registry is an ordered set of listeners.
type Registry struct {
	mu      sync.RWMutex
	order   []Listener
	members map[Listener]struct{}
	logger  *slog.Logger
	metrics *metrics.Transport
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger, m *metrics.Transport) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		members: make(map[Listener]struct{}),
		logger:  logger.With("component", "listeners"),
		metrics: m,
	}
}

// Add registers l. Returns false if l was already registered.
func (r *Registry) Add(l Listener) bool {
	if l == nil {
		return false
	}
	if t := reflect.TypeOf(l); !t.Comparable() {
		panic(fmt.Sprintf("transport: listener type %s is not comparable, wrap it with ListenerFunc", t))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[l]; ok {
		return false
	}
	r.members[l] = struct{}{}
	r.order = append(r.order, l)

	r.logger.Debug("listener registered", "total", len(r.order))
	return true
}

// Remove unregisters l. Returns false if l was not registered.
func (r *Registry) Remove(l Listener) bool {
	if l == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[l]; !ok {
		return false
	}
	delete(r.members, l)
	for i, existing := range r.order {
		if existing == l {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every listener.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members = make(map[Listener]struct{})
	r.order = nil
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Dispatch delivers e to every listener in registration order. A listener
// that panics is logged and skipped; the rest still receive the event.
func (r *Registry) Dispatch(e progress.Event) {
	// Copy under read lock so listeners may call Add/Remove while we deliver
	r.mu.RLock()
	targets := make([]Listener, len(r.order))
	copy(targets, r.order)
	r.mu.RUnlock()

	for _, l := range targets {
		r.deliver(l, e)
	}
}

func (r *Registry) deliver(l Listener, e progress.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.ListenerPanic()
			r.logger.Error("listener panicked",
				"event", e.String(),
				"panic", p)
		}
	}()
	l.HandleEvent(e)
}
