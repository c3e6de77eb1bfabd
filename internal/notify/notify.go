// ABOUTME: Transient notification queue shown as toasts by the dashboard
// ABOUTME: Toasts expire after a lifetime and repeats inside a window are suppressed

package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/2389/research-flow/internal/dedupe"
	"github.com/2389/research-flow/internal/workflow"
)

const (
	DefaultLifetime       = 5 * time.Second
	DefaultCapacity       = 5
	DefaultSuppressWindow = 3 * time.Second
)

// Toast is one notification.
type Toast struct {
	ID      string
	Level   workflow.Level
	Title   string
	Message string
	At      time.Time
}

// Options configures a Queue.
type Options struct {
	Clock          clockwork.Clock
	Lifetime       time.Duration
	Capacity       int
	SuppressWindow time.Duration
	Logger         *slog.Logger
}

// Queue holds the toasts currently on screen, oldest first.
type Queue struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	items    []Toast
	lifetime time.Duration
	capacity int
	recent   *dedupe.Cache
	logger   *slog.Logger
}

// NewQueue creates a queue. Zero options take the defaults.
func NewQueue(opts Options) *Queue {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultLifetime
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.SuppressWindow <= 0 {
		opts.SuppressWindow = DefaultSuppressWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Queue{
		clock:    opts.Clock,
		lifetime: opts.Lifetime,
		capacity: opts.Capacity,
		recent:   dedupe.New(opts.Clock, opts.SuppressWindow, 256),
		logger:   opts.Logger.With("component", "notify"),
	}
}

// Push adds a toast. It returns false when an identical toast was pushed
// within the suppression window.
func (q *Queue) Push(level workflow.Level, title, message string) (Toast, bool) {
	key := string(level) + "\x00" + title + "\x00" + message
	if q.recent.CheckAndMark(key) {
		q.logger.Debug("suppressed duplicate notification", "title", title)
		return Toast{}, false
	}

	t := Toast{
		ID:      uuid.NewString(),
		Level:   level,
		Title:   title,
		Message: message,
		At:      q.clock.Now(),
	}

	q.mu.Lock()
	q.items = append(q.items, t)
	if len(q.items) > q.capacity {
		q.items = q.items[len(q.items)-q.capacity:]
	}
	q.mu.Unlock()

	q.log(t)
	return t, true
}

// Active returns the toasts that have not expired, oldest first.
func (q *Queue) Active() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	live := q.items[:0]
	for _, t := range q.items {
		if now.Sub(t.At) < q.lifetime {
			live = append(live, t)
		}
	}
	q.items = live

	out := make([]Toast, len(live))
	copy(out, live)
	return out
}

// Dismiss removes a toast by ID.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.items {
		if t.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// Close releases the suppression cache.
func (q *Queue) Close() {
	q.recent.Close()
}

func (q *Queue) log(t Toast) {
	attrs := []any{"title", t.Title, "message", t.Message}
	switch t.Level {
	case workflow.LevelError:
		q.logger.Error("notification", attrs...)
	case workflow.LevelWarning:
		q.logger.Warn("notification", attrs...)
	default:
		q.logger.Info("notification", attrs...)
	}
}
