// ABOUTME: Clock-driven TTL cache that remembers recently seen keys
// ABOUTME: Used to suppress repeated notifications inside a short window

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry struct {
	seenAt time.Time
	elem   *list.Element
}

// Cache remembers keys for a fixed window, bounded by maxSize. Oldest keys
// are evicted first.
type Cache struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]*entry
	order   *list.List // oldest at front
	window  time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts a sweeper driven by clock. A nil clock uses
// the real clock.
func New(clock clockwork.Clock, window time.Duration, maxSize int) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		clock:   clock,
		entries: make(map[string]*entry),
		order:   list.New(),
		window:  window,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen reports whether key was marked within the window.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key)
}

// CheckAndMark marks key and reports whether it was already live.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(key) {
		return true
	}
	c.markLocked(key)
	return false
}

// Mark records key as seen now, refreshing it if present.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// Len returns the number of remembered keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) liveLocked(key string) bool {
	e, ok := c.entries[key]
	return ok && c.clock.Since(e.seenAt) < c.window
}

func (c *Cache) markLocked(key string) {
	now := c.clock.Now()

	if e, ok := c.entries[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.elem)
		return
	}

	if len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.entries, oldest)
		}
	}

	c.entries[key] = &entry{seenAt: now, elem: c.order.PushBack(key)}
}

func (c *Cache) sweep() {
	interval := c.window
	if interval < time.Second {
		interval = time.Second
	}
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			c.expire()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Entries are ordered by last mark, so stop at the first live one
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if c.clock.Since(c.entries[key].seenAt) < c.window {
			return
		}
		c.order.Remove(front)
		delete(c.entries, key)
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
