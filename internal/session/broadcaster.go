// ABOUTME: In-memory fan-out of session updates to dashboard subscribers
// ABOUTME: Non-blocking publish; slow subscribers lose updates rather than stall the session

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Broadcaster publishes Updates to every subscriber.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Update
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan Update),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe returns a channel of updates and its subscription ID. The
// subscription ends when ctx is cancelled, Unsubscribe is called or the
// broadcaster closes; the channel is closed in every case.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Update, string) {
	subID := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends u to all subscribers without blocking.
func (b *Broadcaster) Publish(u Update) {
	// Sends happen under the read lock so Unsubscribe cannot close a channel
	// mid-send; they never block, so writers wait at most one fan-out.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
			b.logger.Debug("dropped update for slow subscriber",
				"sub_id", id,
				"kind", u.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.logger.Debug("broadcaster closed")
}
