// Package bus is the in-process pub/sub spine between components that must
// not call each other directly: webhook deliveries fan out to the chat
// announcer, config edits fan out to whoever caches settings. Delivery is
// best-effort with no ordering guarantee; a slow subscriber loses messages
// rather than stalling the publisher.
package bus

import (
	"log/slog"
	"sync"
	"time"
)

// StreamStatus is published when the broadcaster goes live or offline.
type StreamStatus struct {
	BroadcasterID string
	Live          bool
	At            time.Time
}

// ConfigChange is published after the runtime config document changes.
type ConfigChange struct {
	Keys []string // dotted keys that changed; empty means a full reset
}

// Topic is one typed channel fan-out.
type Topic[T any] struct {
	mu   sync.RWMutex
	subs []chan T
}

// Subscribe registers a receiver. The buffer absorbs publish bursts; once
// it is full further messages to this subscriber are dropped.
func (t *Topic[T]) Subscribe(buffer int) <-chan T {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

// Publish delivers v to every subscriber without blocking.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.subs {
		select {
		case ch <- v:
		default:
			slog.Warn("bus subscriber full, dropping message")
		}
	}
}

// Bus groups the service's topics.
type Bus struct {
	Stream Topic[StreamStatus]
	Config Topic[ConfigChange]
}

func New() *Bus { return &Bus{} }
