// Package broker fans session snapshots out to console subscribers.
package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 16

// Broker delivers every published value to every live subscriber. A slow
// subscriber misses values rather than stalling the publisher.
type Broker[T any] struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]chan T
	latest T
	has    bool
	logger *slog.Logger
}

func New[T any](logger *slog.Logger) *Broker[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker[T]{
		subs:   make(map[uuid.UUID]chan T),
		logger: logger,
	}
}

// Publish must not block; it is called from the session loop.
func (b *Broker[T]) Publish(v T) {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest, b.has = v, true
	for id, ch := range b.subs {
		select {
		case ch <- v:
		default:
			b.logger.Debug("skipping payload - channel full or client slow",
				slog.String("subscriber", id.String()))
		}
	}
}

// Subscribe registers a subscriber until ctx ends, at which point the
// channel is closed. The latest value, if any, is delivered first.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan T {
	id := uuid.New()
	ch := make(chan T, subscriberBuffer)

	b.mu.Lock()
	b.subs[id] = ch
	if b.has {
		ch <- b.latest
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

func (b *Broker[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
