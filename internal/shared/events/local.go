package events

import (
	"context"
	"log"
	"sync"
)

// LocalBus delivers events to in-process subscribers synchronously. It is
// used when no broker is configured and in tests.
type LocalBus struct {
	mu          sync.RWMutex
	subscribers []localSubscriber
}

type localSubscriber struct {
	pattern  string
	consumer string
	handler  Handler
}

// NewLocalBus creates an empty in-process bus
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// Publish calls every matching handler in subscription order. Handler
// errors are logged and never reach the publisher.
func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := append([]localSubscriber(nil), b.subscribers...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if !matchesPattern(event.Type, sub.pattern) {
			continue
		}
		if err := sub.handler(ctx, event); err != nil {
			log.Printf("Handler %s failed for event %s: %v", sub.consumer, event.ID, err)
		}
	}
	return nil
}

// Subscribe registers handler for events matching pattern
func (b *LocalBus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = append(b.subscribers, localSubscriber{
		pattern:  pattern,
		consumer: consumerName,
		handler:  handler,
	})
	return nil
}

// Close drops all subscribers
func (b *LocalBus) Close() {
	b.mu.Lock()
	b.subscribers = nil
	b.mu.Unlock()
}

// Health always succeeds
func (b *LocalBus) Health() error {
	return nil
}
