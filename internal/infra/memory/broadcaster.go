package memory

import (
	"context"
	"sync"

	"hr-testing-service/internal/domain"
)

// Broadcaster is an in-process app.Notifier that fans notifications out to subscribers.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan domain.Notification]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan domain.Notification]struct{}),
	}
}

// Subscribe returns a channel of notifications.
// The caller must invoke the returned cancel function to avoid leaks.
func (b *Broadcaster) Subscribe() (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, 8)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Notify never blocks: a slow subscriber loses its oldest pending notification.
func (b *Broadcaster) Notify(_ context.Context, n domain.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- n:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- n
		}
	}
	return nil
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
