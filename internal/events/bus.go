// Package events fans coordinator and worker status changes out to
// listeners such as the SSE endpoint and the MQTT status publisher.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/micro-nova/lms-announce/internal/models"
)

const subBufferSize = 32

// Publisher accepts status events. Implementations must not block.
type Publisher interface {
	Publish(ev models.StatusEvent)
}

// Bus is a non-blocking publish-subscribe bus. Events for a subscriber
// whose buffer is full are dropped and counted.
type Bus struct {
	mu      sync.Mutex
	subs    map[string]chan models.StatusEvent
	dropped atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan models.StatusEvent)}
}

// Subscribe registers id and returns its event channel. Subscribing an id
// twice replaces the earlier channel, which is closed.
func (b *Bus) Subscribe(id string) <-chan models.StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	ch := make(chan models.StatusEvent, subBufferSize)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev models.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

var _ Publisher = (*Bus)(nil)
