// Package events provides the channel-based publish mechanism for job
// state notifications. Delivery is at-least-once and ordered per job; a
// slow subscriber loses its oldest buffered events instead of stalling
// the producer.
package events

import (
	"sync"

	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
)

// DefaultBuffer is the per-subscriber channel capacity used when the
// caller does not specify one.
const DefaultBuffer = 64

// Bus fans out job events to any number of concurrent subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
	closed bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan domain.Event)}
}

// Subscribe registers a new observer and returns its receive channel
// together with a cancel function. The channel is closed on cancel or
// when the bus shuts down.
func (b *Bus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan domain.Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without ever blocking the
// producer. A full subscriber buffer drops its oldest event to make room,
// so observers fall behind rather than backpressure the supervisor.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		for {
			select {
			case ch <- ev:
			default:
				// Buffer full; drop the oldest and retry. Publishing is
				// serialized by the mutex, so the drain cannot race with
				// another producer.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
