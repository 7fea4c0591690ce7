// Package progress carries download progress from streaming readers to the
// components that persist or relay it.
package progress

import (
	"sync"
	"sync/atomic"

	"hardwire/internal/hardwire"
)

// DefaultCapacity is the per-subscriber buffer used when none is configured.
const DefaultCapacity = 6000

// Publisher accepts progress events. Implementations must not block.
type Publisher interface {
	Publish(ev hardwire.ProgressEvent) error
}

// Bus is a multi-consumer broadcast channel for progress events. Every
// subscriber gets its own bounded buffer; a subscriber that falls behind
// loses events instead of slowing publishers down, and the number of lost
// events is reported on its next receive.
type Bus struct {
	mu       sync.RWMutex
	capacity int
	subs     map[*Subscription]struct{}
	closed   bool
}

// NewBus creates a bus whose subscribers buffer up to capacity events.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new consumer. Events published before the call are
// not delivered to it.
func (b *Bus) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, hardwire.ErrBusClosed
	}
	sub := &Subscription{
		bus: b,
		ch:  make(chan hardwire.ProgressEvent, b.capacity),
	}
	b.subs[sub] = struct{}{}
	return sub, nil
}

// Publish delivers ev to every subscriber with room in its buffer and never
// blocks. It returns ErrBusClosed after Close.
func (b *Bus) Publish(ev hardwire.ProgressEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return hardwire.ErrBusClosed
	}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription channel. Buffered events can still be
// drained by their subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

var _ Publisher = (*Bus)(nil)

// Subscription is one consumer's view of a Bus.
type Subscription struct {
	bus     *Bus
	ch      chan hardwire.ProgressEvent
	dropped atomic.Uint64
}

// Events returns the channel events are delivered on. It is closed when the
// subscription or the bus is closed.
func (s *Subscription) Events() <-chan hardwire.ProgressEvent {
	return s.ch
}

// TakeDropped returns how many events were lost since the last call and
// resets the counter.
func (s *Subscription) TakeDropped() uint64 {
	return s.dropped.Swap(0)
}

// Close detaches the subscription from its bus.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}
