package events

import (
	"sync"

	"go.uber.org/zap"
)

// Bus is an in-process publish/subscribe fan-out. Publish never blocks: a
// subscriber whose channel is full loses the event and the drop is counted.
// Slow subscribers therefore degrade themselves, not the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]chan Event
	buffer int
	closed bool
	logger *zap.Logger
}

// NewBus creates a bus whose subscriber channels hold up to buffer events.
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		subs:   make(map[string][]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe returns a channel receiving every event whose name matches one of
// the given names. The wildcard "*" matches all events.
func (b *Bus) Subscribe(names ...string) <-chan Event {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	for _, name := range names {
		b.subs[name] = append(b.subs[name], ch)
	}
	return ch
}

// Publish fans the event out to all matching subscribers without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	PublishedTotal.WithLabelValues(ev.Name).Inc()

	for _, ch := range b.subs[ev.Name] {
		b.send(ch, ev)
	}
	for _, ch := range b.subs["*"] {
		b.send(ch, ev)
	}
}

func (b *Bus) send(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		DroppedTotal.WithLabelValues(ev.Name).Inc()
		b.logger.Warn("event-dropped-subscriber-full",
			zap.String("event", ev.Name),
			zap.String("aggregate-id", ev.AggregateID))
	}
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	seen := make(map[chan Event]struct{})
	for _, chans := range b.subs {
		for _, ch := range chans {
			if _, dup := seen[ch]; dup {
				continue
			}
			seen[ch] = struct{}{}
			close(ch)
		}
	}
	b.subs = nil
	b.logger.Info("event-bus-closed")
}
