package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/grimoire-docs/grimoire/pkg/logger"
)

// Bus distributes runtime events to subscribers. Delivery is best-effort:
// a subscriber whose channel buffer is full misses the event rather than
// blocking the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	sequence    int64
	closed      bool
	log         *logger.Logger
}

// Subscriber receives filtered events on its channel.
type Subscriber struct {
	ID      string
	Filter  Filter
	Events  chan Event
	Since   time.Time
	dropped int64
	mu      sync.Mutex
	closed  bool
}

// Dropped returns how many events this subscriber missed due to a full buffer.
func (s *Subscriber) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// New creates an event bus.
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.Global()
	}
	return &Bus{
		subscribers: make(map[string]*Subscriber),
		log:         log.WithComponent("eventbus"),
	}
}

// Subscribe registers a subscriber with the given channel buffer size.
func (b *Bus) Subscribe(id string, filter Filter, buffer int) (*Subscriber, error) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, fmt.Errorf("subscriber %q already registered", id)
	}

	sub := &Subscriber{
		ID:     id,
		Filter: filter,
		Events: make(chan Event, buffer),
		Since:  time.Now(),
	}
	b.subscribers[id] = sub

	b.log.Debug("subscriber registered", "id", id, "types", filter.Types)
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	if ok {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.Events)
		}
		sub.mu.Unlock()
	}
}

// Publish delivers an event of the given type to all matching subscribers.
func (b *Bus) Publish(eventType string, payload map[string]any) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.sequence++
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Sequence:  b.sequence,
		Payload:   payload,
	}

	subs := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if !sub.Filter.Matches(event) {
			continue
		}

		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			continue
		}
		select {
		case sub.Events <- event:
		default:
			sub.dropped++
			b.log.Warn("subscriber buffer full, event dropped",
				"subscriber", sub.ID,
				"event_type", event.Type,
			)
		}
		sub.mu.Unlock()
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.Events)
		}
		sub.mu.Unlock()
	}
}
