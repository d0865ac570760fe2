package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type identifies a notification kind.
type Type string

// Notification types emitted by the protection core.
const (
	OrderCommitted       Type = "order_committed"
	OrderRevealed        Type = "order_revealed"
	OrderUnlocked        Type = "order_unlocked"
	CommitExpired        Type = "commit_expired"
	BatchExecuted        Type = "batch_executed"
	BatchFailed          Type = "batch_failed"
	OrderExecuted        Type = "order_executed"
	FrontRunningDetected Type = "front_running_detected"
	MetricsSnapshot      Type = "metrics_snapshot"
	ConfigUpdated        Type = "config_updated"
)

// Event is a single notification. Identifier fields are populated as
// relevant for the type; Payload carries type-specific data (for example a
// metrics snapshot).
type Event struct {
	Type       Type        `json:"type"`
	OrderID    string      `json:"order_id,omitempty"`
	CommitHash string      `json:"commit_hash,omitempty"`
	BatchID    string      `json:"batch_id,omitempty"`
	Market     string      `json:"market,omitempty"`
	At         time.Time   `json:"at"`
	Payload    interface{} `json:"payload,omitempty"`
}

// Bus delivers events to explicit subscribers over buffered channels.
// Publish never blocks: a subscriber that falls behind loses events and a
// drop counter is incremented. There is no global listener state; every
// consumer holds its own Subscription.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger *zap.Logger
	closed bool
}

// Subscription is a single subscriber's channel plus its type filter.
type Subscription struct {
	bus   *Bus
	types map[Type]struct{} // empty means all types
	ch    chan Event
}

// NewBus creates an event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers a subscriber for the given types (all types when none
// are given) with the given channel buffer size.
func (b *Bus) Subscribe(buffer int, types ...Type) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}

	sub := &Subscription{
		bus:   b,
		types: make(map[Type]struct{}, len(types)),
		ch:    make(chan Event, buffer),
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}

	return sub
}

// C returns the subscriber's receive channel. It is closed when the
// subscription is cancelled or the bus shuts down.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Cancel removes the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s]; !ok {
		return
	}
	delete(s.bus.subs, s)
	close(s.ch)
}

func (s *Subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Publish delivers ev to every matching subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	EventsPublishedTotal.WithLabelValues(string(ev.Type)).Inc()

	for sub := range b.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			EventsDroppedTotal.WithLabelValues(string(ev.Type)).Inc()
			b.logger.Warn("event-subscriber-full",
				zap.String("event-type", string(ev.Type)),
				zap.String("order-id", ev.OrderID))
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
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscription]struct{})
	b.logger.Info("event-bus-closed")
}
