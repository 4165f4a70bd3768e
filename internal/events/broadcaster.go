// Package events fans domain events out to live subscribers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PortNumber53/storefront/backend/internal/logger"
)

// Domain event types published by the checkout pipeline.
const (
	TypeOrderCreated         = "order.created"
	TypeOrderPaid            = "order.paid"
	TypeStockLow             = "stock.low"
	TypeSettingsUpdated      = "settings.updated"
	TypeMembershipSubscribed = "membership.subscribed"
	TypeMembershipCancelled  = "membership.cancelled"
)

// OrderStatusType returns the event type for an order status transition.
func OrderStatusType(status string) string {
	return "order." + status
}

// DefaultBuffer is the per-subscriber queue depth.
const DefaultBuffer = 32

const relayPublishTimeout = 2 * time.Second

// Event is an ephemeral notification. It is never persisted.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscription is one live consumer. C is closed when the subscription is
// removed, either by Close, by the broadcaster shutting down, or because the
// consumer fell behind.
type Subscription struct {
	ID uuid.UUID
	C  <-chan Event

	ch          chan Event
	broadcaster *Broadcaster
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.broadcaster.remove(s)
}

// Broadcaster is the process-wide registry of subscribers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool

	buffer int
	relay  Relay
	log    *logger.Logger
	now    func() time.Time
}

// NewBroadcaster returns an empty registry.
func NewBroadcaster(log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.Nop()
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: DefaultBuffer,
		log:    log.With("component", "EventBroadcaster"),
		now:    time.Now,
	}
}

// UseRelay routes publishes through relay and starts delivering what the
// relay forwards to local subscribers. The forwarder stops with ctx.
func (b *Broadcaster) UseRelay(ctx context.Context, relay Relay) error {
	if err := relay.StartForwarder(ctx, b.deliver); err != nil {
		return err
	}
	b.mu.Lock()
	b.relay = relay
	b.mu.Unlock()
	return nil
}

// Publish stamps and fans out an event. It never blocks on a subscriber and
// never fails the caller.
func (b *Broadcaster) Publish(eventType string, payload any) Event {
	ev := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: b.now().UTC(),
	}

	b.mu.Lock()
	relay := b.relay
	b.mu.Unlock()

	if relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
		err := relay.Publish(ctx, ev)
		cancel()
		if err == nil {
			return ev
		}
		b.log.Warn("relay publish failed; delivering locally", "type", eventType, "error", err)
	}

	b.deliver(ev)
	return ev
}

// Subscribe registers a new consumer. Only events published afterwards are
// delivered. On a closed broadcaster the returned channel is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{ID: uuid.New(), C: ch, ch: ch, broadcaster: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	b.log.Debug("subscriber added", "subscriber", sub.ID, "subscribers", len(b.subs))
	return sub
}

// Len reports the number of registered subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscriber. Later publishes are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *Broadcaster) deliver(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// A consumer that cannot keep up is disconnected.
			delete(b.subs, sub)
			close(sub.ch)
			b.log.Warn("dropping slow subscriber", "subscriber", sub.ID, "type", ev.Type)
		}
	}
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
	b.log.Debug("subscriber removed", "subscriber", sub.ID, "subscribers", len(b.subs))
}
