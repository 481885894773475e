// Package feed provides the change feed: a push mechanism that notifies
// subscribers of execution store writes without polling. Delivery is
// best-effort and at-most-once per write; a subscriber that connects after a
// write must load current state separately.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

// EventType identifies the kind of store write an event describes.
type EventType string

const (
	ExecutionInserted EventType = "execution.inserted"
	ExecutionUpdated  EventType = "execution.updated"
	ExecutionDeleted  EventType = "execution.deleted"
)

// Topic is the single topic all execution change events flow through.
const Topic = "flowrelay.executions"

const (
	eventTypeMetadataKey  = "event_type"
	workflowIDMetadataKey = "workflow_id"
)

// Event is one execution store write.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Execution *models.Execution `json:"execution"`
}

// Feed is the broadcast resource any number of subscribers may attach to.
// Publishing must never block the writer on slow subscribers.
type Feed interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter store.Filter) (*Subscription, error)
	Close() error
}

// Subscription delivers typed events on a channel. The channel is closed when
// the subscription ends, whether by Close or by the underlying transport
// dropping.
type Subscription struct {
	ch     chan Event
	cancel context.CancelFunc

	mu      sync.Mutex
	dropped int
}

// C returns the event channel. Events for a single execution arrive in write
// order; there is no cross-execution ordering guarantee.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because this subscriber's
// buffer was full.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dropped
}

// Close detaches the subscription. The event channel is closed once the
// delivery goroutine drains.
func (s *Subscription) Close() {
	s.cancel()
}

// deliver pushes an event without blocking, dropping it if the buffer is full.
func (s *Subscription) deliver(event Event) {
	select {
	case s.ch <- event:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}
