package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/flowrelay/flowrelay/pkg/store"
)

// DefaultSubscriptionBuffer is the per-subscriber event buffer size. When a
// subscriber falls this far behind, further events are dropped for it.
const DefaultSubscriptionBuffer = 256

// WatermillFeed implements Feed on top of a watermill publisher/subscriber
// pair. The gochannel transport serves in-process fan-out and tests; the kafka
// transport serves multi-process deployments.
type WatermillFeed struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
	buffer     int
}

// NewWatermillFeed creates a feed over the given transport pair.
func NewWatermillFeed(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillFeed {
	return &WatermillFeed{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "feed"),
		buffer:     DefaultSubscriptionBuffer,
	}
}

// Publish emits one store write to all current subscribers.
func (f *WatermillFeed) Publish(_ context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal feed event: %w", err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(eventTypeMetadataKey, string(event.Type))
	msg.Metadata.Set(workflowIDMetadataKey, event.Execution.WorkflowID)

	err = f.publisher.Publish(Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish feed event: %w", err)
	}

	return nil
}

// Subscribe attaches a new subscriber, optionally restricted to one workflow.
// Events are delivered on a buffered channel owned by the returned
// Subscription; when the buffer is full events are dropped for that subscriber
// so the publisher never blocks.
func (f *WatermillFeed) Subscribe(ctx context.Context, filter store.Filter) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	messages, err := f.subscriber.Subscribe(subCtx, Topic)
	if err != nil {
		cancel()

		return nil, fmt.Errorf("failed to subscribe to %s: %w", Topic, err)
	}

	sub := &Subscription{
		ch:     make(chan Event, f.buffer),
		cancel: cancel,
	}

	go f.run(subCtx, sub, filter, messages)

	return sub, nil
}

func (f *WatermillFeed) run(ctx context.Context, sub *Subscription, filter store.Filter, messages <-chan *message.Message) {
	defer close(sub.ch)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			if filter.WorkflowID != "" && msg.Metadata.Get(workflowIDMetadataKey) != filter.WorkflowID {
				msg.Ack()

				continue
			}

			var event Event

			err := json.Unmarshal(msg.Payload, &event)
			if err != nil {
				f.logger.ErrorContext(ctx, "Failed to decode feed event", "error", err)
				msg.Ack() // At-most-once: a malformed event is never redelivered

				continue
			}

			sub.deliver(event)
			msg.Ack()
		}
	}
}

// Close closes the underlying transport.
func (f *WatermillFeed) Close() error {
	err := f.publisher.Close()
	if err != nil {
		return err
	}

	return f.subscriber.Close()
}
