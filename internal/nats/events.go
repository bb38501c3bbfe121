package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/booking-assistant/internal/model"
)

const (
	// StreamName is the name of the turn event stream.
	StreamName = "BOOKING_CHAT_EVENTS"

	// SubjectPrefix is the prefix for all turn event subjects.
	SubjectPrefix = "chat"
)

// EventPublisher publishes turn events to JetStream.
type EventPublisher struct {
	client *Client
}

// NewEventPublisher creates a publisher over client.
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

// EnsureStream ensures the event stream exists.
func (p *EventPublisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Booking assistant turn outcomes",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for a turn event.
func EventSubject(sessionKey string, outcome model.TurnOutcome) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, kvKey(sessionKey), outcome)
}

// PublishTurn publishes one turn event.
func (p *EventPublisher) PublishTurn(ctx context.Context, event model.TurnEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.client.JetStream().Publish(ctx, EventSubject(event.SessionKey, event.Outcome), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
