package consumers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/outbox"
)

// Envelope is a negotiation event as seen by a subscriber: the stored outbox
// envelope plus the routing attributes the publisher set on the message.
type Envelope struct {
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	OccurredAt    time.Time
	Actor         *outbox.ActorRef
	Data          json.RawMessage
}

// Decode unmarshals the typed payload carried by the envelope.
func (e Envelope) Decode(dest any) error {
	if len(e.Data) == 0 {
		return errors.New("payload missing")
	}
	return json.Unmarshal(e.Data, dest)
}

// DecodeMessage builds an Envelope from a Pub/Sub message. Every failure is
// permanent: a malformed message never becomes valid on redelivery.
func DecodeMessage(msg *gcppubsub.Message) (*Envelope, error) {
	if msg == nil {
		return nil, errors.New("message is nil")
	}

	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(attribute(msg, "event_type"))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attribute(msg, "aggregate_type"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID, err := uuid.Parse(attribute(msg, "aggregate_id"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_id: %w", err)
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = attribute(msg, "event_id")
	}
	if rawID == "" {
		return nil, errors.New("event_id missing")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("event_id: %w", err)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := attribute(msg, "created_at"); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	return &Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Actor:         stored.Actor,
		Data:          stored.Data,
	}, nil
}

func attribute(msg *gcppubsub.Message, key string) string {
	if msg.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(msg.Attributes[key])
}
