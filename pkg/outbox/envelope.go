package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ParsedEventID returns the envelope event id as a UUID.
func (e PayloadEnvelope) ParsedEventID() (uuid.UUID, error) {
	if e.EventID == "" {
		return uuid.Nil, errors.New("event id missing")
	}
	id, err := uuid.Parse(e.EventID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse event id: %w", err)
	}
	return id, nil
}

// DecodeData unmarshals the envelope data into dest.
func (e PayloadEnvelope) DecodeData(dest any) error {
	if len(e.Data) == 0 {
		return errors.New("event data missing")
	}
	return json.Unmarshal(e.Data, dest)
}
