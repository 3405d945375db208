// Package registry routes negotiation events from the outbox to their Pub/Sub
// topics and decodes their typed payloads.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/rubberops/tapping-backend/pkg/config"
	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/outbox"
	"github.com/rubberops/tapping-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate and fan-out topics.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topics        []string

	// decode returns the typed payload and the ledger it talks about.
	decode func(json.RawMessage) (any, uuid.UUID, error)
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row no amount of retrying will deliver.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func negotiationEvent[T any](eventType enums.OutboxEventType, ledgerOf func(*T) uuid.UUID, topics ...string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: enums.AggregateNegotiation,
		Topics:        topics,
		decode: func(data json.RawMessage) (any, uuid.UUID, error) {
			payload := new(T)
			if err := json.Unmarshal(data, payload); err != nil {
				return nil, uuid.Nil, err
			}
			return payload, ledgerOf(payload), nil
		},
	}
}

// EventRegistry maps each negotiation event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry wires the negotiation events to the configured topics. The
// domain topic feeds the application sync, the notification topic feeds
// in-app notifications and the analytics topic feeds the BigQuery writer.
// Reminders only reach the notification topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var missing error
	for _, topic := range []struct{ name, value string }{
		{"domain", cfg.DomainTopic},
		{"notification", cfg.NotificationTopic},
		{"analytics", cfg.AnalyticsTopic},
	} {
		if topic.value == "" {
			missing = multierr.Append(missing, fmt.Errorf("%s topic is required", topic.name))
		}
	}
	if missing != nil {
		return nil, missing
	}

	domain, notification, analytics := cfg.DomainTopic, cfg.NotificationTopic, cfg.AnalyticsTopic
	descriptors := []EventDescriptor{
		negotiationEvent(enums.EventProposalSubmitted,
			func(p *payloads.ProposalSubmittedEvent) uuid.UUID { return p.LedgerID },
			notification, analytics),
		negotiationEvent(enums.EventProposalRejected,
			func(p *payloads.ProposalRejectedEvent) uuid.UUID { return p.LedgerID },
			notification, analytics),
		negotiationEvent(enums.EventNegotiationAgreed,
			func(p *payloads.NegotiationAgreedEvent) uuid.UUID { return p.LedgerID },
			domain, notification, analytics),
		negotiationEvent(enums.EventNegotiationStale,
			func(p *payloads.NegotiationStaleEvent) uuid.UUID { return p.LedgerID },
			notification),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row will never get better.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, fmt.Errorf("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, errors.New("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if _, err := envelope.ParsedEventID(); err != nil {
		return nil, err
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("payload missing for %s", event.EventType)
	}

	payload, ledgerID, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}
	if ledgerID != event.AggregateID {
		return nil, fmt.Errorf("%s payload names ledger %s, row belongs to %s", event.EventType, ledgerID, event.AggregateID)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
