package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateNegotiation        OutboxAggregateType = "negotiation"
	AggregateServiceApplication OutboxAggregateType = "service_application"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateNegotiation,
	AggregateServiceApplication,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", validAggregateTypes, value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventProposalSubmitted OutboxEventType = "proposal_submitted"
	EventProposalRejected  OutboxEventType = "proposal_rejected"
	EventNegotiationAgreed OutboxEventType = "negotiation_agreed"
	EventNegotiationStale  OutboxEventType = "negotiation_stale"
)

var validOutboxEventTypes = []OutboxEventType{
	EventProposalSubmitted,
	EventProposalRejected,
	EventNegotiationAgreed,
	EventNegotiationStale,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", validOutboxEventTypes, value)
}
