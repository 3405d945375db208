package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rubberops/tapping-backend/internal/analytics/writer"
	"github.com/rubberops/tapping-backend/internal/consumers"
	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/outbox/payloads"
)

// ConsumerName keys the idempotency marks of the analytics sink.
const ConsumerName = "negotiation-analytics"

type rowWriter interface {
	Insert(ctx context.Context, rows ...any) error
}

// Handler writes one BigQuery row per negotiation event.
type Handler struct {
	writer rowWriter
	logg   *logger.Logger
}

// NewHandler builds the analytics-topic handler.
func NewHandler(w rowWriter, logg *logger.Logger) (*Handler, error) {
	if w == nil {
		return nil, fmt.Errorf("analytics writer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Handler{writer: w, logg: logg}, nil
}

// EventTypes lists the events recorded in the warehouse.
func (h *Handler) EventTypes() []enums.OutboxEventType {
	return []enums.OutboxEventType{
		enums.EventProposalSubmitted,
		enums.EventProposalRejected,
		enums.EventNegotiationAgreed,
	}
}

// Handle implements consumers.Handler.
func (h *Handler) Handle(ctx context.Context, envelope consumers.Envelope) error {
	row, err := BuildRow(envelope)
	if err != nil {
		return consumers.Permanent(err)
	}
	if row == nil {
		return nil
	}

	if err := h.writer.Insert(ctx, row); err != nil {
		if !writer.IsRetryable(err) && ctx.Err() == nil {
			return consumers.Permanent(err)
		}
		return err
	}
	h.logg.Info(h.logg.WithField(ctx, "ledger_id", row.LedgerID), "negotiation event recorded")
	return nil
}

// BuildRow flattens an event into its warehouse row. Unknown events yield nil.
func BuildRow(envelope consumers.Envelope) (*NegotiationEventRow, error) {
	payloadJSON, err := writer.EncodeJSON(envelope.Data)
	if err != nil {
		return nil, err
	}
	row := &NegotiationEventRow{
		EventID:    envelope.EventID.String(),
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
		Payload:    payloadJSON,
	}
	if envelope.Actor != nil && envelope.Actor.UserID != uuid.Nil {
		row.ActorUserID = stringPtr(envelope.Actor.UserID.String())
	}

	switch envelope.EventType {
	case enums.EventProposalSubmitted:
		var payload payloads.ProposalSubmittedEvent
		if err := envelope.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode proposal submitted: %w", err)
		}
		row.ApplicationID = payload.ApplicationID.String()
		row.LedgerID = payload.LedgerID.String()
		row.ProposalID = stringPtr(payload.ProposalID.String())
		row.Sequence = int64Ptr(payload.Sequence)
		row.Actor = stringPtr(string(payload.ProposedBy))
		row.LedgerStatus = stringPtr(string(payload.LedgerStatus))
		row.Rate = rateString(payload.ProposedRate)
		row.TreeCount = int64Ptr(payload.ProposedTreeCount)

	case enums.EventProposalRejected:
		var payload payloads.ProposalRejectedEvent
		if err := envelope.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode proposal rejected: %w", err)
		}
		row.ApplicationID = payload.ApplicationID.String()
		row.LedgerID = payload.LedgerID.String()
		row.ProposalID = stringPtr(payload.ProposalID.String())
		row.Sequence = int64Ptr(payload.Sequence)
		row.Actor = stringPtr(string(payload.RejectedBy))
		row.LedgerStatus = stringPtr(string(payload.LedgerStatus))
		row.Rate = rateString(payload.ProposedRate)
		row.TreeCount = int64Ptr(payload.ProposedTreeCount)

	case enums.EventNegotiationAgreed:
		var payload payloads.NegotiationAgreedEvent
		if err := envelope.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode negotiation agreed: %w", err)
		}
		row.ApplicationID = payload.ApplicationID.String()
		row.LedgerID = payload.LedgerID.String()
		row.ProposalID = stringPtr(payload.ProposalID.String())
		row.Actor = stringPtr(string(payload.AcceptedBy))
		row.LedgerStatus = stringPtr(string(enums.NegotiationStatusAgreed))
		row.Rate = rateString(payload.AgreedRate)
		row.TreeCount = int64Ptr(payload.AgreedTreeCount)

	default:
		return nil, nil
	}
	return row, nil
}

func stringPtr(value string) *string {
	return &value
}

func int64Ptr(value int) *int64 {
	v := int64(value)
	return &v
}

func rateString(rate decimal.Decimal) *string {
	return stringPtr(rate.StringFixed(2))
}
