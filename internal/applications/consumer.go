package applications

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/rubberops/tapping-backend/internal/consumers"
	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/outbox/payloads"
)

// ConsumerName keys the idempotency marks of the agreement sync.
const ConsumerName = "applications-sync"

// AgreementHandler copies negotiation_agreed events onto the application record.
type AgreementHandler struct {
	repo Repository
	logg *logger.Logger
}

// NewAgreementHandler builds the domain-topic handler.
func NewAgreementHandler(repo Repository, logg *logger.Logger) (*AgreementHandler, error) {
	if repo == nil {
		return nil, fmt.Errorf("applications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &AgreementHandler{repo: repo, logg: logg}, nil
}

// EventTypes lists the events this handler understands.
func (h *AgreementHandler) EventTypes() []enums.OutboxEventType {
	return []enums.OutboxEventType{enums.EventNegotiationAgreed}
}

// Handle implements consumers.Handler.
func (h *AgreementHandler) Handle(ctx context.Context, envelope consumers.Envelope) error {
	if envelope.EventType != enums.EventNegotiationAgreed {
		return nil
	}

	var payload payloads.NegotiationAgreedEvent
	if err := envelope.Decode(&payload); err != nil {
		return consumers.Permanent(fmt.Errorf("decode agreement payload: %w", err))
	}

	logCtx := h.logg.WithFields(ctx, map[string]any{
		"application_id": payload.ApplicationID.String(),
		"ledger_id":      payload.LedgerID.String(),
	})

	applied, err := h.repo.ApplyAgreement(ctx, payload.ApplicationID, Agreement{
		LedgerID:  payload.LedgerID,
		Rate:      payload.AgreedRate,
		TreeCount: payload.AgreedTreeCount,
		Timing:    payload.AgreedTiming,
		AgreedAt:  payload.AgreedAt,
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return consumers.Permanent(fmt.Errorf("application %s not found", payload.ApplicationID))
	case errors.Is(err, ErrAgreementConflict), errors.Is(err, ErrWithdrawn):
		return consumers.Permanent(err)
	case err != nil:
		return fmt.Errorf("apply agreement: %w", err)
	}

	if applied {
		h.logg.Info(logCtx, "application.agreement_applied")
	} else {
		h.logg.Info(logCtx, "application agreement already applied")
	}
	return nil
}
