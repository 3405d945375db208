package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rubberops/tapping-backend/internal/consumers"
	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/logger"
	"github.com/rubberops/tapping-backend/pkg/outbox/payloads"
)

// ConsumerName keys the idempotency marks of the notification fan-out.
const ConsumerName = "negotiation-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Handler turns negotiation events into an in-app notification for the party
// who has to react next.
type Handler struct {
	repo repository
	logg *logger.Logger
}

// NewHandler builds the notification-topic handler.
func NewHandler(repo repository, logg *logger.Logger) (*Handler, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Handler{repo: repo, logg: logg}, nil
}

// EventTypes lists the events that produce notifications.
func (h *Handler) EventTypes() []enums.OutboxEventType {
	return []enums.OutboxEventType{
		enums.EventProposalSubmitted,
		enums.EventProposalRejected,
		enums.EventNegotiationAgreed,
		enums.EventNegotiationStale,
	}
}

// Handle implements consumers.Handler.
func (h *Handler) Handle(ctx context.Context, envelope consumers.Envelope) error {
	notification, err := buildNotification(envelope)
	if err != nil {
		return consumers.Permanent(err)
	}
	if notification == nil {
		return nil
	}
	if notification.UserID == uuid.Nil {
		return consumers.Permanent(fmt.Errorf("recipient missing for %s", envelope.EventType))
	}

	if err := h.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	h.logg.Info(h.logg.WithFields(ctx, map[string]any{
		"recipient_id":      notification.UserID.String(),
		"notification_type": notification.Type,
	}), "notification created")
	return nil
}

func buildNotification(envelope consumers.Envelope) (*models.Notification, error) {
	switch envelope.EventType {
	case enums.EventProposalSubmitted:
		var payload payloads.ProposalSubmittedEvent
		if err := envelope.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode proposal submitted: %w", err)
		}
		title := "Counter-proposal received"
		if payload.Sequence == 1 {
			title = "New proposal received"
		}
		return newNotification(
			payload.UserFor(payload.ProposedBy.Counterpart()),
			payload.ApplicationID,
			enums.NotificationTypeProposalReceived,
			title,
			fmt.Sprintf("The %s proposed %s per tree for %d trees.", payload.ProposedBy, payload.ProposedRate.StringFixed(2), payload.ProposedTreeCount),
		), nil

	case enums.EventProposalRejected:
		var payload payloads.ProposalRejectedEvent
		if err := envelope.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode proposal rejected: %w", err)
		}
		return newNotification(
			payload.UserFor(payload.ProposedBy),
			payload.ApplicationID,
			enums.NotificationTypeProposalRejected,
			"Proposal rejected",
			fmt.Sprintf("The %s rejected your proposal of %s per tree. You can send a new one.", payload.RejectedBy, payload.ProposedRate.StringFixed(2)),
		), nil

	case enums.EventNegotiationAgreed:
		var payload payloads.NegotiationAgreedEvent
		if err := envelope.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode negotiation agreed: %w", err)
		}
		return newNotification(
			payload.UserFor(payload.AcceptedBy.Counterpart()),
			payload.ApplicationID,
			enums.NotificationTypeAgreementReached,
			"Agreement reached",
			fmt.Sprintf("The %s accepted %s per tree for %d trees.", payload.AcceptedBy, payload.AgreedRate.StringFixed(2), payload.AgreedTreeCount),
		), nil

	case enums.EventNegotiationStale:
		var payload payloads.NegotiationStaleEvent
		if err := envelope.Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode negotiation stale: %w", err)
		}
		return newNotification(
			payload.UserFor(payload.AwaitingActor),
			payload.ApplicationID,
			enums.NotificationTypeReminder,
			"A proposal is waiting for you",
			fmt.Sprintf("A proposal has been pending since %s.", payload.PendingSince.UTC().Format("2 Jan 2006")),
		), nil
	}
	return nil, nil
}

func newNotification(userID, applicationID uuid.UUID, kind enums.NotificationType, title, message string) *models.Notification {
	link := fmt.Sprintf("/applications/%s/negotiation", applicationID)
	appID := applicationID
	return &models.Notification{
		UserID:        userID,
		ApplicationID: &appID,
		Type:          kind,
		Title:         title,
		Message:       message,
		Link:          &link,
	}
}
