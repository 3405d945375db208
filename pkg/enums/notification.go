package enums

import "slices"

// NotificationType maps to the notification_type_enum in Postgres.
type NotificationType string

const (
	NotificationTypeProposalReceived NotificationType = "proposal_received"
	NotificationTypeProposalRejected NotificationType = "proposal_rejected"
	NotificationTypeAgreementReached NotificationType = "agreement_reached"
	NotificationTypeReminder         NotificationType = "negotiation_reminder"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeProposalReceived,
	NotificationTypeProposalRejected,
	NotificationTypeAgreementReached,
	NotificationTypeReminder,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, n)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse("notification type", validNotificationTypes, value)
}
