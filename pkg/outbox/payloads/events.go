package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/types"
)

// Parties names both users of an application so consumers can address the counterpart.
type Parties struct {
	FarmerUserID uuid.UUID `json:"farmerUserId"`
	StaffUserID  uuid.UUID `json:"staffUserId"`
}

// UserFor returns the user standing behind the given actor.
func (p Parties) UserFor(actor enums.NegotiationActor) uuid.UUID {
	if actor == enums.ActorFarmer {
		return p.FarmerUserID
	}
	return p.StaffUserID
}

// ProposalSubmittedEvent is emitted when a proposal opens or continues a negotiation.
type ProposalSubmittedEvent struct {
	Parties
	ApplicationID     uuid.UUID               `json:"applicationId"`
	LedgerID          uuid.UUID               `json:"ledgerId"`
	ProposalID        uuid.UUID               `json:"proposalId"`
	Sequence          int                     `json:"sequence"`
	ProposedBy        enums.NegotiationActor  `json:"proposedBy"`
	ProposedRate      decimal.Decimal         `json:"proposedRate"`
	ProposedTreeCount int                     `json:"proposedTreeCount"`
	ProposedTiming    *types.Timing           `json:"proposedTiming,omitempty"`
	LedgerStatus      enums.NegotiationStatus `json:"ledgerStatus"`
	ProposedAt        time.Time               `json:"proposedAt"`
}

// ProposalRejectedEvent is emitted when the pending proposal is declined.
type ProposalRejectedEvent struct {
	Parties
	ApplicationID     uuid.UUID               `json:"applicationId"`
	LedgerID          uuid.UUID               `json:"ledgerId"`
	ProposalID        uuid.UUID               `json:"proposalId"`
	Sequence          int                     `json:"sequence"`
	ProposedBy        enums.NegotiationActor  `json:"proposedBy"`
	RejectedBy        enums.NegotiationActor  `json:"rejectedBy"`
	ProposedRate      decimal.Decimal         `json:"proposedRate"`
	ProposedTreeCount int                     `json:"proposedTreeCount"`
	LedgerStatus      enums.NegotiationStatus `json:"ledgerStatus"`
	RejectedAt        time.Time               `json:"rejectedAt"`
}

// NegotiationAgreedEvent carries the final agreement to the application record.
type NegotiationAgreedEvent struct {
	Parties
	ApplicationID   uuid.UUID              `json:"applicationId"`
	LedgerID        uuid.UUID              `json:"ledgerId"`
	ProposalID      uuid.UUID              `json:"proposalId"`
	AcceptedBy      enums.NegotiationActor `json:"acceptedBy"`
	AgreedRate      decimal.Decimal        `json:"agreedRate"`
	AgreedTreeCount int                    `json:"agreedTreeCount"`
	AgreedTiming    *types.Timing          `json:"agreedTiming,omitempty"`
	AgreedAt        time.Time              `json:"agreedAt"`
}

// NegotiationStaleEvent nudges the party whose answer is overdue.
type NegotiationStaleEvent struct {
	Parties
	ApplicationID uuid.UUID              `json:"applicationId"`
	LedgerID      uuid.UUID              `json:"ledgerId"`
	ProposalID    uuid.UUID              `json:"proposalId"`
	AwaitingActor enums.NegotiationActor `json:"awaitingActor"`
	PendingSince  time.Time              `json:"pendingSince"`
}
