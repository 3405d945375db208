package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/types"
)

// NegotiationProposal is one immutable offer inside a ledger's history.
// Only Status and ResolvedAt change after insert, exactly once. RemindedAt is
// stamped once when the stale sweep sends its reminder.
type NegotiationProposal struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LedgerID          uuid.UUID              `gorm:"column:ledger_id;type:uuid;not null;uniqueIndex:ux_negotiation_proposals_sequence,priority:1"`
	Sequence          int                    `gorm:"column:sequence;not null;uniqueIndex:ux_negotiation_proposals_sequence,priority:2"`
	ProposedBy        enums.NegotiationActor `gorm:"column:proposed_by;type:negotiation_actor_enum;not null"`
	ProposedByUserID  *uuid.UUID             `gorm:"column:proposed_by_user_id;type:uuid"`
	ProposedRate      decimal.Decimal        `gorm:"column:proposed_rate;type:numeric(12,2);not null"`
	ProposedTreeCount int                    `gorm:"column:proposed_tree_count;not null"`
	ProposedTiming    *types.Timing          `gorm:"column:proposed_timing;type:jsonb"`
	Notes             *string                `gorm:"column:notes"`
	Status            enums.ProposalStatus   `gorm:"column:status;type:proposal_status_enum;not null"`
	ProposedAt        time.Time              `gorm:"column:proposed_at;not null"`
	ResolvedAt        *time.Time             `gorm:"column:resolved_at"`
	RemindedAt        *time.Time             `gorm:"column:reminded_at"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (NegotiationProposal) TableName() string { return "negotiation_proposals" }
