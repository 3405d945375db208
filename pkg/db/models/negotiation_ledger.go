package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/types"
)

// NegotiationLedger is the per-application negotiation record.
// Agreed* columns stay NULL until the ledger reaches the agreed status.
type NegotiationLedger struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ApplicationID   uuid.UUID               `gorm:"column:application_id;type:uuid;not null;uniqueIndex:ux_negotiation_ledgers_application"`
	Status          enums.NegotiationStatus `gorm:"column:status;type:negotiation_status_enum;not null"`
	Version         int                     `gorm:"column:version;not null;default:0"`
	AgreedRate      *decimal.Decimal        `gorm:"column:agreed_rate;type:numeric(12,2)"`
	AgreedTreeCount *int                    `gorm:"column:agreed_tree_count"`
	AgreedTiming    *types.Timing           `gorm:"column:agreed_timing;type:jsonb"`
	AgreedAt        *time.Time              `gorm:"column:agreed_at"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`

	Proposals []NegotiationProposal `gorm:"foreignKey:LedgerID;references:ID"`
}

func (NegotiationLedger) TableName() string { return "negotiation_ledgers" }
