package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/types"
)

// ServiceApplication is a staff member's application to serve a farmer's
// tapping request. The request terms are the farmer's original posting.
type ServiceApplication struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ServiceRequestID   uuid.UUID               `gorm:"column:service_request_id;type:uuid;not null"`
	FarmerUserID       uuid.UUID               `gorm:"column:farmer_user_id;type:uuid;not null"`
	StaffUserID        uuid.UUID               `gorm:"column:staff_user_id;type:uuid;not null"`
	Status             enums.ApplicationStatus `gorm:"column:status;type:application_status_enum;not null"`
	RequestedRate      decimal.Decimal         `gorm:"column:requested_rate;type:numeric(12,2);not null"`
	RequestedTreeCount int                     `gorm:"column:requested_tree_count;not null"`
	AgreedRate         *decimal.Decimal        `gorm:"column:agreed_rate;type:numeric(12,2)"`
	AgreedTreeCount    *int                    `gorm:"column:agreed_tree_count"`
	AgreedTiming       *types.Timing           `gorm:"column:agreed_timing;type:jsonb"`
	AgreedLedgerID     *uuid.UUID              `gorm:"column:agreed_ledger_id;type:uuid"`
	AgreedAt           *time.Time              `gorm:"column:agreed_at"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (ServiceApplication) TableName() string { return "service_applications" }
