package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rubberops/tapping-backend/pkg/enums"
)

// Notification stores in-app notification payloads addressed to a single user.
type Notification struct {
	ID            uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID              `gorm:"type:uuid;not null"`
	ApplicationID *uuid.UUID             `gorm:"type:uuid"`
	Type          enums.NotificationType `gorm:"type:notification_type_enum;not null"`
	Title         string                 `gorm:"type:text;not null"`
	Message       string                 `gorm:"type:text;not null"`
	Link          *string                `gorm:"type:text"`
	ReadAt        *time.Time             `gorm:"type:timestamptz"`
	CreatedAt     time.Time              `gorm:"type:timestamptz;default:now()"`
}
