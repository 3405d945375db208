package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rubberops/tapping-backend/pkg/enums"
)

// OutboxEvent is a negotiation or application event waiting for the publisher.
// Payload holds the envelope whose eventId equals ID. PublishedAt is set once
// the row is delivered or dead-lettered.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	DedupeKey     *string                   `gorm:"column:dedupe_key"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
}
