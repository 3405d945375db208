package outbox

import (
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
)

const maxDLQErrorLen = 1024

// DLQRepository parks negotiation events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// DeadLetter builds the parked copy of event. AttemptCount carries the
// attempts made before the terminal one.
func DeadLetter(event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) models.OutboxDLQ {
	row := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		AttemptCount:  event.AttemptCount,
	}
	if cause != nil {
		msg := clip(cause.Error(), maxDLQErrorLen)
		row.ErrorMessage = &msg
	}
	return row
}

// DeadLetterTx parks event inside tx. Parking the same event twice keeps the first row.
func (r *DLQRepository) DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if tx == nil {
		return errTxRequired
	}
	row := DeadLetter(event, reason, cause)
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

// clip cuts msg to at most limit bytes without splitting a rune.
func clip(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	msg = msg[:limit]
	for len(msg) > 0 && !utf8.ValidString(msg) {
		msg = msg[:len(msg)-1]
	}
	return msg
}
