package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/rubberops/tapping-backend/pkg/db"
	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/logger"
)

// Matches both the Postgres index name and the SQLite column in violation messages.
const dedupeConstraint = "dedupe_key"

// DomainEvent is what the negotiation service queues inside its transaction.
// A DedupeKey makes EmitIfNotExists skip events already queued under it.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
	DedupeKey     string
}

// seal wraps the event in its envelope. The envelope event id is the row id,
// so consumers and the dead-letter table name an event the same way.
func (e DomainEvent) seal(now time.Time) (models.OutboxEvent, error) {
	if !e.EventType.IsValid() {
		return models.OutboxEvent{}, fmt.Errorf("unknown event type %q", e.EventType)
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:    max(e.Version, 1),
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = now
	}
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
	}
	envelope.EventID = row.ID.String()
	if row.Payload, err = json.Marshal(envelope); err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode %s envelope: %w", e.EventType, err)
	}
	if e.DedupeKey != "" {
		key := e.DedupeKey
		row.DedupeKey = &key
	}
	return row, nil
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

// Emit queues event in tx. The publisher picks it up once tx commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	row, err := event.seal(s.now())
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":     row.ID.String(),
			"event_type":   row.EventType,
			"aggregate_id": row.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitIfNotExists queues event unless one with its dedupe key, or without a
// key one of the same type for the same aggregate, is already stored. A
// concurrent insert that wins the dedupe index counts as already stored.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	var exists bool
	var err error
	if event.DedupeKey != "" {
		exists, err = s.repo.ExistsByDedupeKeyTx(tx, event.DedupeKey)
	} else {
		exists, err = s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	}
	if err != nil || exists {
		return err
	}
	err = s.Emit(ctx, tx, event)
	if dbpkg.IsUniqueViolation(err, dedupeConstraint) {
		return nil
	}
	return err
}
