package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/pagination"
)

// Repository stores the negotiation notifications addressed to each user.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (readOutcome, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type listNotificationsParams struct {
	UserID        uuid.UUID
	ApplicationID *uuid.UUID
	Limit         int
	Cursor        *pagination.Cursor
	UnreadOnly    bool
}

type readOutcome int

const (
	readMissing readOutcome = iota
	readAlready
	readMarked
)

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(notification).Error
}

// List pages through a user's notifications newest first, optionally only
// those about one application. The cursor points at the last row returned.
func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", params.UserID)
	if params.ApplicationID != nil {
		query = query.Where("application_id = ?", *params.ApplicationID)
	}
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	var rows []models.Notification
	if err := pagination.Seek(query, params.Cursor, params.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

// MarkRead stamps read_at once. Notifications of other users read as missing.
func (r *repositoryImpl) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (readOutcome, error) {
	owned := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Session(&gorm.Session{})

	res := owned.Where("read_at IS NULL").UpdateColumn("read_at", now)
	if res.Error != nil {
		return readMissing, res.Error
	}
	if res.RowsAffected > 0 {
		return readMarked, nil
	}

	var existing models.Notification
	err := owned.Select("id").Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return readMissing, nil
	case err != nil:
		return readMissing, err
	default:
		return readAlready, nil
	}
}

// DeleteReadBefore removes notifications read before cutoff.
func (r *repositoryImpl) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
