package notifications

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
)

func setupNotificationsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  application_id TEXT,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  read_at DATETIME,
  created_at DATETIME
);`).Error)
	return db
}

func seedNotification(t *testing.T, repo Repository, userID uuid.UUID, createdAt time.Time) models.Notification {
	t.Helper()
	n := &models.Notification{
		UserID:    userID,
		Type:      enums.NotificationTypeProposalReceived,
		Title:     "New proposal received",
		Message:   "The staff proposed 50.00 per tree for 100 trees.",
		CreatedAt: createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), n))
	return *n
}

func TestRepositoryListPagesNewestFirst(t *testing.T) {
	db := setupNotificationsDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	var seeded []models.Notification
	for i := 0; i < 3; i++ {
		seeded = append(seeded, seedNotification(t, repo, userID, base.Add(time.Duration(i)*time.Minute)))
	}
	seedNotification(t, repo, uuid.New(), base)

	page, cursor, err := repo.List(ctx, listNotificationsParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, seeded[2].ID, page[0].ID)
	assert.Equal(t, seeded[1].ID, page[1].ID)
	require.NotNil(t, cursor)

	rest, next, err := repo.List(ctx, listNotificationsParams{UserID: userID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, seeded[0].ID, rest[0].ID)
	assert.Nil(t, next)
}

func TestRepositoryListFiltersByApplication(t *testing.T) {
	db := setupNotificationsDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	applicationID := uuid.New()
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	about := seedNotification(t, repo, userID, base)
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", about.ID).
		UpdateColumn("application_id", applicationID).Error)
	seedNotification(t, repo, userID, base.Add(time.Minute))

	rows, next, err := repo.List(ctx, listNotificationsParams{UserID: userID, ApplicationID: &applicationID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, about.ID, rows[0].ID)
	assert.Nil(t, next)
}

func TestRepositoryMarkReadAndCleanup(t *testing.T) {
	db := setupNotificationsDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	n := seedNotification(t, repo, userID, time.Now().UTC())
	readAt := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	outcome, err := repo.MarkRead(ctx, uuid.New(), n.ID, readAt)
	require.NoError(t, err)
	assert.Equal(t, readMissing, outcome, "other users cannot see the notification")

	outcome, err = repo.MarkRead(ctx, userID, n.ID, readAt)
	require.NoError(t, err)
	assert.Equal(t, readMarked, outcome)

	outcome, err = repo.MarkRead(ctx, userID, n.ID, readAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, readAlready, outcome)

	var stored models.Notification
	require.NoError(t, db.First(&stored, "id = ?", n.ID).Error)
	require.NotNil(t, stored.ReadAt)
	assert.True(t, stored.ReadAt.Equal(readAt), "a second read keeps the first timestamp")

	unread, _, err := repo.List(ctx, listNotificationsParams{UserID: userID, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)

	deleted, err := repo.DeleteReadBefore(ctx, readAt.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.DeleteReadBefore(ctx, readAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
