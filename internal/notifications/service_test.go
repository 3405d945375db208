package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
	paginationpkg "github.com/rubberops/tapping-backend/pkg/pagination"
)

type fakeRepository struct {
	listFn     func(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error)
	markReadFn func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (readOutcome, error)
	created    []*models.Notification
	createErr  error
}

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, notification)
	return nil
}

func (f *fakeRepository) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil, nil
}

func (f *fakeRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (readOutcome, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, userID, notificationID, now)
	}
	return readMissing, nil
}

func (f *fakeRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newServiceWithRepo(repo Repository) Service {
	svc, _ := NewService(repo)
	return svc
}

func TestService_ListNotifications(t *testing.T) {
	first := models.Notification{ID: uuid.New(), CreatedAt: time.Now().Add(-time.Hour)}
	userID := uuid.New()
	applicationID := uuid.New()

	repo := &fakeRepository{
		listFn: func(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error) {
			if params.Limit != 1 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			if params.UserID != userID {
				t.Fatalf("unexpected user %s", params.UserID)
			}
			if params.ApplicationID == nil || *params.ApplicationID != applicationID {
				t.Fatalf("expected application filter %s, got %v", applicationID, params.ApplicationID)
			}
			return []models.Notification{first}, &paginationpkg.Cursor{CreatedAt: first.CreatedAt, ID: first.ID}, nil
		},
	}

	svc := newServiceWithRepo(repo)
	result, err := svc.List(context.Background(), ListParams{UserID: userID, ApplicationID: &applicationID, Limit: 1})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(result.Items))
	}
	if result.Items[0].ID != first.ID || result.Items[0].Read {
		t.Fatalf("unexpected view %+v", result.Items[0])
	}
	if result.Cursor == "" {
		t.Fatal("expected cursor for next page")
	}
	decoded, err := paginationpkg.Decode(result.Cursor)
	if err != nil {
		t.Fatalf("invalid cursor %q: %v", result.Cursor, err)
	}
	if decoded.ID != first.ID {
		t.Fatalf("expected cursor id %s got %s", first.ID, decoded.ID)
	}
}

func TestService_ListNotificationsEmptyPage(t *testing.T) {
	svc := newServiceWithRepo(&fakeRepository{})
	result, err := svc.List(context.Background(), ListParams{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if result.Items == nil || len(result.Items) != 0 {
		t.Fatalf("expected empty non-nil items, got %#v", result.Items)
	}
	if result.Cursor != "" {
		t.Fatalf("expected no cursor, got %q", result.Cursor)
	}
}

func TestService_ListNotificationsInvalidInput(t *testing.T) {
	svc := newServiceWithRepo(&fakeRepository{})
	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "bad"})
	if err == nil {
		t.Fatal("expected error for invalid cursor")
	}
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %s", code)
	}

	_, err = svc.List(context.Background(), ListParams{})
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing user, got %s", code)
	}
}

func TestService_MarkRead(t *testing.T) {
	for _, outcome := range []readOutcome{readMarked, readAlready} {
		repo := &fakeRepository{
			markReadFn: func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (readOutcome, error) {
				return outcome, nil
			},
		}
		svc := newServiceWithRepo(repo)
		if err := svc.MarkRead(context.Background(), uuid.New(), uuid.New()); err != nil {
			t.Fatalf("outcome %d: unexpected mark read error: %v", outcome, err)
		}
	}
}

func TestService_MarkReadNotFound(t *testing.T) {
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (readOutcome, error) {
			return readMissing, nil
		},
	}
	svc := newServiceWithRepo(repo)
	if err := svc.MarkRead(context.Background(), uuid.New(), uuid.New()); err == nil {
		t.Fatal("expected not found error")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestService_MarkReadError(t *testing.T) {
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (readOutcome, error) {
			return readMissing, errors.New("boom")
		},
	}
	svc := newServiceWithRepo(repo)
	err := svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %s", code)
	}
}
