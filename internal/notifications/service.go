package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
	"github.com/rubberops/tapping-backend/pkg/pagination"
)

// Service defines notification list/read operations for the signed-in user.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
}

type service struct {
	repo Repository
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID        uuid.UUID
	ApplicationID *uuid.UUID
	Limit         int
	Cursor        string
	UnreadOnly    bool
}

// View is the API shape of one notification.
type View struct {
	ID            uuid.UUID              `json:"id"`
	Type          enums.NotificationType `json:"type"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	Link          *string                `json:"link,omitempty"`
	ApplicationID *uuid.UUID             `json:"applicationId,omitempty"`
	Read          bool                   `json:"read"`
	ReadAt        *time.Time             `json:"readAt,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

func newView(n models.Notification) View {
	return View{
		ID:            n.ID,
		Type:          n.Type,
		Title:         n.Title,
		Message:       n.Message,
		Link:          n.Link,
		ApplicationID: n.ApplicationID,
		Read:          n.ReadAt != nil,
		ReadAt:        n.ReadAt,
		CreatedAt:     n.CreatedAt,
	}
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []View `json:"items"`
	Cursor string `json:"cursor,omitempty"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:        params.UserID,
		ApplicationID: params.ApplicationID,
		Limit:         pagination.Clamp(params.Limit),
		UnreadOnly:    params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.Decode(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	items := make([]View, 0, len(rows))
	for _, row := range rows {
		items = append(items, newView(row))
	}

	cursor := ""
	if next != nil {
		cursor = next.Encode()
	}

	return &ListResult{
		Items:  items,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	outcome, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if outcome == readMissing {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}
