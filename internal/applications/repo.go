package applications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/types"
)

var (
	// ErrAgreementConflict means the application already carries an agreement
	// from a different ledger.
	ErrAgreementConflict = errors.New("application already agreed under another ledger")
	// ErrWithdrawn means the application left the marketplace before the agreement landed.
	ErrWithdrawn = errors.New("application withdrawn")
)

// Agreement is the negotiated outcome copied onto the application record.
type Agreement struct {
	LedgerID  uuid.UUID
	Rate      decimal.Decimal
	TreeCount int
	Timing    *types.Timing
	AgreedAt  time.Time
}

// Repository exposes persistence helpers for service applications.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceApplication, error)
	ApplyAgreement(ctx context.Context, applicationID uuid.UUID, agreement Agreement) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to a gorm handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceApplication, error) {
	var app models.ServiceApplication
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

// ApplyAgreement stamps the agreement onto the application. It reports false
// when the same ledger was already applied, which makes redelivery a no-op.
func (r *repository) ApplyAgreement(ctx context.Context, applicationID uuid.UUID, agreement Agreement) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ServiceApplication{}).
		Where("id = ? AND agreed_ledger_id IS NULL AND status <> ?", applicationID, enums.ApplicationStatusWithdrawn).
		Updates(map[string]any{
			"status":            enums.ApplicationStatusAgreed,
			"agreed_rate":       agreement.Rate,
			"agreed_tree_count": agreement.TreeCount,
			"agreed_timing":     agreement.Timing,
			"agreed_ledger_id":  agreement.LedgerID,
			"agreed_at":         agreement.AgreedAt.UTC(),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	app, err := r.FindByID(ctx, applicationID)
	if err != nil {
		return false, err
	}
	if app.AgreedLedgerID != nil && *app.AgreedLedgerID == agreement.LedgerID {
		return false, nil
	}
	if app.Status == enums.ApplicationStatusWithdrawn {
		return false, ErrWithdrawn
	}
	return false, ErrAgreementConflict
}
