package negotiations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/rubberops/tapping-backend/pkg/db"
	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
)

// Repository persists ledgers and their proposal history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// FindByApplicationID returns gorm.ErrRecordNotFound when no ledger exists.
	FindByApplicationID(ctx context.Context, applicationID uuid.UUID) (*Ledger, error)
	// LockByApplicationID is FindByApplicationID with a row lock held until the transaction ends.
	LockByApplicationID(ctx context.Context, applicationID uuid.UUID) (*Ledger, error)
	// Save writes a transition guarded by the ledger version it was evaluated against.
	Save(ctx context.Context, t *Transition) error
	// ListStale returns pending proposals older than cutoff that were never reminded.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]StaleCandidate, error)
	// MarkReminded stamps reminded_at and reports false when another sweep got there first.
	MarkReminded(ctx context.Context, proposalID uuid.UUID, at time.Time) (bool, error)
}

// StaleCandidate is a negotiation whose pending proposal has waited since PendingSince.
type StaleCandidate struct {
	LedgerID      uuid.UUID              `gorm:"column:ledger_id"`
	ApplicationID uuid.UUID              `gorm:"column:application_id"`
	ProposalID    uuid.UUID              `gorm:"column:proposal_id"`
	ProposedBy    enums.NegotiationActor `gorm:"column:proposed_by"`
	PendingSince  time.Time              `gorm:"column:proposed_at"`
	FarmerUserID  uuid.UUID              `gorm:"column:farmer_user_id"`
	StaffUserID   uuid.UUID              `gorm:"column:staff_user_id"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a negotiations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByApplicationID(ctx context.Context, applicationID uuid.UUID) (*Ledger, error) {
	return r.load(ctx, applicationID, false)
}

func (r *repository) LockByApplicationID(ctx context.Context, applicationID uuid.UUID) (*Ledger, error) {
	return r.load(ctx, applicationID, true)
}

func (r *repository) load(ctx context.Context, applicationID uuid.UUID, forUpdate bool) (*Ledger, error) {
	query := r.db.WithContext(ctx).Where("application_id = ?", applicationID)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.NegotiationLedger
	if err := query.First(&row).Error; err != nil {
		return nil, err
	}

	var proposals []models.NegotiationProposal
	err := r.db.WithContext(ctx).
		Where("ledger_id = ?", row.ID).
		Order("sequence ASC").
		Find(&proposals).Error
	if err != nil {
		return nil, err
	}
	return ledgerFromModels(row, proposals), nil
}

func (r *repository) Save(ctx context.Context, t *Transition) error {
	if t == nil || t.Ledger == nil {
		return fmt.Errorf("transition required")
	}
	next := t.Ledger
	db := r.db.WithContext(ctx)

	if t.Created() {
		row := ledgerToModel(next)
		row.Version = 1
		if err := db.Omit(clause.Associations).Create(&row).Error; err != nil {
			return classifyWriteError(err)
		}
	} else {
		updates := map[string]any{
			"status":     next.status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": next.updatedAt,
		}
		if t.Agreement != nil {
			row := ledgerToModel(next)
			updates["agreed_rate"] = row.AgreedRate
			updates["agreed_tree_count"] = row.AgreedTreeCount
			updates["agreed_timing"] = row.AgreedTiming
			updates["agreed_at"] = row.AgreedAt
		}
		res := db.Model(&models.NegotiationLedger{}).
			Where("id = ? AND version = ?", next.id, t.expectedVersion).
			Updates(updates)
		if res.Error != nil {
			return classifyWriteError(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
	}

	for _, p := range t.Resolved {
		res := db.Model(&models.NegotiationProposal{}).
			Where("id = ? AND status = ?", p.id, enums.ProposalStatusPending).
			Updates(map[string]any{
				"status":      p.status,
				"resolved_at": p.resolvedAt,
			})
		if res.Error != nil {
			return classifyWriteError(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
	}

	if t.Appended != nil {
		row := proposalToModel(next, t.Appended)
		if err := db.Create(&row).Error; err != nil {
			return classifyWriteError(err)
		}
	}

	next.version = t.expectedVersion + 1
	return nil
}

func (r *repository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]StaleCandidate, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []StaleCandidate
	err := r.db.WithContext(ctx).
		Table("negotiation_ledgers AS l").
		Select("l.id AS ledger_id, l.application_id, p.id AS proposal_id, p.proposed_by, p.proposed_at, a.farmer_user_id, a.staff_user_id").
		Joins("JOIN negotiation_proposals AS p ON p.ledger_id = l.id AND p.status = ?", enums.ProposalStatusPending).
		Joins("JOIN service_applications AS a ON a.id = l.application_id").
		Where("l.status = ?", enums.NegotiationStatusNegotiating).
		Where("p.proposed_at < ?", cutoff).
		Where("p.reminded_at IS NULL").
		Order("p.proposed_at ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) MarkReminded(ctx context.Context, proposalID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.NegotiationProposal{}).
		Where("id = ? AND status = ? AND reminded_at IS NULL", proposalID, enums.ProposalStatusPending).
		Update("reminded_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// classifyWriteError turns losing-writer storage errors into ErrVersionConflict.
func classifyWriteError(err error) error {
	if dbpkg.IsConflict(err) {
		return fmt.Errorf("%w: %v", ErrVersionConflict, err)
	}
	return err
}
