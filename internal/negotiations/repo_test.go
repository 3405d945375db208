package negotiations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/types"
)

func saveTransition(t *testing.T, repo Repository, ledger *Ledger, cmd Command, now time.Time) *Ledger {
	t.Helper()
	transition, err := Evaluate(ledger, cmd, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), transition))
	return transition.Ledger
}

func TestRepositoryRoundTripsLedger(t *testing.T) {
	db := setupNegotiationDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	app := seedApplication(t, db)

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	notes := "north block only"
	first := submit(enums.ActorStaff, "50.50", 100)
	first.Terms.Timing = &types.Timing{StartDate: &start, WorkingDays: []enums.WorkingDay{enums.WorkingDayMonday}}
	first.Terms.Notes = &notes

	ledger := saveTransition(t, repo, newLedger(app.ID, baseTime), first, baseTime)
	assert.Equal(t, 1, ledger.Version())
	ledger = saveTransition(t, repo, ledger, submit(enums.ActorFarmer, "48", 100), baseTime.Add(time.Minute))
	assert.Equal(t, 2, ledger.Version())

	loaded, err := repo.FindByApplicationID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ID(), loaded.ID())
	assert.Equal(t, 2, loaded.Version())
	assert.Equal(t, enums.NegotiationStatusNegotiating, loaded.Status())

	history := loaded.History()
	require.Len(t, history, 2)
	assert.Equal(t, enums.ProposalStatusCountered, history[0].Status())
	assert.True(t, history[0].Rate().Equal(decimal.RequireFromString("50.5")))
	require.NotNil(t, history[0].Timing())
	assert.True(t, history[0].Timing().StartDate.Equal(start))
	require.NotNil(t, history[0].Notes())
	assert.Equal(t, notes, *history[0].Notes())
	assert.Equal(t, enums.ActorFarmer, loaded.CurrentProposal().ProposedBy())
	assert.True(t, history[1].ProposedAt().After(history[0].ProposedAt()))
	require.NoError(t, loaded.checkInvariants())
}

func TestRepositoryPersistsAgreement(t *testing.T) {
	db := setupNegotiationDB(t)
	repo := NewRepository(db)
	app := seedApplication(t, db)

	ledger := saveTransition(t, repo, newLedger(app.ID, baseTime), submit(enums.ActorStaff, "50", 100), baseTime)
	ledger = saveTransition(t, repo, ledger, accept(enums.ActorFarmer), baseTime.Add(time.Minute))

	var row models.NegotiationLedger
	require.NoError(t, db.Where("id = ?", ledger.ID()).First(&row).Error)
	assert.Equal(t, enums.NegotiationStatusAgreed, row.Status)
	require.NotNil(t, row.AgreedRate)
	assert.True(t, row.AgreedRate.Equal(decimal.NewFromInt(50)))
	require.NotNil(t, row.AgreedTreeCount)
	assert.Equal(t, 100, *row.AgreedTreeCount)
	require.NotNil(t, row.AgreedAt)

	loaded, err := repo.FindByApplicationID(context.Background(), app.ID)
	require.NoError(t, err)
	agreement := loaded.FinalAgreement()
	require.NotNil(t, agreement)
	assert.Equal(t, loaded.History()[0].ID(), agreement.ProposalID)
	require.NoError(t, loaded.checkInvariants())
}

func TestRepositoryDetectsStaleVersion(t *testing.T) {
	db := setupNegotiationDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	app := seedApplication(t, db)

	saveTransition(t, repo, newLedger(app.ID, baseTime), submit(enums.ActorStaff, "50", 100), baseTime)
	snapshot, err := repo.FindByApplicationID(ctx, app.ID)
	require.NoError(t, err)

	winner, err := Evaluate(snapshot, accept(enums.ActorFarmer), baseTime.Add(time.Minute))
	require.NoError(t, err)
	loser, err := Evaluate(snapshot, submit(enums.ActorFarmer, "45", 100), baseTime.Add(time.Minute))
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, winner))
	err = repo.Save(ctx, loser)
	require.ErrorIs(t, err, ErrVersionConflict)

	loaded, err := repo.FindByApplicationID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.NegotiationStatusAgreed, loaded.Status())
	assert.Len(t, loaded.History(), 1)
}

func TestRepositoryDuplicateLedgerIsConflict(t *testing.T) {
	db := setupNegotiationDB(t)
	repo := NewRepository(db)
	app := seedApplication(t, db)

	saveTransition(t, repo, newLedger(app.ID, baseTime), submit(enums.ActorStaff, "50", 100), baseTime)

	duplicate, err := Evaluate(newLedger(app.ID, baseTime), submit(enums.ActorStaff, "51", 100), baseTime)
	require.NoError(t, err)
	err = repo.Save(context.Background(), duplicate)
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestRepositoryMissingLedger(t *testing.T) {
	db := setupNegotiationDB(t)
	repo := NewRepository(db)

	_, err := repo.FindByApplicationID(context.Background(), uuid.New())
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := repo.WithTx(tx).LockByApplicationID(context.Background(), uuid.New())
		return err
	})
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRepositoryListStale(t *testing.T) {
	db := setupNegotiationDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	old := seedApplication(t, db)
	fresh := seedApplication(t, db)
	agreed := seedApplication(t, db)

	oldLedger := saveTransition(t, repo, newLedger(old.ID, baseTime), submit(enums.ActorStaff, "50", 100), baseTime)
	saveTransition(t, repo, newLedger(fresh.ID, baseTime), submit(enums.ActorStaff, "50", 100), baseTime.Add(72*time.Hour))
	agreedLedger := saveTransition(t, repo, newLedger(agreed.ID, baseTime), submit(enums.ActorStaff, "50", 100), baseTime)
	saveTransition(t, repo, agreedLedger, accept(enums.ActorFarmer), baseTime.Add(time.Hour))

	stale, err := repo.ListStale(ctx, baseTime.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	candidate := stale[0]
	assert.Equal(t, oldLedger.ID(), candidate.LedgerID)
	assert.Equal(t, old.ID, candidate.ApplicationID)
	assert.Equal(t, oldLedger.CurrentProposal().ID(), candidate.ProposalID)
	assert.Equal(t, enums.ActorStaff, candidate.ProposedBy)
	assert.Equal(t, old.FarmerUserID, candidate.FarmerUserID)
	assert.Equal(t, old.StaffUserID, candidate.StaffUserID)
	assert.True(t, candidate.PendingSince.Equal(baseTime))

	marked, err := repo.MarkReminded(ctx, candidate.ProposalID, baseTime.Add(25*time.Hour))
	require.NoError(t, err)
	assert.True(t, marked)
	marked, err = repo.MarkReminded(ctx, candidate.ProposalID, baseTime.Add(26*time.Hour))
	require.NoError(t, err)
	assert.False(t, marked, "reminded_at is stamped once")

	stale, err = repo.ListStale(ctx, baseTime.Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale, "reminded proposals drop out of the sweep")

	var row models.NegotiationProposal
	require.NoError(t, db.Where("id = ?", candidate.ProposalID).First(&row).Error)
	require.NotNil(t, row.RemindedAt)
	assert.True(t, row.RemindedAt.Equal(baseTime.Add(25*time.Hour)))
}
