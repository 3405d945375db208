package negotiations

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/types"
)

func TestStaffOpensNegotiation(t *testing.T) {
	ledger := newLedger(uuid.New(), baseTime)

	transition, err := Evaluate(ledger, submit(enums.ActorStaff, "50", 100), baseTime)
	require.NoError(t, err)

	assert.True(t, transition.Created())
	assert.Equal(t, enums.NegotiationStatusSubmitted, transition.From)
	assert.Equal(t, enums.NegotiationStatusNegotiating, transition.To)
	assert.Empty(t, transition.Resolved)

	next := transition.Ledger
	current := next.CurrentProposal()
	require.NotNil(t, current)
	assert.Equal(t, enums.ActorStaff, current.ProposedBy())
	assert.Equal(t, 1, current.Sequence())
	assert.True(t, current.Rate().Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 100, current.TreeCount())

	awaiting, ok := next.AwaitingActor()
	require.True(t, ok)
	assert.Equal(t, enums.ActorFarmer, awaiting)

	assert.Equal(t, enums.NegotiationStatusSubmitted, ledger.Status(), "input ledger must not change")
	assert.Empty(t, ledger.History())
}

func TestFarmerAcceptsStaffProposal(t *testing.T) {
	ledger := apply(t, newLedger(uuid.New(), baseTime), submit(enums.ActorStaff, "50", 100), baseTime)

	transition, err := Evaluate(ledger, accept(enums.ActorFarmer), baseTime.Add(time.Hour))
	require.NoError(t, err)

	next := transition.Ledger
	assert.Equal(t, enums.NegotiationStatusAgreed, next.Status())
	assert.Nil(t, next.CurrentProposal())

	agreement := next.FinalAgreement()
	require.NotNil(t, agreement)
	assert.True(t, agreement.Rate.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 100, agreement.TreeCount)
	assert.Equal(t, next.History()[0].ID(), agreement.ProposalID)
	assert.Equal(t, enums.ProposalStatusAccepted, next.History()[0].Status())
	require.NotNil(t, transition.Agreement)
	assert.Equal(t, agreement.ProposalID, transition.Agreement.ProposalID)

	_, ok := next.AwaitingActor()
	assert.False(t, ok)
}

func TestCannotResolveOwnProposal(t *testing.T) {
	ledger := apply(t, newLedger(uuid.New(), baseTime), submit(enums.ActorStaff, "50", 100), baseTime)

	_, err := Evaluate(ledger, accept(enums.ActorStaff), baseTime)
	require.ErrorIs(t, err, ErrCannotAcceptOwnProposal)

	_, err = Evaluate(ledger, reject(enums.ActorStaff), baseTime)
	require.ErrorIs(t, err, ErrCannotRejectOwnProposal)

	_, err = Evaluate(ledger, submit(enums.ActorStaff, "48", 100), baseTime)
	require.ErrorIs(t, err, ErrCannotCounterOwnProposal)

	var transitionErr *TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, "cannot counter own proposal", transitionErr.Reason)

	assert.Equal(t, enums.NegotiationStatusNegotiating, ledger.Status())
	require.Len(t, ledger.History(), 1)
	assert.True(t, ledger.History()[0].IsPending())
}

func TestCounterSupersedesCurrentProposal(t *testing.T) {
	ledger := apply(t, newLedger(uuid.New(), baseTime), submit(enums.ActorStaff, "50", 100), baseTime)

	transition, err := Evaluate(ledger, submit(enums.ActorFarmer, "45", 100), baseTime.Add(time.Minute))
	require.NoError(t, err)

	next := transition.Ledger
	history := next.History()
	require.Len(t, history, 2)
	assert.Equal(t, enums.ProposalStatusCountered, history[0].Status())
	require.NotNil(t, history[0].ResolvedAt())
	assert.Equal(t, enums.ProposalStatusPending, history[1].Status())
	assert.Equal(t, enums.ActorFarmer, history[1].ProposedBy())
	assert.Equal(t, 2, history[1].Sequence())
	assert.Equal(t, enums.NegotiationStatusNegotiating, next.Status())
	assert.Equal(t, history[1].ID(), next.CurrentProposal().ID())

	require.Len(t, transition.Resolved, 1)
	assert.Equal(t, history[0].ID(), transition.Resolved[0].ID())
	assert.Equal(t, history[1].ID(), transition.Appended.ID())
}

// A farmer rejecting a staff offer leaves the ledger rejected, not negotiating:
// negotiating always carries exactly one pending proposal, and after a reject
// there is none until the farmer counters.
func TestRejectLeavesNoCurrentProposal(t *testing.T) {
	ledger := apply(t, newLedger(uuid.New(), baseTime), submit(enums.ActorStaff, "50", 100), baseTime)

	transition, err := Evaluate(ledger, reject(enums.ActorFarmer), baseTime.Add(time.Minute))
	require.NoError(t, err)

	next := transition.Ledger
	assert.Equal(t, enums.NegotiationStatusRejected, next.Status())
	assert.Nil(t, next.CurrentProposal())
	require.Len(t, next.History(), 1)
	assert.Equal(t, enums.ProposalStatusRejected, next.History()[0].Status())
	assert.Nil(t, next.FinalAgreement())

	awaiting, ok := next.AwaitingActor()
	require.True(t, ok)
	assert.Equal(t, enums.ActorFarmer, awaiting)

	_, err = Evaluate(next, accept(enums.ActorFarmer), baseTime.Add(2*time.Minute))
	require.ErrorIs(t, err, ErrNoPendingProposal)
	_, err = Evaluate(next, reject(enums.ActorStaff), baseTime.Add(2*time.Minute))
	require.ErrorIs(t, err, ErrNoPendingProposal)
}

func TestOnlyRejectingPartyReopens(t *testing.T) {
	ledger := apply(t, newLedger(uuid.New(), baseTime), submit(enums.ActorStaff, "50", 100), baseTime)
	ledger = apply(t, ledger, reject(enums.ActorFarmer), baseTime.Add(time.Minute))

	_, err := Evaluate(ledger, submit(enums.ActorStaff, "52", 100), baseTime.Add(2*time.Minute))
	require.ErrorIs(t, err, ErrOnlyRejectingPartyReopen)

	reopened := apply(t, ledger, submit(enums.ActorFarmer, "47", 90), baseTime.Add(2*time.Minute))
	assert.Equal(t, enums.NegotiationStatusNegotiating, reopened.Status())
	history := reopened.History()
	require.Len(t, history, 2)
	assert.Equal(t, enums.ProposalStatusRejected, history[0].Status())
	assert.Equal(t, enums.ActorFarmer, reopened.CurrentProposal().ProposedBy())
}

func TestFirstProposalMustComeFromStaff(t *testing.T) {
	ledger := newLedger(uuid.New(), baseTime)

	_, err := Evaluate(ledger, submit(enums.ActorFarmer, "50", 100), baseTime)
	require.ErrorIs(t, err, ErrFirstProposalFromStaff)

	_, err = Evaluate(ledger, accept(enums.ActorFarmer), baseTime)
	require.ErrorIs(t, err, ErrNoPendingProposal)
}

func TestAgreedLedgerIsTerminal(t *testing.T) {
	ledger := apply(t, newLedger(uuid.New(), baseTime), submit(enums.ActorStaff, "50", 100), baseTime)
	ledger = apply(t, ledger, submit(enums.ActorFarmer, "46", 100), baseTime.Add(time.Minute))
	ledger = apply(t, ledger, accept(enums.ActorStaff), baseTime.Add(2*time.Minute))
	require.Equal(t, enums.NegotiationStatusAgreed, ledger.Status())
	agreed := ledger.FinalAgreement()

	commands := []Command{
		submit(enums.ActorFarmer, "40", 100),
		submit(enums.ActorStaff, "40", 100),
		accept(enums.ActorFarmer),
		accept(enums.ActorStaff),
		reject(enums.ActorFarmer),
		reject(enums.ActorStaff),
	}
	for _, cmd := range commands {
		_, err := Evaluate(ledger, cmd, baseTime.Add(time.Hour))
		require.ErrorIs(t, err, ErrAlreadyAgreed, "%s by %s", cmd.Operation, cmd.Actor)
	}
	assert.Equal(t, agreed, ledger.FinalAgreement())
	assert.Len(t, ledger.History(), 2)
}

func TestProposedAtStrictlyIncreasesUnderFrozenClock(t *testing.T) {
	ledger := newLedger(uuid.New(), baseTime)
	actors := []enums.NegotiationActor{enums.ActorStaff, enums.ActorFarmer}
	for i := 0; i < 6; i++ {
		ledger = apply(t, ledger, submit(actors[i%2], "50", 100), baseTime)
	}

	history := ledger.History()
	require.Len(t, history, 6)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].Sequence()+1, history[i].Sequence())
		assert.True(t, history[i].ProposedAt().After(history[i-1].ProposedAt()))
		assert.NotEqual(t, history[i-1].ProposedBy(), history[i].ProposedBy())
	}
	assert.Equal(t, baseTime.Add(5*time.Microsecond), history[5].ProposedAt())
}

func TestClockGoingBackwardsKeepsOrdering(t *testing.T) {
	ledger := apply(t, newLedger(uuid.New(), baseTime), submit(enums.ActorStaff, "50", 100), baseTime)
	ledger = apply(t, ledger, submit(enums.ActorFarmer, "45", 100), baseTime.Add(-time.Hour))

	history := ledger.History()
	assert.True(t, history[1].ProposedAt().After(history[0].ProposedAt()))
}

func TestAlternationHoldsAcrossLongExchange(t *testing.T) {
	ledger := newLedger(uuid.New(), baseTime)
	script := []Command{
		submit(enums.ActorStaff, "60", 100),
		submit(enums.ActorFarmer, "40", 100),
		submit(enums.ActorStaff, "55", 100),
		reject(enums.ActorFarmer),
		submit(enums.ActorFarmer, "45", 110),
		submit(enums.ActorStaff, "50", 110),
		accept(enums.ActorFarmer),
	}
	now := baseTime
	for _, cmd := range script {
		now = now.Add(time.Minute)
		ledger = apply(t, ledger, cmd, now)
		require.NoError(t, ledger.checkInvariants())
	}

	assert.Equal(t, enums.NegotiationStatusAgreed, ledger.Status())
	history := ledger.History()
	require.Len(t, history, 5)
	for i := 1; i < len(history); i++ {
		assert.NotEqual(t, history[i-1].ProposedBy(), history[i].ProposedBy())
	}
	assert.True(t, ledger.FinalAgreement().Rate.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 110, ledger.FinalAgreement().TreeCount)
}

func TestAgreementCarriesTiming(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	cmd := submit(enums.ActorStaff, "50", 100)
	cmd.Terms.Timing = &types.Timing{
		StartDate:          &start,
		PreferredTimeSlots: []enums.TimeSlot{enums.TimeSlotEarlyMorning, enums.TimeSlotEarlyMorning},
	}
	ledger := apply(t, newLedger(uuid.New(), baseTime), cmd, baseTime)
	ledger = apply(t, ledger, accept(enums.ActorFarmer), baseTime.Add(time.Minute))

	agreement := ledger.FinalAgreement()
	require.NotNil(t, agreement.Timing)
	assert.Equal(t, []enums.TimeSlot{enums.TimeSlotEarlyMorning}, agreement.Timing.PreferredTimeSlots)

	agreement.Timing.PreferredTimeSlots[0] = enums.TimeSlotEvening
	assert.Equal(t, enums.TimeSlotEarlyMorning, ledger.FinalAgreement().Timing.PreferredTimeSlots[0])
}

func TestEvaluateRejectsUnknownActorAndOperation(t *testing.T) {
	ledger := newLedger(uuid.New(), baseTime)

	_, err := Evaluate(ledger, Command{Operation: OperationSubmit, Actor: "broker", Terms: terms("1", 1)}, baseTime)
	require.Error(t, err)

	_, err = Evaluate(ledger, Command{Operation: "withdraw", Actor: enums.ActorStaff}, baseTime)
	require.Error(t, err)

	_, err = Evaluate(nil, submit(enums.ActorStaff, "1", 1), baseTime)
	require.Error(t, err)
}

func TestTermsValidation(t *testing.T) {
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 1, 0)
	zero := 0
	longNotes := string(make([]rune, 11))

	cases := []struct {
		name   string
		terms  Terms
		fields []string
	}{
		{name: "valid", terms: terms("50.25", 10)},
		{name: "zero rate", terms: terms("0", 10), fields: []string{"proposedRate"}},
		{name: "negative rate", terms: terms("-1", 10), fields: []string{"proposedRate"}},
		{name: "sub cent rate", terms: terms("1.005", 10), fields: []string{"proposedRate"}},
		{name: "zero trees", terms: terms("1", 0), fields: []string{"proposedTreeCount"}},
		{name: "both", terms: terms("0", -3), fields: []string{"proposedRate", "proposedTreeCount"}},
		{
			name: "bad timing",
			terms: Terms{
				Rate:      decimal.NewFromInt(1),
				TreeCount: 1,
				Timing: &types.Timing{
					StartDate:             &start,
					EndDate:               &end,
					PreferredTimeSlots:    []enums.TimeSlot{"midnight"},
					WorkingDays:           []enums.WorkingDay{"someday"},
					EstimatedDurationDays: &zero,
				},
			},
			fields: []string{
				"proposedTiming.endDate",
				"proposedTiming.preferredTimeSlots",
				"proposedTiming.workingDays",
				"proposedTiming.estimatedDurationDays",
			},
		},
		{
			name:   "notes too long",
			terms:  Terms{Rate: decimal.NewFromInt(1), TreeCount: 1, Notes: &longNotes},
			fields: []string{"notes"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.terms.validate(10)
			if len(tc.fields) == 0 {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Len(t, verr.Fields, len(tc.fields))
			for _, field := range tc.fields {
				assert.Contains(t, verr.Fields, field)
			}
		})
	}
}

func TestTermsNormalized(t *testing.T) {
	blank := "   "
	notes := "  bring ladders  "
	empty := terms("50.10", 100)
	empty.Timing = &types.Timing{}
	empty.Notes = &blank

	out := empty.normalized()
	assert.Nil(t, out.Timing)
	assert.Nil(t, out.Notes)

	withNotes := terms("50.1", 100)
	withNotes.Notes = &notes
	withNotes.Timing = &types.Timing{WorkingDays: []enums.WorkingDay{enums.WorkingDayMonday, enums.WorkingDayMonday, enums.WorkingDayFriday}}
	out = withNotes.normalized()
	require.NotNil(t, out.Notes)
	assert.Equal(t, "bring ladders", *out.Notes)
	assert.Equal(t, []enums.WorkingDay{enums.WorkingDayMonday, enums.WorkingDayFriday}, out.Timing.WorkingDays)
	assert.Equal(t, "50.1", out.Rate.String())
}
