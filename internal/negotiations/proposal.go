package negotiations

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/types"
)

// Terms are the negotiable parts of a proposal.
type Terms struct {
	Rate      decimal.Decimal
	TreeCount int
	Timing    *types.Timing
	Notes     *string
}

// validate checks the terms against the limits shared by every proposal.
// maxNotes <= 0 disables the notes length check.
func (t Terms) validate(maxNotes int) error {
	verr := &ValidationError{}
	if !t.Rate.IsPositive() {
		verr.add("proposedRate", "must be greater than zero")
	} else if !t.Rate.Equal(t.Rate.Round(2)) {
		verr.add("proposedRate", "must have at most two decimal places")
	}
	if t.TreeCount <= 0 {
		verr.add("proposedTreeCount", "must be greater than zero")
	}
	if t.Notes != nil && maxNotes > 0 && len([]rune(*t.Notes)) > maxNotes {
		verr.add("notes", "too long")
	}
	if t.Timing != nil {
		validateTiming(*t.Timing, verr)
	}
	return verr.orNil()
}

func validateTiming(timing types.Timing, verr *ValidationError) {
	if timing.StartDate != nil && timing.EndDate != nil && timing.EndDate.Before(*timing.StartDate) {
		verr.add("proposedTiming.endDate", "must not be before startDate")
	}
	for _, slot := range timing.PreferredTimeSlots {
		if !slot.IsValid() {
			verr.add("proposedTiming.preferredTimeSlots", "unknown time slot "+string(slot))
		}
	}
	for _, day := range timing.WorkingDays {
		if !day.IsValid() {
			verr.add("proposedTiming.workingDays", "unknown working day "+string(day))
		}
	}
	if timing.EstimatedDurationDays != nil && *timing.EstimatedDurationDays <= 0 {
		verr.add("proposedTiming.estimatedDurationDays", "must be greater than zero")
	}
}

// normalized returns a copy safe to store: rate rounded to cents, empty timing
// dropped, blank notes dropped, slot and day sets deduplicated.
func (t Terms) normalized() Terms {
	out := Terms{
		Rate:      t.Rate.Round(2),
		TreeCount: t.TreeCount,
	}
	if t.Timing != nil && !t.Timing.IsZero() {
		timing := t.Timing.Clone()
		timing.PreferredTimeSlots = dedupeSlots(timing.PreferredTimeSlots)
		timing.WorkingDays = dedupeDays(timing.WorkingDays)
		out.Timing = &timing
	}
	if t.Notes != nil {
		if trimmed := strings.TrimSpace(*t.Notes); trimmed != "" {
			out.Notes = &trimmed
		}
	}
	return out
}

func dedupeSlots(in []enums.TimeSlot) []enums.TimeSlot {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[enums.TimeSlot]struct{}, len(in))
	out := make([]enums.TimeSlot, 0, len(in))
	for _, slot := range in {
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	return out
}

func dedupeDays(in []enums.WorkingDay) []enums.WorkingDay {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[enums.WorkingDay]struct{}, len(in))
	out := make([]enums.WorkingDay, 0, len(in))
	for _, day := range in {
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	return out
}

// Proposal is one offer in a ledger's history. Terms never change after
// construction; status moves once from pending to a resolved value.
type Proposal struct {
	id               uuid.UUID
	sequence         int
	proposedBy       enums.NegotiationActor
	proposedByUserID *uuid.UUID
	terms            Terms
	status           enums.ProposalStatus
	proposedAt       time.Time
	resolvedAt       *time.Time
}

func newProposal(actor enums.NegotiationActor, userID *uuid.UUID, terms Terms) *Proposal {
	return &Proposal{
		id:               uuid.New(),
		proposedBy:       actor,
		proposedByUserID: userID,
		terms:            terms.normalized(),
		status:           enums.ProposalStatusPending,
	}
}

func (p *Proposal) ID() uuid.UUID                      { return p.id }
func (p *Proposal) Sequence() int                      { return p.sequence }
func (p *Proposal) ProposedBy() enums.NegotiationActor { return p.proposedBy }
func (p *Proposal) Rate() decimal.Decimal              { return p.terms.Rate }
func (p *Proposal) TreeCount() int                     { return p.terms.TreeCount }
func (p *Proposal) Status() enums.ProposalStatus       { return p.status }
func (p *Proposal) ProposedAt() time.Time              { return p.proposedAt }
func (p *Proposal) IsPending() bool                    { return p.status == enums.ProposalStatusPending }

// ProposedByUserID returns the user who submitted the proposal, when known.
func (p *Proposal) ProposedByUserID() *uuid.UUID {
	if p.proposedByUserID == nil {
		return nil
	}
	id := *p.proposedByUserID
	return &id
}

// Timing returns a copy of the proposed timing, or nil when unspecified.
func (p *Proposal) Timing() *types.Timing {
	if p.terms.Timing == nil {
		return nil
	}
	clone := p.terms.Timing.Clone()
	return &clone
}

func (p *Proposal) Notes() *string {
	if p.terms.Notes == nil {
		return nil
	}
	notes := *p.terms.Notes
	return &notes
}

func (p *Proposal) ResolvedAt() *time.Time {
	if p.resolvedAt == nil {
		return nil
	}
	at := *p.resolvedAt
	return &at
}

// resolve settles a pending proposal. Resolved proposals never change again.
func (p *Proposal) resolve(status enums.ProposalStatus, at time.Time) bool {
	if !p.IsPending() || !status.IsResolved() {
		return false
	}
	p.status = status
	p.resolvedAt = &at
	return true
}

func (p *Proposal) clone() *Proposal {
	out := *p
	out.proposedByUserID = p.ProposedByUserID()
	out.terms.Timing = p.Timing()
	out.terms.Notes = p.Notes()
	out.resolvedAt = p.ResolvedAt()
	return &out
}
