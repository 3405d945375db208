package negotiations

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/types"
)

// proposedAtStep keeps proposedAt strictly increasing at Postgres precision.
const proposedAtStep = time.Microsecond

// Agreement holds the terms locked in when a proposal is accepted.
type Agreement struct {
	ProposalID uuid.UUID
	Rate       decimal.Decimal
	TreeCount  int
	Timing     *types.Timing
	AgreedAt   time.Time
}

func (a *Agreement) clone() *Agreement {
	if a == nil {
		return nil
	}
	out := *a
	if a.Timing != nil {
		timing := a.Timing.Clone()
		out.Timing = &timing
	}
	return &out
}

// Ledger is the negotiation record of one service application: the ordered
// proposal history plus the derived current proposal and final agreement.
type Ledger struct {
	id            uuid.UUID
	applicationID uuid.UUID
	status        enums.NegotiationStatus
	version       int
	history       []*Proposal
	agreement     *Agreement
	createdAt     time.Time
	updatedAt     time.Time
}

func newLedger(applicationID uuid.UUID, now time.Time) *Ledger {
	return &Ledger{
		id:            uuid.New(),
		applicationID: applicationID,
		status:        enums.NegotiationStatusSubmitted,
		createdAt:     now,
		updatedAt:     now,
	}
}

func (l *Ledger) ID() uuid.UUID                   { return l.id }
func (l *Ledger) ApplicationID() uuid.UUID        { return l.applicationID }
func (l *Ledger) Status() enums.NegotiationStatus { return l.status }
func (l *Ledger) Version() int                    { return l.version }
func (l *Ledger) CreatedAt() time.Time            { return l.createdAt }
func (l *Ledger) UpdatedAt() time.Time            { return l.updatedAt }

// IsNew reports whether the ledger has never been persisted.
func (l *Ledger) IsNew() bool { return l.version == 0 }

// CurrentProposal returns the single pending proposal, or nil.
func (l *Ledger) CurrentProposal() *Proposal {
	for i := len(l.history) - 1; i >= 0; i-- {
		if l.history[i].IsPending() {
			return l.history[i]
		}
	}
	return nil
}

// LastProposal returns the most recent proposal regardless of status.
func (l *Ledger) LastProposal() *Proposal {
	if len(l.history) == 0 {
		return nil
	}
	return l.history[len(l.history)-1]
}

// History returns the proposals in commit order.
func (l *Ledger) History() []*Proposal {
	out := make([]*Proposal, len(l.history))
	copy(out, l.history)
	return out
}

// FinalAgreement returns a copy of the agreement, or nil before agreement.
func (l *Ledger) FinalAgreement() *Agreement {
	return l.agreement.clone()
}

// AwaitingActor reports who may act next, or false when nobody can.
func (l *Ledger) AwaitingActor() (enums.NegotiationActor, bool) {
	switch l.status {
	case enums.NegotiationStatusSubmitted:
		return enums.ActorStaff, true
	case enums.NegotiationStatusNegotiating:
		if current := l.CurrentProposal(); current != nil {
			return current.ProposedBy().Counterpart(), true
		}
	case enums.NegotiationStatusRejected:
		if last := l.LastProposal(); last != nil {
			return last.ProposedBy().Counterpart(), true
		}
	}
	return "", false
}

// appendProposal supersedes any pending proposal and adds p as the new
// pending entry with the next sequence and a strictly later proposedAt.
func (l *Ledger) appendProposal(p *Proposal, now time.Time) []*Proposal {
	var resolved []*Proposal
	if current := l.CurrentProposal(); current != nil {
		current.resolve(enums.ProposalStatusCountered, now)
		resolved = append(resolved, current)
	}

	p.sequence = 1
	p.proposedAt = now
	if last := l.LastProposal(); last != nil {
		p.sequence = last.sequence + 1
		if floor := last.proposedAt.Add(proposedAtStep); p.proposedAt.Before(floor) {
			p.proposedAt = floor
		}
	}
	p.status = enums.ProposalStatusPending
	l.history = append(l.history, p)
	l.status = enums.NegotiationStatusNegotiating
	l.updatedAt = now
	return resolved
}

// resolveCurrent marks the pending proposal accepted or rejected and moves the
// ledger to the matching status. Nothing is appended.
func (l *Ledger) resolveCurrent(status enums.ProposalStatus, now time.Time) (*Proposal, error) {
	current := l.CurrentProposal()
	if current == nil {
		return nil, ErrNoPendingProposal
	}
	switch status {
	case enums.ProposalStatusAccepted:
		l.status = enums.NegotiationStatusAccepted
	case enums.ProposalStatusRejected:
		l.status = enums.NegotiationStatusRejected
	default:
		return nil, fmt.Errorf("cannot resolve current proposal as %s", status)
	}
	current.resolve(status, now)
	l.updatedAt = now
	return current, nil
}

// finalize records the agreement and makes the ledger terminal. The last
// proposal must have been explicitly accepted and no agreement may exist.
func (l *Ledger) finalize(agreement Agreement) error {
	if l.agreement != nil {
		return ErrAlreadyAgreed
	}
	if l.CurrentProposal() != nil {
		return errors.New("cannot finalize while a proposal is pending")
	}
	accepted := l.LastProposal()
	if accepted == nil || accepted.Status() != enums.ProposalStatusAccepted || accepted.ID() != agreement.ProposalID {
		return errors.New("agreement must come from the accepted proposal")
	}
	l.agreement = agreement.clone()
	l.status = enums.NegotiationStatusAgreed
	l.updatedAt = agreement.AgreedAt
	return nil
}

// checkInvariants verifies the structural rules every committed ledger obeys.
func (l *Ledger) checkInvariants() error {
	if l.status != enums.NegotiationStatusSubmitted && len(l.history) == 0 {
		return fmt.Errorf("ledger %s in status %s has no history", l.id, l.status)
	}
	pending := 0
	for i, p := range l.history {
		if p.IsPending() {
			pending++
		}
		if i > 0 {
			prev := l.history[i-1]
			if p.sequence != prev.sequence+1 {
				return fmt.Errorf("ledger %s sequence gap at %d", l.id, p.sequence)
			}
			if !p.proposedAt.After(prev.proposedAt) {
				return fmt.Errorf("ledger %s proposal %d not after its predecessor", l.id, p.sequence)
			}
		}
	}
	switch l.status {
	case enums.NegotiationStatusNegotiating:
		if pending != 1 {
			return fmt.Errorf("ledger %s negotiating with %d pending proposals", l.id, pending)
		}
	case enums.NegotiationStatusAccepted, enums.NegotiationStatusRejected, enums.NegotiationStatusAgreed:
		if pending != 0 {
			return fmt.Errorf("ledger %s %s with %d pending proposals", l.id, l.status, pending)
		}
	}
	if (l.status == enums.NegotiationStatusAgreed) != (l.agreement != nil) {
		return fmt.Errorf("ledger %s status %s disagrees with agreement presence", l.id, l.status)
	}
	return nil
}

func (l *Ledger) clone() *Ledger {
	out := *l
	out.history = make([]*Proposal, len(l.history))
	for i, p := range l.history {
		out.history[i] = p.clone()
	}
	out.agreement = l.agreement.clone()
	return &out
}
