package negotiations

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rubberops/tapping-backend/pkg/enums"
)

// Operation names a mutating negotiation call.
type Operation string

const (
	OperationSubmit Operation = "submit"
	OperationAccept Operation = "accept"
	OperationReject Operation = "reject"
)

// allowedTransitions lists the ledger statuses reachable from each status.
// Accept passes through accepted and lands on agreed within one commit.
var allowedTransitions = map[enums.NegotiationStatus][]enums.NegotiationStatus{
	enums.NegotiationStatusSubmitted:   {enums.NegotiationStatusNegotiating},
	enums.NegotiationStatusNegotiating: {enums.NegotiationStatusNegotiating, enums.NegotiationStatusAccepted, enums.NegotiationStatusRejected},
	enums.NegotiationStatusRejected:    {enums.NegotiationStatusNegotiating},
	enums.NegotiationStatusAccepted:    {enums.NegotiationStatusAgreed},
	enums.NegotiationStatusAgreed:      {},
}

func canTransition(from, to enums.NegotiationStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Command is one actor's request against a ledger.
type Command struct {
	Operation   Operation
	Actor       enums.NegotiationActor
	ActorUserID *uuid.UUID
	Terms       Terms
}

// Transition describes the effect of a legal command. Ledger is the next
// state; the input ledger is left untouched.
type Transition struct {
	Operation Operation
	Actor     enums.NegotiationActor
	From      enums.NegotiationStatus
	To        enums.NegotiationStatus
	Ledger    *Ledger
	Appended  *Proposal
	Resolved  []*Proposal
	Agreement *Agreement

	expectedVersion int
}

// Created reports whether the transition opens a brand-new ledger.
func (t *Transition) Created() bool {
	return t.expectedVersion == 0
}

// Evaluate applies cmd to a copy of ledger and returns the resulting
// transition, or a *TransitionError naming the broken precondition.
func Evaluate(ledger *Ledger, cmd Command, now time.Time) (*Transition, error) {
	if ledger == nil {
		return nil, errors.New("ledger required")
	}
	if !cmd.Actor.IsValid() {
		return nil, fmt.Errorf("unknown actor %q", cmd.Actor)
	}
	now = now.UTC().Truncate(proposedAtStep)

	next := ledger.clone()
	transition := &Transition{
		Operation:       cmd.Operation,
		Actor:           cmd.Actor,
		From:            ledger.status,
		Ledger:          next,
		expectedVersion: ledger.version,
	}

	var err error
	switch cmd.Operation {
	case OperationSubmit:
		err = applySubmit(next, cmd, now, transition)
	case OperationAccept:
		err = applyAccept(next, cmd, now, transition)
	case OperationReject:
		err = applyReject(next, cmd, now, transition)
	default:
		return nil, fmt.Errorf("unknown operation %q", cmd.Operation)
	}
	if err != nil {
		return nil, err
	}

	transition.To = next.status
	if err := next.checkInvariants(); err != nil {
		return nil, err
	}
	return transition, nil
}

func applySubmit(l *Ledger, cmd Command, now time.Time, t *Transition) error {
	switch l.status {
	case enums.NegotiationStatusAgreed, enums.NegotiationStatusAccepted:
		return ErrAlreadyAgreed
	case enums.NegotiationStatusSubmitted:
		if cmd.Actor != enums.ActorStaff {
			return ErrFirstProposalFromStaff
		}
	case enums.NegotiationStatusNegotiating:
		current := l.CurrentProposal()
		if current == nil {
			return ErrNoPendingProposal
		}
		if current.ProposedBy() == cmd.Actor {
			return ErrCannotCounterOwnProposal
		}
	case enums.NegotiationStatusRejected:
		last := l.LastProposal()
		if last == nil || last.ProposedBy() == cmd.Actor {
			return ErrOnlyRejectingPartyReopen
		}
	}
	if !canTransition(l.status, enums.NegotiationStatusNegotiating) {
		return fmt.Errorf("submit not allowed from %s", l.status)
	}

	proposal := newProposal(cmd.Actor, cmd.ActorUserID, cmd.Terms)
	t.Resolved = l.appendProposal(proposal, now)
	t.Appended = proposal
	return nil
}

// decisionGuard enforces the shared preconditions of accept and reject.
func decisionGuard(l *Ledger, actor enums.NegotiationActor, ownErr *TransitionError) (*Proposal, error) {
	if l.status.IsTerminal() || l.status == enums.NegotiationStatusAccepted {
		return nil, ErrAlreadyAgreed
	}
	current := l.CurrentProposal()
	if current == nil {
		return nil, ErrNoPendingProposal
	}
	if current.ProposedBy() == actor {
		return nil, ownErr
	}
	return current, nil
}

func applyAccept(l *Ledger, cmd Command, now time.Time, t *Transition) error {
	if _, err := decisionGuard(l, cmd.Actor, ErrCannotAcceptOwnProposal); err != nil {
		return err
	}
	if !canTransition(l.status, enums.NegotiationStatusAccepted) {
		return fmt.Errorf("accept not allowed from %s", l.status)
	}
	accepted, err := l.resolveCurrent(enums.ProposalStatusAccepted, now)
	if err != nil {
		return err
	}
	if !canTransition(l.status, enums.NegotiationStatusAgreed) {
		return fmt.Errorf("agree not allowed from %s", l.status)
	}
	agreement := Agreement{
		ProposalID: accepted.ID(),
		Rate:       accepted.Rate(),
		TreeCount:  accepted.TreeCount(),
		Timing:     accepted.Timing(),
		AgreedAt:   now,
	}
	if err := l.finalize(agreement); err != nil {
		return err
	}
	t.Resolved = []*Proposal{accepted}
	t.Agreement = l.FinalAgreement()
	return nil
}

func applyReject(l *Ledger, cmd Command, now time.Time, t *Transition) error {
	if _, err := decisionGuard(l, cmd.Actor, ErrCannotRejectOwnProposal); err != nil {
		return err
	}
	if !canTransition(l.status, enums.NegotiationStatusRejected) {
		return fmt.Errorf("reject not allowed from %s", l.status)
	}
	rejected, err := l.resolveCurrent(enums.ProposalStatusRejected, now)
	if err != nil {
		return err
	}
	t.Resolved = []*Proposal{rejected}
	return nil
}
