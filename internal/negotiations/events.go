package negotiations

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/outbox"
	"github.com/rubberops/tapping-backend/pkg/outbox/payloads"
)

// transitionEvent builds the outbox event announcing a committed transition.
func transitionEvent(t *Transition, parties payloads.Parties, actorUserID *uuid.UUID) (outbox.DomainEvent, error) {
	ledger := t.Ledger
	event := outbox.DomainEvent{
		AggregateType: enums.AggregateNegotiation,
		AggregateID:   ledger.ID(),
		Actor:         actorRef(t.Actor, actorUserID),
		Version:       1,
		OccurredAt:    ledger.UpdatedAt(),
	}

	switch t.Operation {
	case OperationSubmit:
		p := t.Appended
		event.EventType = enums.EventProposalSubmitted
		event.Data = payloads.ProposalSubmittedEvent{
			Parties:           parties,
			ApplicationID:     ledger.ApplicationID(),
			LedgerID:          ledger.ID(),
			ProposalID:        p.ID(),
			Sequence:          p.Sequence(),
			ProposedBy:        p.ProposedBy(),
			ProposedRate:      p.Rate(),
			ProposedTreeCount: p.TreeCount(),
			ProposedTiming:    p.Timing(),
			LedgerStatus:      ledger.Status(),
			ProposedAt:        p.ProposedAt(),
		}
	case OperationReject:
		p := t.Resolved[0]
		event.EventType = enums.EventProposalRejected
		event.Data = payloads.ProposalRejectedEvent{
			Parties:           parties,
			ApplicationID:     ledger.ApplicationID(),
			LedgerID:          ledger.ID(),
			ProposalID:        p.ID(),
			Sequence:          p.Sequence(),
			ProposedBy:        p.ProposedBy(),
			RejectedBy:        t.Actor,
			ProposedRate:      p.Rate(),
			ProposedTreeCount: p.TreeCount(),
			LedgerStatus:      ledger.Status(),
			RejectedAt:        ledger.UpdatedAt(),
		}
	case OperationAccept:
		a := t.Agreement
		event.EventType = enums.EventNegotiationAgreed
		event.Data = payloads.NegotiationAgreedEvent{
			Parties:         parties,
			ApplicationID:   ledger.ApplicationID(),
			LedgerID:        ledger.ID(),
			ProposalID:      a.ProposalID,
			AcceptedBy:      t.Actor,
			AgreedRate:      a.Rate,
			AgreedTreeCount: a.TreeCount,
			AgreedTiming:    a.Timing,
			AgreedAt:        a.AgreedAt,
		}
	default:
		return outbox.DomainEvent{}, fmt.Errorf("no event for operation %q", t.Operation)
	}
	return event, nil
}

// staleEvent builds the reminder for a proposal nobody answered. The dedupe
// key makes repeated job runs emit it once per proposal.
func staleEvent(c StaleCandidate) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventNegotiationStale,
		AggregateType: enums.AggregateNegotiation,
		AggregateID:   c.LedgerID,
		Version:       1,
		DedupeKey:     fmt.Sprintf("%s:%s", enums.EventNegotiationStale, c.ProposalID),
		Data: payloads.NegotiationStaleEvent{
			Parties:       payloads.Parties{FarmerUserID: c.FarmerUserID, StaffUserID: c.StaffUserID},
			ApplicationID: c.ApplicationID,
			LedgerID:      c.LedgerID,
			ProposalID:    c.ProposalID,
			AwaitingActor: c.ProposedBy.Counterpart(),
			PendingSince:  c.PendingSince,
		},
	}
}

func actorRef(actor enums.NegotiationActor, userID *uuid.UUID) *outbox.ActorRef {
	ref := &outbox.ActorRef{Role: string(actor)}
	if userID != nil {
		ref.UserID = *userID
	}
	return ref
}
