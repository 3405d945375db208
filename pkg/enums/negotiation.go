package enums

import "slices"

// NegotiationActor maps to the negotiation_actor_enum in Postgres.
type NegotiationActor string

const (
	ActorFarmer NegotiationActor = "farmer"
	ActorStaff  NegotiationActor = "staff"
)

var validNegotiationActors = []NegotiationActor{
	ActorFarmer,
	ActorStaff,
}

// String implements fmt.Stringer.
func (a NegotiationActor) String() string {
	return string(a)
}

// IsValid reports whether the value is a known negotiation actor.
func (a NegotiationActor) IsValid() bool {
	return slices.Contains(validNegotiationActors, a)
}

// Counterpart returns the other side of the negotiation.
func (a NegotiationActor) Counterpart() NegotiationActor {
	if a == ActorFarmer {
		return ActorStaff
	}
	return ActorFarmer
}

// ParseNegotiationActor converts raw input into a NegotiationActor.
func ParseNegotiationActor(value string) (NegotiationActor, error) {
	return parse("negotiation actor", validNegotiationActors, value)
}

// ProposalStatus maps to the proposal_status_enum in Postgres.
type ProposalStatus string

const (
	ProposalStatusPending   ProposalStatus = "pending"
	ProposalStatusAccepted  ProposalStatus = "accepted"
	ProposalStatusRejected  ProposalStatus = "rejected"
	ProposalStatusCountered ProposalStatus = "countered"
)

var validProposalStatuses = []ProposalStatus{
	ProposalStatusPending,
	ProposalStatusAccepted,
	ProposalStatusRejected,
	ProposalStatusCountered,
}

// IsValid reports whether the value is a known proposal status.
func (s ProposalStatus) IsValid() bool {
	return slices.Contains(validProposalStatuses, s)
}

// IsResolved reports whether a later action already settled the proposal.
func (s ProposalStatus) IsResolved() bool {
	return s == ProposalStatusAccepted || s == ProposalStatusRejected || s == ProposalStatusCountered
}

// ParseProposalStatus converts raw input into a ProposalStatus.
func ParseProposalStatus(value string) (ProposalStatus, error) {
	return parse("proposal status", validProposalStatuses, value)
}

// NegotiationStatus maps to the negotiation_status_enum in Postgres.
type NegotiationStatus string

const (
	NegotiationStatusSubmitted   NegotiationStatus = "submitted"
	NegotiationStatusNegotiating NegotiationStatus = "negotiating"
	NegotiationStatusAccepted    NegotiationStatus = "accepted"
	NegotiationStatusRejected    NegotiationStatus = "rejected"
	NegotiationStatusAgreed      NegotiationStatus = "agreed"
)

var validNegotiationStatuses = []NegotiationStatus{
	NegotiationStatusSubmitted,
	NegotiationStatusNegotiating,
	NegotiationStatusAccepted,
	NegotiationStatusRejected,
	NegotiationStatusAgreed,
}

// IsValid reports whether the value is a known negotiation status.
func (s NegotiationStatus) IsValid() bool {
	return slices.Contains(validNegotiationStatuses, s)
}

// IsTerminal reports whether no further proposals are accepted.
func (s NegotiationStatus) IsTerminal() bool {
	return s == NegotiationStatusAgreed
}

// ParseNegotiationStatus converts raw input into a NegotiationStatus.
func ParseNegotiationStatus(value string) (NegotiationStatus, error) {
	return parse("negotiation status", validNegotiationStatuses, value)
}
