package negotiations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rubberops/tapping-backend/pkg/enums"
	"github.com/rubberops/tapping-backend/pkg/types"
)

// ProposalView is the read model of one proposal.
type ProposalView struct {
	ID                uuid.UUID              `json:"id"`
	Sequence          int                    `json:"sequence"`
	ProposedBy        enums.NegotiationActor `json:"proposedBy"`
	ProposedByUserID  *uuid.UUID             `json:"proposedByUserId,omitempty"`
	ProposedRate      decimal.Decimal        `json:"proposedRate"`
	ProposedTreeCount int                    `json:"proposedTreeCount"`
	ProposedTiming    *types.Timing          `json:"proposedTiming,omitempty"`
	Notes             *string                `json:"notes,omitempty"`
	Status            enums.ProposalStatus   `json:"status"`
	ProposedAt        time.Time              `json:"proposedAt"`
	ResolvedAt        *time.Time             `json:"resolvedAt,omitempty"`
}

type AgreementView struct {
	ProposalID      uuid.UUID       `json:"proposalId"`
	AgreedRate      decimal.Decimal `json:"agreedRate"`
	AgreedTreeCount int             `json:"agreedTreeCount"`
	AgreedTiming    *types.Timing   `json:"agreedTiming,omitempty"`
	AgreedAt        time.Time       `json:"agreedAt"`
}

// LedgerView is what every negotiation operation returns.
type LedgerView struct {
	LedgerID        uuid.UUID               `json:"ledgerId"`
	ApplicationID   uuid.UUID               `json:"applicationId"`
	Status          enums.NegotiationStatus `json:"status"`
	Version         int                     `json:"version"`
	AwaitingActor   *enums.NegotiationActor `json:"awaitingActor,omitempty"`
	CurrentProposal *ProposalView           `json:"currentProposal,omitempty"`
	History         []ProposalView          `json:"history"`
	FinalAgreement  *AgreementView          `json:"finalAgreement,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// NewLedgerView snapshots a ledger into its read model.
func NewLedgerView(l *Ledger) *LedgerView {
	if l == nil {
		return nil
	}
	view := &LedgerView{
		LedgerID:      l.ID(),
		ApplicationID: l.ApplicationID(),
		Status:        l.Status(),
		Version:       l.Version(),
		History:       make([]ProposalView, 0, len(l.history)),
		CreatedAt:     l.CreatedAt(),
		UpdatedAt:     l.UpdatedAt(),
	}
	for _, p := range l.history {
		view.History = append(view.History, newProposalView(p))
	}
	if current := l.CurrentProposal(); current != nil {
		pv := newProposalView(current)
		view.CurrentProposal = &pv
	}
	if actor, ok := l.AwaitingActor(); ok {
		view.AwaitingActor = &actor
	}
	if agreement := l.FinalAgreement(); agreement != nil {
		view.FinalAgreement = &AgreementView{
			ProposalID:      agreement.ProposalID,
			AgreedRate:      agreement.Rate,
			AgreedTreeCount: agreement.TreeCount,
			AgreedTiming:    agreement.Timing,
			AgreedAt:        agreement.AgreedAt,
		}
	}
	return view
}

func newProposalView(p *Proposal) ProposalView {
	return ProposalView{
		ID:                p.ID(),
		Sequence:          p.Sequence(),
		ProposedBy:        p.ProposedBy(),
		ProposedByUserID:  p.ProposedByUserID(),
		ProposedRate:      p.Rate(),
		ProposedTreeCount: p.TreeCount(),
		ProposedTiming:    p.Timing(),
		Notes:             p.Notes(),
		Status:            p.Status(),
		ProposedAt:        p.ProposedAt(),
		ResolvedAt:        p.ResolvedAt(),
	}
}
