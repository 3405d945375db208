package negotiations

import (
	"sort"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
)

func ledgerFromModels(row models.NegotiationLedger, rows []models.NegotiationProposal) *Ledger {
	ledger := &Ledger{
		id:            row.ID,
		applicationID: row.ApplicationID,
		status:        row.Status,
		version:       row.Version,
		createdAt:     row.CreatedAt.UTC(),
		updatedAt:     row.UpdatedAt.UTC(),
	}

	sorted := make([]models.NegotiationProposal, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })
	for _, p := range sorted {
		ledger.history = append(ledger.history, proposalFromModel(p))
	}

	if row.Status == enums.NegotiationStatusAgreed && row.AgreedRate != nil && row.AgreedTreeCount != nil && row.AgreedAt != nil {
		agreement := &Agreement{
			Rate:      *row.AgreedRate,
			TreeCount: *row.AgreedTreeCount,
			AgreedAt:  row.AgreedAt.UTC(),
		}
		if row.AgreedTiming != nil && !row.AgreedTiming.IsZero() {
			timing := row.AgreedTiming.Clone()
			agreement.Timing = &timing
		}
		for i := len(ledger.history) - 1; i >= 0; i-- {
			if ledger.history[i].Status() == enums.ProposalStatusAccepted {
				agreement.ProposalID = ledger.history[i].ID()
				break
			}
		}
		ledger.agreement = agreement
	}
	return ledger
}

func proposalFromModel(row models.NegotiationProposal) *Proposal {
	terms := Terms{
		Rate:      row.ProposedRate,
		TreeCount: row.ProposedTreeCount,
		Notes:     row.Notes,
	}
	if row.ProposedTiming != nil && !row.ProposedTiming.IsZero() {
		timing := row.ProposedTiming.Clone()
		terms.Timing = &timing
	}
	p := &Proposal{
		id:               row.ID,
		sequence:         row.Sequence,
		proposedBy:       row.ProposedBy,
		proposedByUserID: row.ProposedByUserID,
		terms:            terms,
		status:           row.Status,
		proposedAt:       row.ProposedAt.UTC(),
	}
	if row.ResolvedAt != nil {
		at := row.ResolvedAt.UTC()
		p.resolvedAt = &at
	}
	return p
}

func ledgerToModel(l *Ledger) models.NegotiationLedger {
	row := models.NegotiationLedger{
		ID:            l.id,
		ApplicationID: l.applicationID,
		Status:        l.status,
		Version:       l.version,
		CreatedAt:     l.createdAt,
		UpdatedAt:     l.updatedAt,
	}
	if a := l.agreement; a != nil {
		rate := a.Rate
		trees := a.TreeCount
		at := a.AgreedAt
		row.AgreedRate = &rate
		row.AgreedTreeCount = &trees
		row.AgreedAt = &at
		if a.Timing != nil {
			timing := a.Timing.Clone()
			row.AgreedTiming = &timing
		}
	}
	return row
}

func proposalToModel(l *Ledger, p *Proposal) models.NegotiationProposal {
	return models.NegotiationProposal{
		ID:                p.id,
		LedgerID:          l.id,
		Sequence:          p.sequence,
		ProposedBy:        p.proposedBy,
		ProposedByUserID:  p.ProposedByUserID(),
		ProposedRate:      p.terms.Rate.Round(2),
		ProposedTreeCount: p.terms.TreeCount,
		ProposedTiming:    p.Timing(),
		Notes:             p.Notes(),
		Status:            p.status,
		ProposedAt:        p.proposedAt,
		ResolvedAt:        p.ResolvedAt(),
		CreatedAt:         p.proposedAt,
	}
}
