package analytics

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// NegotiationEventRow mirrors the negotiation_events BigQuery schema.
type NegotiationEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	ApplicationID string             `bigquery:"application_id"`
	LedgerID      string             `bigquery:"ledger_id"`
	ProposalID    *string            `bigquery:"proposal_id"`
	Sequence      *int64             `bigquery:"sequence"`
	Actor         *string            `bigquery:"actor"`
	ActorUserID   *string            `bigquery:"actor_user_id"`
	LedgerStatus  *string            `bigquery:"ledger_status"`
	Rate          *string            `bigquery:"rate"`
	TreeCount     *int64             `bigquery:"tree_count"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert id
// so BigQuery drops rows re-sent after a partial failure.
func (r *NegotiationEventRow) Save() (map[string]cbigquery.Value, string, error) {
	values := map[string]cbigquery.Value{
		"event_id":       r.EventID,
		"event_type":     r.EventType,
		"occurred_at":    r.OccurredAt,
		"application_id": r.ApplicationID,
		"ledger_id":      r.LedgerID,
		"proposal_id":    optional(r.ProposalID),
		"sequence":       optional(r.Sequence),
		"actor":          optional(r.Actor),
		"actor_user_id":  optional(r.ActorUserID),
		"ledger_status":  optional(r.LedgerStatus),
		"rate":           optional(r.Rate),
		"tree_count":     optional(r.TreeCount),
		"payload":        nil,
	}
	if r.Payload.Valid {
		values["payload"] = r.Payload.JSONVal
	}
	return values, r.EventID, nil
}

func optional[T any](value *T) cbigquery.Value {
	if value == nil {
		return nil
	}
	return *value
}
