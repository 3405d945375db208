package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	cloudbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/rubberops/tapping-backend/pkg/bigquery"
	"github.com/rubberops/tapping-backend/pkg/enums"
	pkgerrors "github.com/rubberops/tapping-backend/pkg/errors"
)

const (
	dailyCountSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  COUNT(*) AS value
FROM %s
WHERE event_type = @eventType
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	outcomesSQL = `
SELECT
  COUNTIF(event_type = 'proposal_submitted') AS proposals,
  COUNTIF(event_type = 'proposal_rejected') AS rejections,
  COUNTIF(event_type = 'negotiation_agreed') AS agreements,
  COUNT(DISTINCT application_id) AS applications
FROM %s
WHERE occurred_at BETWEEN @start AND @end
`

	agreementsSQL = `
SELECT
  CAST(ROUND(AVG(SAFE_CAST(a.rate AS NUMERIC)), 2) AS STRING) AS avg_rate,
  AVG(a.tree_count) AS avg_tree_count,
  AVG(s.sequence) AS avg_rounds
FROM %s AS a
LEFT JOIN %s AS s
  ON s.proposal_id = a.proposal_id
  AND s.event_type = 'proposal_submitted'
WHERE a.event_type = 'negotiation_agreed'
  AND a.occurred_at BETWEEN @start AND @end
`
)

// RowIterator is the slice of *bigquery.RowIterator the reports read from.
type RowIterator interface {
	Next(dst any) error
}

// Querier runs parameterized SQL against the warehouse.
type Querier interface {
	Query(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (RowIterator, error)
}

type clientQuerier struct {
	client *bigquery.Client
}

// NewClientQuerier adapts the shared BigQuery client to Querier.
func NewClientQuerier(client *bigquery.Client) Querier {
	return clientQuerier{client: client}
}

func (q clientQuerier) Query(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (RowIterator, error) {
	it, err := q.client.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// TimeSeriesPoint is one day of a series, formatted YYYY-MM-DD.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// Outcomes counts negotiation events inside the window.
type Outcomes struct {
	Proposals    int64 `json:"proposals"`
	Rejections   int64 `json:"rejections"`
	Agreements   int64 `json:"agreements"`
	Applications int64 `json:"applications"`
}

// NegotiationReport summarizes negotiation activity for the admin dashboard.
type NegotiationReport struct {
	Start               time.Time         `json:"start"`
	End                 time.Time         `json:"end"`
	ProposalsSeries     []TimeSeriesPoint `json:"proposalsSeries"`
	AgreementsSeries    []TimeSeriesPoint `json:"agreementsSeries"`
	Outcomes            Outcomes          `json:"outcomes"`
	AverageAgreedRate   *string           `json:"averageAgreedRate,omitempty"`
	AverageAgreedTrees  *float64          `json:"averageAgreedTreeCount,omitempty"`
	AverageRoundsToDeal *float64          `json:"averageRoundsToAgreement,omitempty"`
}

// NegotiationService reads negotiation analytics from BigQuery.
type NegotiationService interface {
	Report(ctx context.Context, start, end time.Time) (*NegotiationReport, error)
}

type negotiationService struct {
	querier  Querier
	tableRef string
}

// NewNegotiationService reads from tableRef, the quoted project.dataset.table
// the BigQuery client is bound to.
func NewNegotiationService(querier Querier, tableRef string) (NegotiationService, error) {
	if querier == nil {
		return nil, fmt.Errorf("bigquery querier required")
	}
	if tableRef == "" {
		return nil, fmt.Errorf("negotiation events table required")
	}
	return &negotiationService{querier: querier, tableRef: tableRef}, nil
}

type seriesRow struct {
	Day   string `bigquery:"day"`
	Value int64  `bigquery:"value"`
}

type outcomesRow struct {
	Proposals    int64 `bigquery:"proposals"`
	Rejections   int64 `bigquery:"rejections"`
	Agreements   int64 `bigquery:"agreements"`
	Applications int64 `bigquery:"applications"`
}

type agreementsRow struct {
	AvgRate      cloudbigquery.NullString  `bigquery:"avg_rate"`
	AvgTreeCount cloudbigquery.NullFloat64 `bigquery:"avg_tree_count"`
	AvgRounds    cloudbigquery.NullFloat64 `bigquery:"avg_rounds"`
}

func (s *negotiationService) Report(ctx context.Context, start, end time.Time) (*NegotiationReport, error) {
	if start.IsZero() || end.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if end.Before(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	window := []cloudbigquery.QueryParameter{
		{Name: "start", Value: start.UTC()},
		{Name: "end", Value: end.UTC()},
	}

	proposals, err := s.dailyCounts(ctx, enums.EventProposalSubmitted, window)
	if err != nil {
		return nil, dependencyError(err)
	}
	agreements, err := s.dailyCounts(ctx, enums.EventNegotiationAgreed, window)
	if err != nil {
		return nil, dependencyError(err)
	}

	report := &NegotiationReport{
		Start:            start.UTC(),
		End:              end.UTC(),
		ProposalsSeries:  proposals,
		AgreementsSeries: agreements,
	}

	var outcomes outcomesRow
	if _, err := s.single(ctx, fmt.Sprintf(outcomesSQL, s.tableRef), window, &outcomes); err != nil {
		return nil, dependencyError(fmt.Errorf("query outcomes: %w", err))
	}
	report.Outcomes = Outcomes(outcomes)

	var deals agreementsRow
	found, err := s.single(ctx, fmt.Sprintf(agreementsSQL, s.tableRef, s.tableRef), window, &deals)
	if err != nil {
		return nil, dependencyError(fmt.Errorf("query agreements: %w", err))
	}
	if found {
		if deals.AvgRate.Valid {
			rate := deals.AvgRate.StringVal
			report.AverageAgreedRate = &rate
		}
		if deals.AvgTreeCount.Valid {
			trees := deals.AvgTreeCount.Float64
			report.AverageAgreedTrees = &trees
		}
		if deals.AvgRounds.Valid {
			rounds := deals.AvgRounds.Float64
			report.AverageRoundsToDeal = &rounds
		}
	}
	return report, nil
}

func (s *negotiationService) dailyCounts(ctx context.Context, eventType enums.OutboxEventType, window []cloudbigquery.QueryParameter) ([]TimeSeriesPoint, error) {
	params := append([]cloudbigquery.QueryParameter{{Name: "eventType", Value: string(eventType)}}, window...)
	iter, err := s.querier.Query(ctx, fmt.Sprintf(dailyCountSQL, s.tableRef), params)
	if err != nil {
		return nil, fmt.Errorf("query %s series: %w", eventType, err)
	}

	points := []TimeSeriesPoint{}
	for {
		var row seriesRow
		if err := iter.Next(&row); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("reading %s series row: %w", eventType, err)
		}
		points = append(points, TimeSeriesPoint{Date: row.Day, Value: row.Value})
	}
	return points, nil
}

// single reads at most one row into dst and reports whether a row existed.
func (s *negotiationService) single(ctx context.Context, sql string, params []cloudbigquery.QueryParameter, dst any) (bool, error) {
	iter, err := s.querier.Query(ctx, sql, params)
	if err != nil {
		return false, err
	}
	if err := iter.Next(dst); err != nil {
		if errors.Is(err, iterator.Done) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func dependencyError(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "negotiation analytics unavailable")
}
