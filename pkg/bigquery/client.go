package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/rubberops/tapping-backend/pkg/config"
	"github.com/rubberops/tapping-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

// NegotiationEventColumns must all exist on the negotiation events table.
var NegotiationEventColumns = []string{
	"event_id",
	"event_type",
	"occurred_at",
	"application_id",
	"ledger_id",
	"proposal_id",
	"sequence",
	"actor",
	"actor_user_id",
	"ledger_status",
	"rate",
	"tree_count",
	"payload",
}

var errClientNotInitialized = errors.New("bigquery client not initialized")

// Client is bound to the negotiation events table of one dataset.
type Client struct {
	client    *bigquery.Client
	events    *bigquery.Table
	projectID string
}

// NewClient opens BigQuery and checks the negotiation events table exists
// with every column the analytics writer streams.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	tableID := strings.TrimSpace(cfg.NegotiationEventsTable)
	var err error
	if projectID == "" {
		err = multierr.Append(err, errors.New("gcp project id is required"))
	}
	if datasetID == "" {
		err = multierr.Append(err, errors.New("bigquery dataset is required"))
	}
	if tableID == "" {
		err = multierr.Append(err, errors.New("negotiation events table is required"))
	}
	if err != nil {
		return nil, err
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{
		client:    bqClient,
		events:    bqClient.Dataset(datasetID).Table(tableID),
		projectID: projectID,
	}
	if err := c.Ping(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "table", c.EventsTableRef()), "bigquery client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// Ping reads the events table schema and fails when a column is missing.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.events == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	meta, err := c.events.Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("negotiation events table %s does not exist", c.EventsTableRef())
		}
		return fmt.Errorf("checking %s: %w", c.EventsTableRef(), err)
	}
	if missing := missingColumns(meta.Schema, NegotiationEventColumns); len(missing) > 0 {
		return fmt.Errorf("negotiation events table %s lacks columns: %s", c.EventsTableRef(), strings.Join(missing, ", "))
	}
	return nil
}

func missingColumns(schema bigquery.Schema, want []string) []string {
	have := make([]string, 0, len(schema))
	for _, field := range schema {
		have = append(have, strings.ToLower(field.Name))
	}
	var missing []string
	for _, name := range want {
		if !slices.Contains(have, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// InsertNegotiationEvents streams rows into the events table. Rows that
// implement bigquery.ValueSaver pick their own insert ids.
func (c *Client) InsertNegotiationEvents(ctx context.Context, rows []any) error {
	if c == nil || c.events == nil {
		return errClientNotInitialized
	}
	if len(rows) == 0 {
		return nil
	}
	return c.events.Inserter().Put(ctx, rows)
}

// Query runs parameterized SQL and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	q := c.client.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

// EventsTableRef is the fully qualified events table, quoted for standard SQL.
func (c *Client) EventsTableRef() string {
	if c == nil || c.events == nil {
		return ""
	}
	return fmt.Sprintf("`%s.%s.%s`", c.events.ProjectID, c.events.DatasetID, c.events.TableID)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
