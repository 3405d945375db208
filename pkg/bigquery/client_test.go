package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"

	"github.com/rubberops/tapping-backend/pkg/config"
)

func TestMissingColumnsAgainstNegotiationSchema(t *testing.T) {
	var full bigquery.Schema
	for _, name := range NegotiationEventColumns {
		full = append(full, &bigquery.FieldSchema{Name: name})
	}
	assert.Empty(t, missingColumns(full, NegotiationEventColumns))

	legacy := bigquery.Schema{
		{Name: "EVENT_ID"},
		{Name: "event_type"},
		{Name: "occurred_at"},
		{Name: "payload"},
	}
	assert.Equal(t,
		[]string{"application_id", "ledger_id", "proposal_id", "sequence", "actor", "actor_user_id", "ledger_status", "rate", "tree_count"},
		missingColumns(legacy, NegotiationEventColumns))
}

func TestNewClientReportsEveryMissingSetting(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.BigQueryConfig{Dataset: " "}, nil)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
	assert.Contains(t, err.Error(), "negotiation events table is required")
}

func TestClientOptionsPrefersInlineCredentials(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds"}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}), 1)
	assert.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestEventsTableRef(t *testing.T) {
	c := &Client{events: &bigquery.Table{ProjectID: "rubber-prod", DatasetID: "tapping", TableID: "negotiation_events"}}
	assert.Equal(t, "`rubber-prod.tapping.negotiation_events`", c.EventsTableRef())

	var nilClient *Client
	assert.Equal(t, "", nilClient.EventsTableRef())
}

func TestNilClientReportsUninitialized(t *testing.T) {
	var c *Client
	assert.ErrorIs(t, c.InsertNegotiationEvents(context.Background(), []any{1}), errClientNotInitialized)
	assert.ErrorIs(t, c.Ping(context.Background()), errClientNotInitialized)
	_, err := c.Query(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, errClientNotInitialized)
	assert.NoError(t, c.Close())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("metadata: %w", &googleapi.Error{Code: http.StatusNotFound})))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isNotFound(errors.New("dial tcp: timeout")))
}
