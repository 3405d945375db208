package negotiations

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rubberops/tapping-backend/pkg/db/models"
	"github.com/rubberops/tapping-backend/pkg/enums"
)

var baseTime = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func terms(rate string, trees int) Terms {
	return Terms{Rate: decimal.RequireFromString(rate), TreeCount: trees}
}

func submit(actor enums.NegotiationActor, rate string, trees int) Command {
	return Command{Operation: OperationSubmit, Actor: actor, Terms: terms(rate, trees)}
}

func accept(actor enums.NegotiationActor) Command {
	return Command{Operation: OperationAccept, Actor: actor}
}

func reject(actor enums.NegotiationActor) Command {
	return Command{Operation: OperationReject, Actor: actor}
}

// apply evaluates cmd and stands in for a successful save.
func apply(t *testing.T, ledger *Ledger, cmd Command, now time.Time) *Ledger {
	t.Helper()
	transition, err := Evaluate(ledger, cmd, now)
	require.NoError(t, err)
	transition.Ledger.version = transition.expectedVersion + 1
	return transition.Ledger
}

func setupNegotiationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS service_applications (
  id TEXT PRIMARY KEY,
  service_request_id TEXT NOT NULL,
  farmer_user_id TEXT NOT NULL,
  staff_user_id TEXT NOT NULL,
  status TEXT NOT NULL,
  requested_rate TEXT NOT NULL,
  requested_tree_count INTEGER NOT NULL,
  agreed_rate TEXT,
  agreed_tree_count INTEGER,
  agreed_timing TEXT,
  agreed_ledger_id TEXT,
  agreed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS negotiation_ledgers (
  id TEXT PRIMARY KEY,
  application_id TEXT NOT NULL,
  status TEXT NOT NULL,
  version INTEGER NOT NULL DEFAULT 0,
  agreed_rate TEXT,
  agreed_tree_count INTEGER,
  agreed_timing TEXT,
  agreed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_negotiation_ledgers_application ON negotiation_ledgers (application_id);`,
		`CREATE TABLE IF NOT EXISTS negotiation_proposals (
  id TEXT PRIMARY KEY,
  ledger_id TEXT NOT NULL,
  sequence INTEGER NOT NULL,
  proposed_by TEXT NOT NULL,
  proposed_by_user_id TEXT,
  proposed_rate TEXT NOT NULL,
  proposed_tree_count INTEGER NOT NULL,
  proposed_timing TEXT,
  notes TEXT,
  status TEXT NOT NULL,
  proposed_at DATETIME NOT NULL,
  resolved_at DATETIME,
  reminded_at DATETIME,
  created_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_negotiation_proposals_sequence ON negotiation_proposals (ledger_id, sequence);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  dedupe_key TEXT
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_dedupe_key ON outbox_events (dedupe_key);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedApplication(t *testing.T, db *gorm.DB) models.ServiceApplication {
	t.Helper()
	app := models.ServiceApplication{
		ID:                 uuid.New(),
		ServiceRequestID:   uuid.New(),
		FarmerUserID:       uuid.New(),
		StaffUserID:        uuid.New(),
		Status:             enums.ApplicationStatusOpen,
		RequestedRate:      decimal.RequireFromString("55"),
		RequestedTreeCount: 120,
	}
	require.NoError(t, db.Create(&app).Error)
	return app
}

type gormTx struct {
	db *gorm.DB
}

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type gormApplications struct {
	db *gorm.DB
}

func (g gormApplications) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceApplication, error) {
	var app models.ServiceApplication
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

// fixedClock returns the same instant on every call so ordering relies on
// the ledger's own monotonic rule.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
	waits    int
}

func (r *recordingObserver) ObserveOperation(operation, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[operation+":"+outcome]++
}

func (r *recordingObserver) ObserveLockWait(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits++
}

func (r *recordingObserver) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[key]
}
