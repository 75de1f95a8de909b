package persistence_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PayRunway/internal/event"
	"PayRunway/internal/persistence"
	"PayRunway/internal/testutil"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := persistence.Open(ctx, persistence.DialectSQLite, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := persistence.NewMigrator(db, persistence.DialectSQLite,
		persistence.EmbeddedMigrations(persistence.DialectSQLite), zerolog.Nop())
	require.NoError(t, m.Up(ctx))
	return db
}

func execution(network, address string, at time.Time) *event.FundingExecuted {
	return &event.FundingExecuted{
		ExecutionID:    uuid.New(),
		NetworkName:    network,
		Address:        address,
		Action:         "deposit",
		Mode:           "exact",
		TargetType:     "runway",
		RequestedDelta: "87600",
		ObservedDelta:  "87600",
		TransactionRef: "0xabc",
		NewDeposited:   "87600",
		RunwayDays:     3,
		ExecutedAt:     at,
	}
}

// ============================================================================
// Migrator
// ============================================================================

func TestMigrator_UpIsIdempotent(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	m := persistence.NewMigrator(db, persistence.DialectSQLite,
		persistence.EmbeddedMigrations(persistence.DialectSQLite), zerolog.Nop())

	require.NoError(t, m.Up(ctx))
	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001"}, applied)
}

func TestMigrator_Down(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	m := persistence.NewMigrator(db, persistence.DialectSQLite,
		persistence.EmbeddedMigrations(persistence.DialectSQLite), zerolog.Nop())

	require.NoError(t, m.Down(ctx))
	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	_, err = db.Exec(`SELECT 1 FROM funding_executions`)
	assert.Error(t, err, "table dropped")

	require.NoError(t, m.Down(ctx), "nothing left to roll back")
}

// ============================================================================
// ExecutionStore
// ============================================================================

func TestExecutionStore_RecordAndList(t *testing.T) {
	store := persistence.NewExecutionStore(openSQLite(t), persistence.DialectSQLite)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	older := execution("calibration", "0xa1", base)
	newer := execution("calibration", "0xa1", base.Add(time.Hour))
	newer.Action = "withdraw"
	newer.RequestedDelta = "-200400"
	newer.Pending = true
	newer.Warnings = []string{"balance re-check failed"}
	other := execution("mainnet", "0xa1", base)

	for _, e := range []*event.FundingExecuted{older, newer, other} {
		require.NoError(t, store.RecordExecution(ctx, e))
	}

	got, err := store.ListExecutions(ctx, "calibration", "0xa1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, newer.ExecutionID, got[0].ExecutionID)
	assert.Equal(t, "-200400", got[0].RequestedDelta)
	assert.True(t, got[0].Pending)
	assert.Equal(t, []string{"balance re-check failed"}, got[0].Warnings)
	assert.True(t, newer.ExecutedAt.Equal(got[0].ExecutedAt))

	assert.Equal(t, older.ExecutionID, got[1].ExecutionID)
	assert.Nil(t, got[1].Warnings)
}

func TestExecutionStore_DuplicateIsNoop(t *testing.T) {
	store := persistence.NewExecutionStore(openSQLite(t), persistence.DialectSQLite)
	ctx := context.Background()

	e := execution("calibration", "0xa1", time.Now().UTC())
	require.NoError(t, store.RecordExecution(ctx, e))
	require.NoError(t, store.RecordExecution(ctx, e))

	got, err := store.ListExecutions(ctx, "calibration", "0xa1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestExecutionStore_Limit(t *testing.T) {
	store := persistence.NewExecutionStore(openSQLite(t), persistence.DialectSQLite)
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordExecution(ctx, execution("calibration", "0xa1", base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := store.ListExecutions(ctx, "calibration", "0xa1", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestParseDialect(t *testing.T) {
	d, err := persistence.ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, persistence.DialectPostgres, d)

	_, err = persistence.ParseDialect("mysql")
	assert.Error(t, err)
}

// ============================================================================
// Postgres (integration)
// ============================================================================

func TestExecutionStore_Postgres(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	m := persistence.NewMigrator(db, persistence.DialectPostgres,
		persistence.EmbeddedMigrations(persistence.DialectPostgres), zerolog.Nop())
	require.NoError(t, m.Up(ctx))

	store := persistence.NewExecutionStore(db, persistence.DialectPostgres)
	e := execution("calibration", "0xa1", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, store.RecordExecution(ctx, e))

	got, err := store.ListExecutions(ctx, "calibration", "0xa1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.ExecutionID, got[0].ExecutionID)
	assert.Equal(t, "87600", got[0].NewDeposited)
}
