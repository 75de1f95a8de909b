package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"PayRunway/internal/event"
)

// ExecutionStore keeps the funding execution history in funding_executions.
// Inserts are idempotent on the execution ID, so the executor and the
// history projector may both record the same execution.
type ExecutionStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewExecutionStore(db *sql.DB, dialect Dialect) *ExecutionStore {
	return &ExecutionStore{db: db, dialect: dialect}
}

// RecordExecution inserts evt. A second insert of the same execution is a
// no-op.
func (s *ExecutionStore) RecordExecution(ctx context.Context, evt *event.FundingExecuted) error {
	warnings, err := json.Marshal(nonNil(evt.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO funding_executions (
			execution_id, network, address, action, mode, target_type,
			requested_delta, observed_delta, transaction_ref, new_deposited,
			runway_days, pending, warnings, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (execution_id) DO NOTHING
	`),
		evt.ExecutionID.String(), evt.NetworkName, evt.Address, evt.Action, evt.Mode, evt.TargetType,
		evt.RequestedDelta, evt.ObservedDelta, evt.TransactionRef, evt.NewDeposited,
		evt.RunwayDays, evt.Pending, string(warnings), evt.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert execution %s: %w", evt.ExecutionID, err)
	}
	return nil
}

// ListExecutions returns up to limit executions for an account, newest first.
func (s *ExecutionStore) ListExecutions(ctx context.Context, network, address string, limit int) ([]*event.FundingExecuted, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT execution_id, network, address, action, mode, target_type,
		       requested_delta, observed_delta, transaction_ref, new_deposited,
		       runway_days, pending, warnings, executed_at
		FROM funding_executions
		WHERE network = $1 AND address = $2
		ORDER BY executed_at DESC
		LIMIT $3
	`), network, address, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []*event.FundingExecuted
	for rows.Next() {
		var (
			evt        event.FundingExecuted
			id         string
			warnings   string
			executedAt time.Time
		)
		if err := rows.Scan(
			&id, &evt.NetworkName, &evt.Address, &evt.Action, &evt.Mode, &evt.TargetType,
			&evt.RequestedDelta, &evt.ObservedDelta, &evt.TransactionRef, &evt.NewDeposited,
			&evt.RunwayDays, &evt.Pending, &warnings, &executedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if evt.ExecutionID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse execution id %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(warnings), &evt.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings of %s: %w", id, err)
		}
		if len(evt.Warnings) == 0 {
			evt.Warnings = nil
		}
		evt.ExecutedAt = executedAt.UTC()
		out = append(out, &evt)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NoopStore discards executions. Used when no database is configured.
type NoopStore struct{}

func (NoopStore) RecordExecution(context.Context, *event.FundingExecuted) error { return nil }

func (NoopStore) ListExecutions(context.Context, string, string, int) ([]*event.FundingExecuted, error) {
	return nil, nil
}
