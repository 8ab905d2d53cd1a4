package store

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/persist"
)

// Execute runs a plan in one transaction and records it in the flush log.
// Statements run in plan order with foreign keys checked immediately; on
// any failure the transaction is rolled back and storage is unchanged.
func (s *Store) Execute(ctx context.Context, actions []persist.Action) error {
	plan, err := marshalPlan(actions)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("execute: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for i, a := range actions {
		stmt, ok, err := s.compiler.Compile(a)
		if err != nil {
			return fmt.Errorf("execute action %d (%s): %w", i, a, err)
		}
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt.SQL, stmt.Params...); err != nil {
			return fmt.Errorf("execute action %d (%s): %w", i, a, err)
		}
	}

	stats := persist.Summarize(actions)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO flushes
		(inserts, updates, removes, compensations, plan, plan_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		stats.Inserts,
		stats.Updates,
		stats.Removes,
		stats.Compensations,
		plan,
		planHash(plan),
	)
	if err != nil {
		return fmt.Errorf("execute: record flush: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("execute: commit: %w", err)
	}
	return nil
}

// marshalPlan converts a plan to canonical JSON TEXT for the flush log.
func marshalPlan(actions []persist.Action) (string, error) {
	entries := make([]any, len(actions))
	for i, a := range actions {
		entry := map[string]any{
			"kind":   a.Kind.String(),
			"type":   a.State.Type().Name,
			"key":    a.State.Key().Values(),
			"values": a.Values,
		}
		if a.Kind == persist.Update {
			cols := make([]any, len(a.Columns))
			for j, c := range a.Columns {
				cols[j] = c
			}
			entry["columns"] = cols
		}
		if a.Compensation {
			entry["compensation"] = true
		}
		entries[i] = entry
	}
	data, err := ir.MarshalCanonical(entries)
	if err != nil {
		return "", fmt.Errorf("marshal plan: %w", err)
	}
	return string(data), nil
}

func planHash(plan string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(plan))
}
