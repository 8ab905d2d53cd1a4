package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/sqlgen"
)

// FlushRecord is one row of the flush log.
type FlushRecord struct {
	Seq           int64
	Inserts       int
	Updates       int
	Removes       int
	Compensations int
	Plan          string
	PlanHash      string
}

// Load reads the entity of type t (or one of its subtypes) with the given
// key values. It returns the row's exact type and its entity tuple, or
// ErrNotFound.
func (s *Store) Load(ctx context.Context, t *schema.TypeInfo, keyValues ir.Tuple) (*schema.TypeInfo, ir.Tuple, error) {
	stmt, err := s.compiler.SelectRow(t.Hierarchy, keyValues)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", t.Name, err)
	}
	table := s.compiler.Table(t.Hierarchy)

	row := make([]any, len(table.Columns))
	dest := make([]any, len(row))
	for i := range row {
		dest[i] = &row[i]
	}
	err = s.db.QueryRowContext(ctx, stmt.SQL, stmt.Params...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("load %s %v: %w", t.Name, keyValues, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", t.Name, err)
	}

	typ, tuple, err := table.Decode(row)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", t.Name, err)
	}
	if !typ.IsSubtypeOf(t) {
		return nil, nil, fmt.Errorf("load %s %v: row is a %s: %w", t.Name, keyValues, typ.Name, ErrNotFound)
	}
	return typ, tuple, nil
}

// Count returns the number of rows stored for h.
func (s *Store) Count(ctx context.Context, h *schema.Hierarchy) (int64, error) {
	stmt := s.compiler.Count(h)
	var n int64
	if err := s.db.QueryRowContext(ctx, stmt.SQL, stmt.Params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", h.Name(), err)
	}
	return n, nil
}

// Members returns the key values of every stored member of collection f
// owned by the entity with key owner, ordered by key. The returned type is
// the collection's member type.
func (s *Store) Members(ctx context.Context, f *schema.FieldInfo, owner ir.Tuple) ([]ir.Tuple, *schema.TypeInfo, error) {
	stmt, target, err := s.compiler.Members(f, owner)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, nil, fmt.Errorf("members of %s: %w", f, err)
	}
	defer rows.Close()

	cols := target.Key().Columns
	var out []ir.Tuple
	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("members of %s: scan: %w", f, err)
		}
		values := make(ir.Tuple, len(cols))
		for i, c := range cols {
			v, err := sqlgen.FromColumn(raw[i], c.Kind)
			if err != nil {
				return nil, nil, fmt.Errorf("members of %s: %w", f, err)
			}
			values[i] = v
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("members of %s: %w", f, err)
	}
	return out, target, nil
}

// Flushes returns the flush log, oldest first.
func (s *Store) Flushes(ctx context.Context) ([]FlushRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, inserts, updates, removes, compensations, plan, plan_hash
		FROM flushes
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query flushes: %w", err)
	}
	defer rows.Close()

	var out []FlushRecord
	for rows.Next() {
		var r FlushRecord
		if err := rows.Scan(&r.Seq, &r.Inserts, &r.Updates, &r.Removes, &r.Compensations, &r.Plan, &r.PlanHash); err != nil {
			return nil, fmt.Errorf("scan flush: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flushes: %w", err)
	}
	return out, nil
}
