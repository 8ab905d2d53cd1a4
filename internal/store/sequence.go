package store

import (
	"context"
	"fmt"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/schema"
)

// SequenceGenerator allocates durable int keys from the sequences table,
// one counter per hierarchy key.
type SequenceGenerator struct {
	store *Store
}

// Sequence returns a durable generator backed by s.
func (s *Store) Sequence() *SequenceGenerator {
	return &SequenceGenerator{store: s}
}

func (g *SequenceGenerator) Temporary() bool { return false }

// Next increments the counter named after info and returns its new value.
// Only keys with a single int column are supported.
func (g *SequenceGenerator) Next(ctx context.Context, info *schema.KeyInfo) (ir.Tuple, error) {
	if info.Arity() != 1 || info.Columns[0].Kind != ir.KindInt {
		return nil, &key.ConfigError{Hierarchy: info.Name, Reason: "sequence generator needs a single int key column"}
	}
	var next int64
	err := g.store.db.QueryRowContext(ctx, `
		INSERT INTO sequences (name, next) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET next = next + 1
		RETURNING next
	`, info.Name).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", info.Name, err)
	}
	return ir.Tuple{ir.Int(next)}, nil
}
