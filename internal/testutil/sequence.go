package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/schema"
)

// Sequence is a durable key generator for tests. Each hierarchy counts
// from 1: int columns get the counter, string columns "<name>-N".
//
// Unlike the store sequence, Sequence can be reset so the same scenario
// produces the same keys on every run.
type Sequence struct {
	mu       sync.Mutex
	counters map[string]int64
}

var _ key.Generator = (*Sequence)(nil)

// NewSequence returns a generator with every counter at zero.
func NewSequence() *Sequence {
	return &Sequence{counters: make(map[string]int64)}
}

func (s *Sequence) Temporary() bool { return false }

func (s *Sequence) Next(_ context.Context, info *schema.KeyInfo) (ir.Tuple, error) {
	s.mu.Lock()
	s.counters[info.Name]++
	n := s.counters[info.Name]
	s.mu.Unlock()

	out := make(ir.Tuple, info.Arity())
	for i, c := range info.Columns {
		switch c.Kind {
		case ir.KindInt:
			out[i] = ir.Int(n)
		case ir.KindString:
			out[i] = ir.String(fmt.Sprintf("%s-%d", c.Name, n))
		default:
			return nil, &key.ConfigError{Hierarchy: info.Name, Reason: fmt.Sprintf("test sequence cannot fill %s column %q", c.Kind, c.Name)}
		}
	}
	return out, nil
}

// Current returns the last value handed out for hierarchy name.
func (s *Sequence) Current(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

// Reset sets every counter back to zero.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.counters)
}
