package state

import (
	"github.com/roach88/uow/internal/ir"
)

// DifferentialTuple holds the last persisted values of an entity and the
// pending changes on top of them. A column set back to its original value
// is no longer a difference.
type DifferentialTuple struct {
	origin  ir.Tuple
	current ir.Tuple
	changed []bool
	count   int
}

// NewDifferentialTuple starts with origin and no difference.
func NewDifferentialTuple(origin ir.Tuple) *DifferentialTuple {
	return &DifferentialTuple{
		origin:  origin.Clone(),
		current: origin.Clone(),
		changed: make([]bool, len(origin)),
	}
}

// Width is the number of columns.
func (t *DifferentialTuple) Width() int { return len(t.origin) }

// Get returns the current value of column i.
func (t *DifferentialTuple) Get(i int) ir.Value { return t.current[i] }

// Origin returns the value of column i before any pending change.
func (t *DifferentialTuple) Origin(i int) ir.Value { return t.origin[i] }

// Set changes column i without validation.
func (t *DifferentialTuple) Set(i int, v ir.Value) {
	if v == nil {
		v = ir.Null{}
	}
	t.current[i] = v
	differs := !ir.Equal(t.origin[i], v)
	switch {
	case differs && !t.changed[i]:
		t.changed[i] = true
		t.count++
	case !differs && t.changed[i]:
		t.changed[i] = false
		t.count--
	}
}

// HasDifference reports whether any column differs from its origin.
func (t *DifferentialTuple) HasDifference() bool { return t.count > 0 }

// IsChanged reports whether column i differs from its origin.
func (t *DifferentialTuple) IsChanged(i int) bool { return t.changed[i] }

// ChangedColumns returns the indexes of differing columns, ascending.
func (t *DifferentialTuple) ChangedColumns() []int {
	out := make([]int, 0, t.count)
	for i, c := range t.changed {
		if c {
			out = append(out, i)
		}
	}
	return out
}

// Current returns a copy of the merged tuple.
func (t *DifferentialTuple) Current() ir.Tuple { return t.current.Clone() }

// Original returns a copy of the origin tuple.
func (t *DifferentialTuple) Original() ir.Tuple { return t.origin.Clone() }

// Merge folds the difference into the origin.
func (t *DifferentialTuple) Merge() {
	t.origin = t.current.Clone()
	clear(t.changed)
	t.count = 0
}

// Reset discards the difference.
func (t *DifferentialTuple) Reset() {
	t.current = t.origin.Clone()
	clear(t.changed)
	t.count = 0
}

// overwrite sets column i in both origin and current.
func (t *DifferentialTuple) overwrite(i int, v ir.Value) {
	t.origin[i] = v
	t.Set(i, v)
}
