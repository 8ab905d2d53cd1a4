package state

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/ir"
)

func collect(r *Registry, ps PersistenceState) []*EntityState {
	return slices.Collect(r.Items(ps))
}

func TestRegister_Buckets(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()

	a := f.state(t, "Customer", 1, New)
	b := f.state(t, "Customer", 2, Modified)
	c := f.state(t, "Customer", 3, Removed)
	for _, s := range []*EntityState{a, b, c} {
		r.Register(s)
	}

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, []*EntityState{a}, collect(r, New))
	assert.Equal(t, []*EntityState{b}, collect(r, Modified))
	assert.Equal(t, []*EntityState{c}, collect(r, Removed))
	assert.Equal(t, []*EntityState{c, b, a}, slices.Collect(r.All()))

	r.Register(a)
	assert.Equal(t, 3, r.Count(), "registering twice is a no-op")
}

func TestRegister_RemovedWhileNewIsDropped(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	s := f.state(t, "Customer", 1, New)
	r.Register(s)

	s.SetPersistenceState(Removed)
	r.Register(s)

	assert.Equal(t, 0, r.Count())
	assert.False(t, r.Contains(s))
}

func TestRegister_RemovedWhileNewWithDifferenceIsDropped(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	s := f.state(t, "Customer", 1, New)
	require.NoError(t, s.SetField(f.field("Customer", "name"), ir.Tuple{ir.String("draft")}))
	require.True(t, s.HasDifference())
	r.Register(s)

	s.SetPersistenceState(Removed)
	r.Register(s)

	assert.Equal(t, 0, r.Count(), "a row never written needs no update")
	assert.Empty(t, collect(r, Modified))
}

func TestRegister_RecreatedWithoutDifferenceIsSynchronized(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	s := f.state(t, "Customer", 1, Removed)
	r.Register(s)

	s.SetPersistenceState(New)
	r.Register(s)

	assert.Equal(t, Synchronized, s.PersistenceState())
	assert.Equal(t, 0, r.Count())
}

func TestRegister_RecreatedWithDifferenceIsModified(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	s := f.state(t, "Customer", 1, Removed)
	r.Register(s)

	require.NoError(t, s.SetField(f.field("Customer", "name"), ir.Tuple{ir.String("again")}))
	s.SetPersistenceState(New)
	r.Register(s)

	assert.Equal(t, Modified, s.PersistenceState())
	assert.Equal(t, []*EntityState{s}, collect(r, Modified))
	assert.Equal(t, 1, r.Count())
}

func TestRegister_ModifiedWhileNewStaysNew(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	s := f.state(t, "Customer", 1, New)
	r.Register(s)

	s.SetPersistenceState(Modified)
	r.Register(s)

	assert.Equal(t, New, s.PersistenceState())
	assert.Equal(t, 1, r.Len(New))
	assert.Equal(t, 0, r.Len(Modified))
}

func TestRegister_RemovedWhileModifiedMoves(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	s := f.state(t, "Customer", 1, Modified)
	r.Register(s)

	s.SetPersistenceState(Removed)
	r.Register(s)

	assert.Equal(t, 0, r.Len(Modified))
	assert.Equal(t, 1, r.Len(Removed))
	assert.Equal(t, 1, r.Count())
}

func TestRegister_SynchronizedLeaves(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	s := f.state(t, "Customer", 1, Modified)
	r.Register(s)
	s.SetPersistenceState(Synchronized)
	r.Register(s)
	assert.Equal(t, 0, r.Count())
}

func TestItems_IsSnapshot(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	r.Register(f.state(t, "Customer", 1, New))

	seq := r.Items(New)
	r.Register(f.state(t, "Customer", 2, New))

	assert.Len(t, slices.Collect(seq), 1)
	assert.Len(t, collect(r, New), 2)
	assert.Empty(t, collect(r, Synchronized))
}

// Any sequence of registrations keeps the buckets disjoint and the count
// equal to their total size.
func TestRegister_PartitionInvariant(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(42))
	r := NewRegistry()

	var states []*EntityState
	for i := int64(1); i <= 20; i++ {
		states = append(states, f.state(t, "Customer", i, Synchronized))
	}
	name := f.field("Customer", "name")
	all := []PersistenceState{Synchronized, New, Modified, Removed}

	for step := 0; step < 2000; step++ {
		s := states[rng.Intn(len(states))]
		switch rng.Intn(10) {
		case 0:
			r.Clear()
		case 1:
			require.NoError(t, s.SetField(name, ir.Tuple{ir.String("x")}))
		case 2:
			s.RollbackDifference()
		default:
			s.SetPersistenceState(all[rng.Intn(len(all))])
			r.Register(s)
		}

		seen := make(map[*EntityState]int)
		total := 0
		for _, ps := range []PersistenceState{New, Modified, Removed} {
			for s := range r.Items(ps) {
				seen[s]++
				total++
			}
		}
		for s, n := range seen {
			require.Equal(t, 1, n, "state %s in more than one bucket", s)
		}
		require.Equal(t, total, r.Count())
	}
}

func TestPartition(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	a := f.state(t, "Customer", 1, New)
	b := f.state(t, "Customer", 2, Modified)
	c := f.state(t, "Customer", 3, Removed)
	for _, s := range []*EntityState{a, b, c} {
		r.Register(s)
	}

	pinned, rest := r.Partition(func(s *EntityState) bool { return s == b })
	assert.Equal(t, 1, pinned.Count())
	assert.Equal(t, []*EntityState{b}, collect(pinned, Modified))
	assert.Equal(t, 2, rest.Count())
	assert.Equal(t, []*EntityState{a}, collect(rest, New))
	assert.Equal(t, []*EntityState{c}, collect(rest, Removed))
	assert.Equal(t, 3, r.Count(), "partitioning leaves the source intact")
}

func TestUnregisterAndClear(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry()
	a := f.state(t, "Customer", 1, New)
	r.Register(a)
	assert.True(t, r.Unregister(a))
	assert.False(t, r.Unregister(a))
	assert.Equal(t, New, a.PersistenceState())

	r.Register(a)
	r.Clear()
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 0, r.Len(New))
}
