package persist

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/state"
)

// ============================================================================
// PlainGenerator
// ============================================================================

func TestPlainGenerator_BucketOrder(t *testing.T) {
	f := newFixture(t)
	n := f.add(t, "Note", 1, state.New)
	m := f.add(t, "Note", 2, state.Synchronized)
	text, _ := m.Type().Field("text")
	require.NoError(t, m.SetField(text, ir.Tuple{ir.String("edited")}))
	m.SetPersistenceState(state.Modified)
	f.reg.Register(m)
	r := f.add(t, "Note", 3, state.Removed)

	actions, err := PlainGenerator{}.Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 3)

	assert.Equal(t, Remove, actions[0].Kind)
	assert.Same(t, r, actions[0].State)
	assert.Equal(t, ir.Tuple{ir.Int(3)}, actions[0].Values)

	assert.Equal(t, Update, actions[1].Kind)
	assert.Same(t, m, actions[1].State)
	assert.Equal(t, []int{1}, actions[1].Columns)
	assert.Equal(t, ir.Tuple{ir.Int(2), ir.String("edited")}, actions[1].Values)

	assert.Equal(t, Insert, actions[2].Kind)
	assert.Same(t, n, actions[2].State)
}

// ============================================================================
// SortingGenerator: inserts
// ============================================================================

func TestSorting_InsertChainReferencedFirst(t *testing.T) {
	f := newFixture(t)
	c3 := f.add(t, "C", 3, state.New)
	c2 := f.add(t, "C", 2, state.New)
	c1 := f.add(t, "C", 1, state.New)
	f.link(t, c3, "c", c2)
	f.link(t, c2, "c", c1)

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 3)

	assert.Less(t, indexOf(actions, c1, Insert), indexOf(actions, c2, Insert))
	assert.Less(t, indexOf(actions, c2, Insert), indexOf(actions, c3, Insert))
	assert.Zero(t, Summarize(actions).Compensations)
}

func TestSorting_BypassedInsertedFirst(t *testing.T) {
	f := newFixture(t)
	c := f.add(t, "C", 1, state.New)
	note := f.add(t, "Note", 1, state.New)

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Same(t, note, actions[0].State)
	assert.Same(t, c, actions[1].State)
}

func TestSorting_TwoNodeCycle(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", 1, state.New)
	b := f.add(t, "B", 1, state.New)
	f.link(t, a, "b", b)
	f.link(t, b, "a", a)

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 3)

	stats := Summarize(actions)
	assert.Equal(t, 2, stats.Inserts)
	assert.Equal(t, 1, stats.Compensations)

	comp := actions[2]
	require.True(t, comp.Compensation, "compensation follows the inserts")
	assert.Equal(t, Update, comp.Kind)

	// The broken reference is written as null by the insert and restored
	// to its original target by the compensation.
	field := mustField(t, comp.State, map[*state.EntityState]string{a: "b", b: "a"}[comp.State])
	target := map[*state.EntityState]*state.EntityState{a: b, b: a}[comp.State]
	insert := actions[indexOf(actions, comp.State, Insert)]
	assert.True(t, insert.Values.Slice(field.Offset, field.Length()).AllNull())
	assert.Equal(t, target.Key().Values(), comp.Values.Slice(field.Offset, field.Length()))
	assert.Equal(t, field.Indexes(), comp.Columns)

	// The unbroken reference is ordered.
	other := target
	assert.Less(t, indexOf(actions, comp.State, Insert), indexOf(actions, other, Insert))

	// Live states are restored.
	assert.Equal(t, b.Key().Values(), a.Field(mustField(t, a, "b")))
	assert.Equal(t, a.Key().Values(), b.Field(mustField(t, b, "a")))
}

func TestSorting_PrefersNullableEdge(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", 1, state.New)
	c := f.add(t, "C", 1, state.New)
	f.link(t, a, "c", c) // nullable
	f.link(t, c, "a", a) // required

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 3)

	comp := actions[2]
	require.True(t, comp.Compensation)
	assert.Same(t, a, comp.State)
	assert.Equal(t, mustField(t, a, "c").Indexes(), comp.Columns)
	assert.Less(t, indexOf(actions, a, Insert), indexOf(actions, c, Insert))
}

func TestSorting_RootSelfReferenceIsNotAnEdge(t *testing.T) {
	f := newFixture(t)
	p := f.add(t, "Person", 1, state.New)
	f.link(t, p, "mentor", p)

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.False(t, actions[0].Compensation)
	assert.Equal(t, p.Key().Values(), actions[0].Values.Slice(1, 1))
}

func TestSorting_SubtypeSelfReferenceIsBroken(t *testing.T) {
	f := newFixture(t)
	e := f.add(t, "Employee", 1, state.New)
	f.link(t, e, "manager", e)

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, Insert, actions[0].Kind)
	assert.True(t, actions[1].Compensation)

	manager := mustField(t, e, "manager")
	assert.True(t, actions[0].Values.Slice(manager.Offset, 1).AllNull())
	assert.Equal(t, e.Key().Values(), actions[1].Values.Slice(manager.Offset, 1))
}

// For random acyclic graphs every reference target is inserted before its
// referencer.
func TestSorting_AcyclicSoundness(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		f := newFixture(t)
		n := 2 + rng.Intn(15)
		nodes := make([]*state.EntityState, n)
		for _, i := range rng.Perm(n) {
			nodes[i] = f.add(t, "C", int64(i+1), state.New)
		}
		// Edges only point at lower indexes, so the graph stays acyclic.
		edges := map[*state.EntityState]*state.EntityState{}
		for i := 1; i < n; i++ {
			if rng.Intn(3) > 0 {
				target := nodes[rng.Intn(i)]
				f.link(t, nodes[i], "c", target)
				edges[nodes[i]] = target
			}
		}

		actions, err := NewSortingGenerator(nil).Generate(f.reg)
		require.NoError(t, err)
		require.Zero(t, Summarize(actions).Compensations)
		for from, to := range edges {
			require.Greater(t, indexOf(actions, from, Insert), indexOf(actions, to, Insert))
		}
	}
}

// ============================================================================
// SortingGenerator: updates and removes
// ============================================================================

func TestSorting_RemoveReferencersFirst(t *testing.T) {
	f := newFixture(t)
	c1 := f.add(t, "C", 1, state.Synchronized)
	c2 := f.add(t, "C", 2, state.Synchronized)
	note := f.add(t, "Note", 1, state.Removed)
	f.link(t, c2, "c", c1)
	c2.CommitDifference()

	for _, s := range []*state.EntityState{c1, c2} {
		s.SetPersistenceState(state.Removed)
		f.reg.Register(s)
	}

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Less(t, indexOf(actions, c2, Remove), indexOf(actions, c1, Remove))
	assert.Same(t, note, actions[2].State, "bypassed states are removed last")
}

func TestSorting_RemoveUsesStoredReferences(t *testing.T) {
	f := newFixture(t)
	c1 := f.add(t, "C", 1, state.Synchronized)
	c2 := f.add(t, "C", 2, state.Synchronized)
	f.link(t, c2, "c", c1)
	c2.CommitDifference()

	// A pending change that would drop the reference is ignored.
	cc := mustField(t, c2, "c")
	require.NoError(t, c2.SetReferenceKey(cc, nil))
	c1.SetPersistenceState(state.Removed)
	f.reg.Register(c1)
	c2.SetPersistenceState(state.Removed)
	f.reg.Register(c2)

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	assert.Less(t, indexOf(actions, c2, Remove), indexOf(actions, c1, Remove))
	assert.True(t, c2.HasDifference(), "pending changes are kept")
	assert.True(t, c2.Field(cc).AllNull())
}

func TestSorting_RemoveCycleClearsFirst(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", 1, state.Synchronized)
	b := f.add(t, "B", 1, state.Synchronized)
	f.link(t, a, "b", b)
	f.link(t, b, "a", a)
	a.CommitDifference()
	b.CommitDifference()
	for _, s := range []*state.EntityState{a, b} {
		s.SetPersistenceState(state.Removed)
		f.reg.Register(s)
	}

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.True(t, actions[0].Compensation)
	assert.Equal(t, Update, actions[0].Kind)
	assert.Equal(t, Remove, actions[1].Kind)
	assert.Equal(t, Remove, actions[2].Kind)
}

func TestSorting_RemoveCycleKeepsStates(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", 1, state.Synchronized)
	b := f.add(t, "B", 1, state.Synchronized)
	c := f.add(t, "C", 1, state.Synchronized)
	f.link(t, a, "b", b)
	f.link(t, b, "a", a)
	f.link(t, c, "a", a)
	a.CommitDifference()
	b.CommitDifference()
	c.CommitDifference()

	// The pending edit adds a reference storage does not hold yet.
	require.NoError(t, a.SetReferenceKey(mustField(t, a, "c"), c.Key()))
	for _, s := range []*state.EntityState{a, b, c} {
		s.SetPersistenceState(state.Removed)
		f.reg.Register(s)
	}
	before := map[*state.EntityState]ir.Tuple{a: a.Snapshot(), b: b.Snapshot(), c: c.Snapshot()}

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 4)

	cleared := actions[0]
	require.True(t, cleared.Compensation)
	field := mustField(t, cleared.State, map[*state.EntityState]string{a: "b", b: "a"}[cleared.State])
	assert.True(t, cleared.Values.Slice(field.Offset, field.Length()).AllNull())
	assert.Equal(t, field.Indexes(), cleared.Columns)
	assert.Less(t, indexOf(actions, c, Remove), indexOf(actions, a, Remove))

	for s, want := range before {
		assert.Equal(t, want, s.Snapshot(), "%s", s.Key())
	}
	assert.True(t, a.HasDifference())
}

func TestSorting_PhaseOrder(t *testing.T) {
	f := newFixture(t)
	gone := f.add(t, "Note", 1, state.Removed)
	fresh := f.add(t, "Note", 2, state.New)
	edited := f.add(t, "Note", 3, state.Synchronized)
	require.NoError(t, edited.SetField(mustField(t, edited, "text"), ir.Tuple{ir.String("x")}))
	edited.SetPersistenceState(state.Modified)
	f.reg.Register(edited)

	actions, err := NewSortingGenerator(nil).Generate(f.reg)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Same(t, fresh, actions[0].State)
	assert.Same(t, edited, actions[1].State)
	assert.Same(t, gone, actions[2].State)
}

func TestActionString(t *testing.T) {
	f := newFixture(t)
	s := f.add(t, "Note", 1, state.New)
	assert.Equal(t, "insert Note, (1)", Action{State: s, Kind: Insert}.String())
	assert.Equal(t, "update Note, (1) columns=[1] compensation", Action{State: s, Kind: Update, Columns: []int{1}, Compensation: true}.String())
}

func TestParseActionKind(t *testing.T) {
	k, err := ParseActionKind("remove")
	require.NoError(t, err)
	assert.Equal(t, Remove, k)
	_, err = ParseActionKind("upsert")
	assert.Error(t, err)
}
