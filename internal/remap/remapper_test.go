package remap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/refs"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

type sequence struct{ next int64 }

func (g *sequence) Temporary() bool { return false }

func (g *sequence) Next(context.Context, *schema.KeyInfo) (ir.Tuple, error) {
	g.next++
	return ir.Tuple{ir.Int(100 + g.next)}, nil
}

type fixture struct {
	model    *schema.Model
	factory  *key.Factory
	reg      *state.Registry
	changes  *refs.FieldChanges
	identity *key.Map[*state.EntityState]
	remapper *Remapper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := schema.NewBuilder()
	b.Root("Customer", "sequence", schema.Col("id", ir.KindInt))
	b.Root("Order", "sequence", schema.Col("id", ir.KindInt)).
		Reference("customer", "Customer", true).
		ManyToMany("tags", "Tag")
	b.Root("Tag", "sequence", schema.Col("id", ir.KindInt))
	m, err := b.Build()
	require.NoError(t, err)

	gens := key.NewGenerators(key.ModeTemporary)
	gens.RegisterNamed("sequence", &sequence{})
	f := &fixture{
		model:    m,
		factory:  key.NewFactory(gens, nil),
		reg:      state.NewRegistry(),
		changes:  refs.NewFieldChanges(),
		identity: key.NewMap[*state.EntityState](),
	}
	f.remapper = New(f.factory, f.changes, func(k key.Key) *state.EntityState {
		s, _ := f.identity.Get(k)
		return s
	}, nil)
	return f
}

func (f *fixture) create(t *testing.T, typ string) *state.EntityState {
	t.Helper()
	k, err := f.factory.Generate(t.Context(), f.model.MustType(typ))
	require.NoError(t, err)
	require.True(t, k.IsTemporary())
	s, err := state.NewEntityState(k, nil, state.New)
	require.NoError(t, err)
	f.reg.Register(s)
	f.identity.Set(k, s)
	return s
}

func (f *fixture) field(typ, name string) *schema.FieldInfo {
	fi, _ := f.model.MustType(typ).Field(name)
	return fi
}

// apply mirrors what the session does with a mapping.
func (f *fixture) apply(t *testing.T, m *KeyMapping) {
	t.Helper()
	states := make([]*state.EntityState, 0)
	for _, s := range f.identity.All() {
		states = append(states, s)
	}
	_, err := m.Apply(func(yield func(*state.EntityState) bool) {
		for _, s := range states {
			if !yield(s) {
				return
			}
		}
	})
	require.NoError(t, err)
	f.identity.Clear()
	for _, s := range states {
		f.identity.Set(s.Key(), s)
	}
}

func TestRemap_AssignsDurableKeys(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "Customer")
	tmp := c.Key()

	m, err := f.remapper.Remap(t.Context(), f.reg)
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	durable, ok := m.Lookup(tmp)
	require.True(t, ok)
	assert.False(t, durable.IsTemporary())
	assert.Equal(t, ir.Tuple{ir.Int(101)}, durable.Values())
	assert.Same(t, tmp, c.Key(), "the mapping is not applied by Remap")

	f.apply(t, m)
	assert.Same(t, durable, c.Key())
	assert.Equal(t, ir.Int(101), c.Tuple().Get(0))
}

func TestRemap_SecondPassIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Customer")
	f.create(t, "Order")

	first, err := f.remapper.Remap(t.Context(), f.reg)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Len())
	f.apply(t, first)

	second, err := f.remapper.Remap(t.Context(), f.reg)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Len())
}

func TestRemap_RewritesScalarReferences(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "Customer")
	o := f.create(t, "Order")
	ref := f.field("Order", "customer")

	require.NoError(t, o.SetReferenceKey(ref, c.Key()))
	f.changes.Register(o.Key(), ref, nil, c.Key())

	m, err := f.remapper.Remap(t.Context(), f.reg)
	require.NoError(t, err)

	durable, ok := m.Lookup(c.Key())
	require.True(t, ok)
	assert.Equal(t, durable.Values(), o.Field(ref), "owner now points at the durable key")
	assert.Equal(t, 0, f.changes.Len(), "resolved changes are cleared")
}

func TestRemap_SkipsReferencesChangedSince(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "Customer")
	o := f.create(t, "Order")
	ref := f.field("Order", "customer")

	f.changes.Register(o.Key(), ref, nil, c.Key())
	require.NoError(t, o.SetReferenceKey(ref, nil))

	_, err := f.remapper.Remap(t.Context(), f.reg)
	require.NoError(t, err)
	assert.True(t, o.Field(ref).AllNull())
}

func TestRemap_ManyToManyAuxiliaryKey(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, "Order")
	tag := f.create(t, "Tag")
	tags := f.field("Order", "tags")
	aux := tags.Association.Auxiliary

	f.changes.Register(o.Key(), tags, nil, tag.Key())

	m, err := f.remapper.Remap(t.Context(), f.reg)
	require.NoError(t, err)
	require.Equal(t, 3, m.Len(), "order, tag and the join entity")

	oldAux, err := f.factory.Materialize(aux, o.Key().Values().Concat(tag.Key().Values()), key.AccuracyExactType, false, nil)
	require.NoError(t, err)
	newAux, ok := m.Lookup(oldAux)
	require.True(t, ok)

	wantOrder, _ := m.Lookup(o.Key())
	wantTag, _ := m.Lookup(tag.Key())
	assert.Equal(t, wantOrder.Values().Concat(wantTag.Values()), newAux.Values())
}

func TestRemap_RetainsChangesOfWithheldEntities(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "Customer")
	o := f.create(t, "Order")
	ref := f.field("Order", "customer")
	require.NoError(t, o.SetReferenceKey(ref, c.Key()))
	f.changes.Register(o.Key(), ref, nil, c.Key())

	// The customer is withheld from this pass, so its key stays temporary.
	withheld, persistable := f.reg.Partition(func(s *state.EntityState) bool { return s == c })
	require.Equal(t, 1, withheld.Count())

	m, err := f.remapper.Remap(t.Context(), persistable)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	items := f.changes.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].New.Equal(c.Key()))
	durableOrder, _ := m.Lookup(o.Key())
	assert.True(t, items[0].Owner.Equal(durableOrder), "the retained change names the owner's new key")
}

func TestRemap_GeneratorFailure(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Customer")

	broken := New(key.NewFactory(key.NewGenerators(key.ModeTemporary), nil), f.changes, func(key.Key) *state.EntityState { return nil }, nil)
	_, err := broken.Remap(t.Context(), f.reg)
	assert.True(t, key.IsConfigError(err))
}

func TestContext_TryRemap(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "Customer").Key()
	b := f.create(t, "Customer").Key()

	rc := NewContext()
	rc.Register(a, b)
	assert.Same(t, b, rc.TryRemap(a))
	assert.Same(t, b, rc.TryRemap(b))
	assert.Nil(t, rc.TryRemap(nil))

	m := rc.Finalize()
	assert.Same(t, b, m.Remap(a))
	n := 0
	for range m.All() {
		n++
	}
	assert.Equal(t, 1, n)
}
