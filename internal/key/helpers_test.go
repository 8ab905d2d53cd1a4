package key

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
)

// testModel declares hierarchies of every key arity the variants cover.
func testModel(t *testing.T) *schema.Model {
	t.Helper()
	b := schema.NewBuilder()
	b.Root("One", "sequence", schema.Col("a", ir.KindInt))
	b.Root("Two", "", schema.Col("a", ir.KindInt), schema.Col("b", ir.KindString))
	b.Root("Three", "", schema.Col("a", ir.KindInt), schema.Col("b", ir.KindInt), schema.Col("c", ir.KindInt))
	b.Root("Four", "", schema.Col("a", ir.KindInt), schema.Col("b", ir.KindInt), schema.Col("c", ir.KindInt), schema.Col("d", ir.KindInt))
	b.Root("Five", "", schema.Col("a", ir.KindInt), schema.Col("b", ir.KindInt), schema.Col("c", ir.KindInt), schema.Col("d", ir.KindInt), schema.Col("e", ir.KindInt))
	b.Root("Person", "uuid", schema.Col("id", ir.KindUUID))
	b.Subtype("Employee", "Person")
	b.Root("Other", "sequence", schema.Col("a", ir.KindInt))
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func ints(vs ...int64) ir.Tuple {
	out := make(ir.Tuple, len(vs))
	for i, v := range vs {
		out[i] = ir.Int(v)
	}
	return out
}

func newTestFactory(t *testing.T, mode Mode) *Factory {
	t.Helper()
	cache, err := NewCache(64)
	require.NoError(t, err)
	gens := NewGenerators(mode)
	gens.RegisterNamed("sequence", &counterGenerator{})
	return NewFactory(gens, cache)
}

// counterGenerator is a durable generator counting up from 1 per key.
type counterGenerator struct {
	next map[*schema.KeyInfo]int64
}

func (g *counterGenerator) Temporary() bool { return false }

func (g *counterGenerator) Next(_ context.Context, info *schema.KeyInfo) (ir.Tuple, error) {
	if g.next == nil {
		g.next = make(map[*schema.KeyInfo]int64)
	}
	g.next[info]++
	return ints(g.next[info]), nil
}
