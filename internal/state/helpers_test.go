package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/schema"
)

type fixture struct {
	model   *schema.Model
	factory *key.Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := schema.NewBuilder()
	b.Root("Customer", "", schema.Col("id", ir.KindInt)).
		Value("name", ir.KindString, false).
		Value("email", ir.KindString, true)
	b.Root("Order", "", schema.Col("id", ir.KindInt)).
		Reference("customer", "Customer", true)
	m, err := b.Build()
	require.NoError(t, err)
	return &fixture{model: m, factory: key.NewFactory(key.NewGenerators(key.ModeDurable), nil)}
}

func (f *fixture) state(t *testing.T, typ string, id int64, ps PersistenceState) *EntityState {
	t.Helper()
	k, err := f.factory.Exact(f.model.MustType(typ), ir.Tuple{ir.Int(id)})
	require.NoError(t, err)
	s, err := NewEntityState(k, nil, ps)
	require.NoError(t, err)
	return s
}

func (f *fixture) field(typ, name string) *schema.FieldInfo {
	fi, _ := f.model.MustType(typ).Field(name)
	return fi
}
