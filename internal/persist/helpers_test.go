package persist

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

type fixture struct {
	model   *schema.Model
	factory *key.Factory
	reg     *state.Registry
}

// A and B reference each other through required fields. A optionally
// references C and C requires A. Employee.manager is a self reference
// declared below the root; Person.mentor is one declared on the root. Note
// has no associations at all.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := schema.NewBuilder()
	b.Root("A", "", schema.Col("id", ir.KindInt)).
		Reference("b", "B", false).
		Reference("c", "C", true)
	b.Root("B", "", schema.Col("id", ir.KindInt)).
		Reference("a", "A", false)
	b.Root("C", "", schema.Col("id", ir.KindInt)).
		Reference("a", "A", false).
		Reference("c", "C", true)
	b.Root("Person", "", schema.Col("id", ir.KindInt)).
		Reference("mentor", "Person", true)
	b.Subtype("Employee", "Person").
		Reference("manager", "Employee", true)
	b.Root("Note", "", schema.Col("id", ir.KindInt)).
		Value("text", ir.KindString, true)
	m, err := b.Build()
	require.NoError(t, err)
	return &fixture{model: m, factory: key.NewFactory(key.NewGenerators(key.ModeDurable), nil), reg: state.NewRegistry()}
}

func (f *fixture) add(t *testing.T, typ string, id int64, ps state.PersistenceState) *state.EntityState {
	t.Helper()
	k, err := f.factory.Exact(f.model.MustType(typ), ir.Tuple{ir.Int(id)})
	require.NoError(t, err)
	s, err := state.NewEntityState(k, nil, ps)
	require.NoError(t, err)
	f.reg.Register(s)
	return s
}

func (f *fixture) link(t *testing.T, from *state.EntityState, field string, to *state.EntityState) {
	t.Helper()
	fi, ok := from.Type().Field(field)
	require.True(t, ok)
	require.NoError(t, from.SetReferenceKey(fi, to.Key()))
}

func mustField(t *testing.T, s *state.EntityState, name string) *schema.FieldInfo {
	t.Helper()
	fi, ok := s.Type().Field(name)
	require.True(t, ok)
	return fi
}

func indexOf(actions []Action, s *state.EntityState, kind ActionKind) int {
	for i, a := range actions {
		if a.State == s && a.Kind == kind && !a.Compensation {
			return i
		}
	}
	return -1
}
