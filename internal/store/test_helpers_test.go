package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/persist"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

// shopModel: Customer 1:N Order (nullable back reference), RushOrder
// extends Order, Order M:N Tag.
func shopModel(t *testing.T) *schema.Model {
	t.Helper()
	b := schema.NewBuilder()
	b.Root("Customer", "sequence", schema.Col("id", ir.KindInt)).
		Value("name", ir.KindString, false).
		Value("vip", ir.KindBool, true).
		Collection("orders", "Order", "customer")
	b.Root("Order", "sequence", schema.Col("id", ir.KindInt)).
		Reference("customer", "Customer", true).
		ManyToMany("tags", "Tag")
	b.Subtype("RushOrder", "Order").
		Value("priority", ir.KindInt, false)
	b.Root("Tag", "", schema.Col("name", ir.KindString))
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return m
}

// createTestStore opens a store for shopModel in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, shopModel(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newState(t *testing.T, typ *schema.TypeInfo, tuple ir.Tuple) *state.EntityState {
	t.Helper()
	f := key.NewFactory(key.NewGenerators(key.ModeDurable), nil)
	k, err := f.Exact(typ, tuple.Slice(0, typ.Key().Arity()))
	if err != nil {
		t.Fatalf("Exact() failed: %v", err)
	}
	s, err := state.NewEntityState(k, tuple, state.New)
	if err != nil {
		t.Fatalf("NewEntityState() failed: %v", err)
	}
	return s
}

func insert(s *state.EntityState) persist.Action {
	return persist.Action{State: s, Kind: persist.Insert, Values: s.Snapshot()}
}

func remove(s *state.EntityState) persist.Action {
	return persist.Action{State: s, Kind: persist.Remove, Values: s.Key().Values()}
}
