package session

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
	"github.com/roach88/uow/internal/testutil"
)

type fixture struct {
	*Session
	t   *testing.T
	m   *schema.Model
	rec *testutil.Recorder
	seq *testutil.Sequence
}

func newFixture(t *testing.T, m *schema.Model, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, m: m, rec: testutil.NewRecorder(), seq: testutil.NewSequence()}
	base := []Option{
		WithGenerator("sequence", f.seq),
		WithExecutor(f.rec),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	s, err := New(m, append(base, opts...)...)
	require.NoError(t, err)
	f.Session = s
	return f
}

func (f *fixture) typ(name string) *schema.TypeInfo { return f.m.MustType(name) }

func (f *fixture) create(name string) *state.EntityState {
	f.t.Helper()
	st, err := f.Create(f.t.Context(), f.typ(name))
	require.NoError(f.t, err)
	return st
}

func (f *fixture) customer(name string) *state.EntityState {
	f.t.Helper()
	c := f.create("Customer")
	require.NoError(f.t, f.Set(c, "name", ir.String(name)))
	return c
}

func (f *fixture) materialize(name string, values ...ir.Value) *state.EntityState {
	f.t.Helper()
	st, err := f.Materialize(f.typ(name), ir.Tuple(values))
	require.NoError(f.t, err)
	return st
}

func (f *fixture) tag(name string) *state.EntityState {
	f.t.Helper()
	st, err := f.CreateWithKey(f.typ("Tag"), ir.Tuple{ir.String(name)})
	require.NoError(f.t, err)
	return st
}

func (f *fixture) field(st *state.EntityState, name string) ir.Tuple {
	f.t.Helper()
	fi, ok := st.Type().Field(name)
	require.True(f.t, ok, "field %s", name)
	return st.Field(fi)
}

func (f *fixture) links(ps state.PersistenceState) []*state.EntityState {
	var out []*state.EntityState
	for st := range f.Registry().Items(ps) {
		if st.Type().Auxiliary {
			out = append(out, st)
		}
	}
	return out
}

// memReader serves stored rows from memory.
type memReader struct {
	rows    map[string]row
	members map[string][]ir.Tuple
}

type row struct {
	typ   *schema.TypeInfo
	tuple ir.Tuple
}

func newMemReader() *memReader {
	return &memReader{rows: make(map[string]row), members: make(map[string][]ir.Tuple)}
}

func (r *memReader) put(t *schema.TypeInfo, tuple ir.Tuple) {
	r.rows[rowKey(t.Hierarchy, tuple.Slice(0, t.Key().Arity()))] = row{t, tuple}
}

func rowKey(h *schema.Hierarchy, keyValues ir.Tuple) string {
	return fmt.Sprintf("%s%v", h.Name(), keyValues)
}

func (r *memReader) Load(_ context.Context, t *schema.TypeInfo, keyValues ir.Tuple) (*schema.TypeInfo, ir.Tuple, error) {
	got, ok := r.rows[rowKey(t.Hierarchy, keyValues)]
	if !ok || !got.typ.IsSubtypeOf(t) {
		return nil, nil, ErrNotFound
	}
	return got.typ, got.tuple.Clone(), nil
}

func (r *memReader) Members(_ context.Context, f *schema.FieldInfo, owner ir.Tuple) ([]ir.Tuple, *schema.TypeInfo, error) {
	return r.members[fmt.Sprintf("%s%v", f, owner)], f.Target, nil
}

func (r *memReader) putMembers(f *schema.FieldInfo, owner ir.Tuple, rows ...ir.Tuple) {
	r.members[fmt.Sprintf("%s%v", f, owner)] = rows
}
