package state

import (
	"fmt"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/schema"
)

// PersistenceState is an entity's flush-relevant status.
type PersistenceState uint8

const (
	Synchronized PersistenceState = iota
	New
	Modified
	Removed
)

func (s PersistenceState) String() string {
	switch s {
	case Synchronized:
		return "synchronized"
	case New:
		return "new"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("persistence_state(%d)", uint8(s))
	}
}

// EntityState is the tracked snapshot of one entity. Exactly one exists
// per entity per session.
type EntityState struct {
	key   key.Key
	tuple *DifferentialTuple
	state PersistenceState
}

// NewEntityState tracks an entity of k's type. tuple must span the type's
// full width; its key columns are overwritten with k's values.
func NewEntityState(k key.Key, tuple ir.Tuple, ps PersistenceState) (*EntityState, error) {
	width := k.Type().TupleWidth()
	if tuple == nil {
		tuple = ir.NewTuple(width)
	}
	if len(tuple) != width {
		return nil, fmt.Errorf("tuple of %s has %d columns, want %d", k.Type().Name, len(tuple), width)
	}
	tuple = tuple.Clone()
	for i := 0; i < k.Arity(); i++ {
		tuple[i] = k.Value(i)
	}
	return &EntityState{key: k, tuple: NewDifferentialTuple(tuple), state: ps}, nil
}

// Key is the entity's current identity.
func (s *EntityState) Key() key.Key { return s.key }

// Type is the entity's exact type.
func (s *EntityState) Type() *schema.TypeInfo { return s.key.Type() }

// Tuple gives raw access to the differential tuple.
func (s *EntityState) Tuple() *DifferentialTuple { return s.tuple }

// PersistenceState returns the current status.
func (s *EntityState) PersistenceState() PersistenceState { return s.state }

// SetPersistenceState changes the status. It does not touch any registry;
// callers register the state afterwards.
func (s *EntityState) SetPersistenceState(ps PersistenceState) { s.state = ps }

// Field returns the current values of f's columns.
func (s *EntityState) Field(f *schema.FieldInfo) ir.Tuple {
	out := make(ir.Tuple, f.Length())
	for i := range out {
		out[i] = s.tuple.Get(f.Offset + i)
	}
	return out
}

// OriginalField returns f's columns before pending changes.
func (s *EntityState) OriginalField(f *schema.FieldInfo) ir.Tuple {
	out := make(ir.Tuple, f.Length())
	for i := range out {
		out[i] = s.tuple.Origin(f.Offset + i)
	}
	return out
}

// SetField assigns f's columns. Key fields are immutable; non-nullable
// fields reject null.
func (s *EntityState) SetField(f *schema.FieldInfo, values ir.Tuple) error {
	if !s.Type().IsSubtypeOf(f.DeclaringType) {
		return fmt.Errorf("field %s does not belong to %s", f, s.Type().Name)
	}
	switch f.Kind {
	case schema.FieldKey:
		return fmt.Errorf("field %s is part of the key", f)
	case schema.FieldCollection:
		return fmt.Errorf("field %s is a collection", f)
	}
	if len(values) != f.Length() {
		return fmt.Errorf("field %s takes %d values, got %d", f, f.Length(), len(values))
	}
	for i, c := range f.Columns {
		if !ir.Conforms(values[i], c.Kind) {
			return fmt.Errorf("field %s: column %q expects %s, got %s", f, c.Name, c.Kind, values[i].Kind())
		}
	}
	if !f.Nullable && values.HasNull() {
		return fmt.Errorf("field %s is not nullable", f)
	}
	for i, v := range values {
		s.tuple.Set(f.Offset+i, v)
	}
	return nil
}

// ReferenceKey builds the key f currently points at, or nil when the
// reference is null.
func (s *EntityState) ReferenceKey(f *schema.FieldInfo, factory *key.Factory) (key.Key, error) {
	if f.Kind != schema.FieldReference {
		return nil, fmt.Errorf("field %s is not a reference", f)
	}
	values := s.Field(f)
	if values.AllNull() {
		return nil, nil
	}
	return factory.Materialize(f.Target, values, key.AccuracyBaseType, false, nil)
}

// SetReferenceKey points f at target. A nil target clears the reference.
func (s *EntityState) SetReferenceKey(f *schema.FieldInfo, target key.Key) error {
	if f.Kind != schema.FieldReference {
		return fmt.Errorf("field %s is not a reference", f)
	}
	if target == nil {
		return s.SetField(f, ir.NewTuple(f.Length()))
	}
	if target.Hierarchy() != f.Target.Hierarchy {
		return fmt.Errorf("field %s cannot reference %s", f, target)
	}
	if target.Accuracy() == key.AccuracyExactType && !target.Type().IsSubtypeOf(f.Target) {
		return fmt.Errorf("field %s cannot reference %s", f, target)
	}
	return s.SetField(f, target.Values())
}

// HasDifference reports pending changes.
func (s *EntityState) HasDifference() bool { return s.tuple.HasDifference() }

// CommitDifference makes the pending changes the new origin.
func (s *EntityState) CommitDifference() { s.tuple.Merge() }

// RollbackDifference discards pending changes.
func (s *EntityState) RollbackDifference() { s.tuple.Reset() }

// Snapshot returns a copy of the current tuple.
func (s *EntityState) Snapshot() ir.Tuple { return s.tuple.Current() }

// Rekey replaces the identity. The key columns change in both the origin
// and the current tuple, so rekeying never creates a difference.
func (s *EntityState) Rekey(k key.Key) error {
	if k.Hierarchy() != s.key.Hierarchy() {
		return fmt.Errorf("cannot rekey %s to %s", s.key, k)
	}
	if k.Type() != s.key.Type() {
		narrowed, err := key.Narrow(k, s.key.Type())
		if err != nil {
			return err
		}
		k = narrowed
	}
	for i := 0; i < k.Arity(); i++ {
		s.tuple.overwrite(i, k.Value(i))
	}
	s.key = k
	return nil
}

func (s *EntityState) String() string {
	return fmt.Sprintf("%s [%s]", s.key, s.state)
}
