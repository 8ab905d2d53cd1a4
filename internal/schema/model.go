package schema

import (
	"fmt"

	"github.com/roach88/uow/internal/ir"
)

// Column is one storage column of a key or field.
type Column struct {
	Name string
	Kind ir.Kind
}

// Col is shorthand for Column{Name: name, Kind: kind}.
func Col(name string, kind ir.Kind) Column {
	return Column{Name: name, Kind: kind}
}

// KeyInfo describes the identity shared by all types of a hierarchy.
type KeyInfo struct {
	Name      string
	Columns   []Column
	Generator string
}

// Arity is the number of key columns.
func (k *KeyInfo) Arity() int { return len(k.Columns) }

// Hierarchy is a root type and all of its descendants.
type Hierarchy struct {
	Root  *TypeInfo
	Key   *KeyInfo
	Types []*TypeInfo
}

// Name is the root type name. Storage uses it as the table name.
func (h *Hierarchy) Name() string { return h.Root.Name }

// IsSingleType reports whether the hierarchy has no subtypes.
func (h *Hierarchy) IsSingleType() bool { return len(h.Types) == 1 }

// FieldKind distinguishes how a field is stored.
type FieldKind uint8

const (
	FieldKey FieldKind = iota
	FieldValue
	FieldReference
	FieldCollection
)

func (k FieldKind) String() string {
	switch k {
	case FieldKey:
		return "key"
	case FieldValue:
		return "value"
	case FieldReference:
		return "reference"
	case FieldCollection:
		return "collection"
	default:
		return fmt.Sprintf("field_kind(%d)", uint8(k))
	}
}

// FieldInfo is one field of a type and its slot in the entity tuple.
type FieldInfo struct {
	Name          string
	Kind          FieldKind
	DeclaringType *TypeInfo
	Offset        int
	Columns       []Column
	Nullable      bool

	// Target and Association are set for reference and collection fields.
	Target      *TypeInfo
	Association *Association
}

// Length is the number of tuple columns the field occupies.
func (f *FieldInfo) Length() int { return len(f.Columns) }

// Indexes returns the tuple indexes of the field's columns.
func (f *FieldInfo) Indexes() []int {
	out := make([]int, len(f.Columns))
	for i := range out {
		out[i] = f.Offset + i
	}
	return out
}

func (f *FieldInfo) String() string {
	return f.DeclaringType.Name + "." + f.Name
}

// Multiplicity is the cardinality of an association seen from its owner.
type Multiplicity uint8

const (
	ManyToOne Multiplicity = iota
	OneToMany
	ManyToMany
)

func (m Multiplicity) String() string {
	switch m {
	case ManyToOne:
		return "many-to-one"
	case OneToMany:
		return "one-to-many"
	case ManyToMany:
		return "many-to-many"
	default:
		return fmt.Sprintf("multiplicity(%d)", uint8(m))
	}
}

// Association links an owner field to a target type.
//
// The master side of a pair is the one whose changes are stored: the
// reference field of a one-to-many pair, or the declaring collection of a
// many-to-many pair. The other side is paired and only mirrors the master.
type Association struct {
	Name         string
	OwnerType    *TypeInfo
	OwnerField   *FieldInfo
	TargetType   *TypeInfo
	Multiplicity Multiplicity
	Master       bool
	Reversed     *Association
	Auxiliary    *TypeInfo
}

// IsPaired reports whether this is the non-master side of a pair.
func (a *Association) IsPaired() bool {
	return a.Reversed != nil && !a.Master
}

// IsReference reports whether the owner field is a single-valued reference.
func (a *Association) IsReference() bool {
	return a.OwnerField.Kind == FieldReference
}

// IsNullable reports whether the owner field may be set to null.
func (a *Association) IsNullable() bool {
	return a.OwnerField.Nullable
}

func (a *Association) String() string { return a.Name }

// TypeInfo is an entity type.
type TypeInfo struct {
	Name      string
	ID        int
	Hierarchy *Hierarchy
	Base      *TypeInfo
	Auxiliary bool

	fields   []*FieldInfo
	byName   map[string]*FieldInfo
	width    int
	children []*TypeInfo
	owners   []*Association
	targets  []*Association
}

// Key returns the hierarchy key.
func (t *TypeInfo) Key() *KeyInfo { return t.Hierarchy.Key }

// IsRoot reports whether t is its hierarchy's root.
func (t *TypeInfo) IsRoot() bool { return t.Base == nil }

// IsLeaf reports whether t has no subtypes.
func (t *TypeInfo) IsLeaf() bool { return len(t.children) == 0 }

// Children returns the direct subtypes of t.
func (t *TypeInfo) Children() []*TypeInfo { return t.children }

// Fields returns all fields of t, inherited ones included, in tuple order.
func (t *TypeInfo) Fields() []*FieldInfo { return t.fields }

// Field looks up a field by name, inherited fields included.
func (t *TypeInfo) Field(name string) (*FieldInfo, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// TupleWidth is the number of columns in an entity tuple of type t.
func (t *TypeInfo) TupleWidth() int { return t.width }

// IsSubtypeOf reports whether t is other or descends from it.
func (t *TypeInfo) IsSubtypeOf(other *TypeInfo) bool {
	for cur := t; cur != nil; cur = cur.Base {
		if cur == other {
			return true
		}
	}
	return false
}

// OwnerAssociations returns the associations whose owner field t has,
// declared on t or inherited.
func (t *TypeInfo) OwnerAssociations() []*Association { return t.owners }

// TargetAssociations returns the associations that can point at an
// instance of t, including those targeting an ancestor of t.
func (t *TypeInfo) TargetAssociations() []*Association { return t.targets }

func (t *TypeInfo) String() string { return t.Name }

// Model is the compiled, immutable set of types and associations.
type Model struct {
	types        []*TypeInfo
	byName       map[string]*TypeInfo
	hierarchies  []*Hierarchy
	associations []*Association
}

// Types returns every type in declaration order, auxiliary types last.
func (m *Model) Types() []*TypeInfo { return m.types }

// Type looks up a type by name.
func (m *Model) Type(name string) (*TypeInfo, bool) {
	t, ok := m.byName[name]
	return t, ok
}

// MustType is like Type but panics when the type is unknown.
// Use only in tests or with names known to exist.
func (m *Model) MustType(name string) *TypeInfo {
	t, ok := m.byName[name]
	if !ok {
		panic(fmt.Sprintf("schema: unknown type %q", name))
	}
	return t
}

// Hierarchies returns every hierarchy in declaration order.
func (m *Model) Hierarchies() []*Hierarchy { return m.hierarchies }

// Associations returns every association, both sides of each pair.
func (m *Model) Associations() []*Association { return m.associations }
