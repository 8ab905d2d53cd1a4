package key

import (
	"fmt"
	"strings"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
)

// Accuracy states how precisely a key's type is known.
type Accuracy uint8

const (
	AccuracyUnknown Accuracy = iota
	AccuracyHierarchy
	AccuracyBaseType
	AccuracyExactType
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyHierarchy:
		return "hierarchy"
	case AccuracyBaseType:
		return "base_type"
	case AccuracyExactType:
		return "exact_type"
	default:
		return "unknown"
	}
}

// Key is a sealed interface over the arity variants.
type Key interface {
	// Type is the entity type the key was built for. With accuracy below
	// exact, the entity may be of any subtype.
	Type() *schema.TypeInfo
	Hierarchy() *schema.Hierarchy
	Accuracy() Accuracy
	IsTemporary() bool

	Arity() int
	Value(i int) ir.Value
	Values() ir.Tuple

	Hash() uint64
	Equal(other Key) bool
	String() string

	head() *header // Sealed
}

// header carries everything but the values.
type header struct {
	typ       *schema.TypeInfo
	accuracy  Accuracy
	temporary bool
	hash      uint64
}

func (h *header) Type() *schema.TypeInfo       { return h.typ }
func (h *header) Hierarchy() *schema.Hierarchy { return h.typ.Hierarchy }
func (h *header) Accuracy() Accuracy           { return h.accuracy }
func (h *header) IsTemporary() bool            { return h.temporary }
func (h *header) Hash() uint64                 { return h.hash }
func (h *header) head() *header                { return h }

type key1 struct {
	header
	v0 ir.Value
}

type key2 struct {
	header
	v0, v1 ir.Value
}

type key3 struct {
	header
	v0, v1, v2 ir.Value
}

type key4 struct {
	header
	v0, v1, v2, v3 ir.Value
}

type keyN struct {
	header
	values ir.Tuple
}

func (k *key1) Arity() int { return 1 }
func (k *key2) Arity() int { return 2 }
func (k *key3) Arity() int { return 3 }
func (k *key4) Arity() int { return 4 }
func (k *keyN) Arity() int { return len(k.values) }

func (k *key1) Value(i int) ir.Value {
	if i != 0 {
		panic(fmt.Sprintf("key: index %d out of range for arity 1", i))
	}
	return k.v0
}

func (k *key2) Value(i int) ir.Value {
	switch i {
	case 0:
		return k.v0
	case 1:
		return k.v1
	}
	panic(fmt.Sprintf("key: index %d out of range for arity 2", i))
}

func (k *key3) Value(i int) ir.Value {
	switch i {
	case 0:
		return k.v0
	case 1:
		return k.v1
	case 2:
		return k.v2
	}
	panic(fmt.Sprintf("key: index %d out of range for arity 3", i))
}

func (k *key4) Value(i int) ir.Value {
	switch i {
	case 0:
		return k.v0
	case 1:
		return k.v1
	case 2:
		return k.v2
	case 3:
		return k.v3
	}
	panic(fmt.Sprintf("key: index %d out of range for arity 4", i))
}

func (k *keyN) Value(i int) ir.Value { return k.values[i] }

func (k *key1) Values() ir.Tuple { return ir.Tuple{k.v0} }
func (k *key2) Values() ir.Tuple { return ir.Tuple{k.v0, k.v1} }
func (k *key3) Values() ir.Tuple { return ir.Tuple{k.v0, k.v1, k.v2} }
func (k *key4) Values() ir.Tuple { return ir.Tuple{k.v0, k.v1, k.v2, k.v3} }
func (k *keyN) Values() ir.Tuple { return k.values.Clone() }

func (k *key1) Equal(o Key) bool { return Equal(k, o) }
func (k *key2) Equal(o Key) bool { return Equal(k, o) }
func (k *key3) Equal(o Key) bool { return Equal(k, o) }
func (k *key4) Equal(o Key) bool { return Equal(k, o) }
func (k *keyN) Equal(o Key) bool { return Equal(k, o) }

func (k *key1) String() string { return format(k) }
func (k *key2) String() string { return format(k) }
func (k *key3) String() string { return format(k) }
func (k *key4) String() string { return format(k) }
func (k *keyN) String() string { return format(k) }

// Equal compares keys by hierarchy and values. Accuracy, the temporary flag
// and the concrete variant do not take part.
func Equal(a, b Key) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Hierarchy() != b.Hierarchy() || a.Arity() != b.Arity() || a.Hash() != b.Hash() {
		return false
	}
	for i := 0; i < a.Arity(); i++ {
		if !ir.Equal(a.Value(i), b.Value(i)) {
			return false
		}
	}
	return true
}

// EqualValues reports whether k identifies the row whose key columns hold
// values in hierarchy h.
func EqualValues(k Key, h *schema.Hierarchy, values ir.Tuple) bool {
	if k == nil || k.Hierarchy() != h || k.Arity() != len(values) {
		return false
	}
	for i, v := range values {
		if !ir.Equal(k.Value(i), v) {
			return false
		}
	}
	return true
}

// HashValues computes the hash a key over values in hierarchy h would have.
func HashValues(h *schema.Hierarchy, values ir.Tuple) uint64 {
	return ir.HashTuple(h.Name(), values)
}

// format renders "Type, (v1, v2)". Temporary keys are marked with "~".
func format(k Key) string {
	var b strings.Builder
	if k.IsTemporary() {
		b.WriteByte('~')
	}
	b.WriteString(k.Type().Name)
	b.WriteString(", (")
	for i := 0; i < k.Arity(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.Value(i).String())
	}
	b.WriteByte(')')
	return b.String()
}

// newKey picks the variant for len(values). values must already be
// validated and owned by the caller.
func newKey(h header, values ir.Tuple) Key {
	switch len(values) {
	case 1:
		return &key1{header: h, v0: values[0]}
	case 2:
		return &key2{header: h, v0: values[0], v1: values[1]}
	case 3:
		return &key3{header: h, v0: values[0], v1: values[1], v2: values[2]}
	case 4:
		return &key4{header: h, v0: values[0], v1: values[1], v2: values[2], v3: values[3]}
	default:
		return &keyN{header: h, values: values}
	}
}

// withType returns a copy of k narrowed to exact type t.
func withType(k Key, t *schema.TypeInfo) Key {
	h := *k.head()
	h.typ = t
	h.accuracy = AccuracyExactType
	return newKey(h, k.Values())
}
