package ir

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Kind identifies the column kind of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindBool
	KindUUID
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindUUID:
		return "uuid"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind resolves a column kind name as written in model files.
// "null" is not a declarable column kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "string":
		return KindString, nil
	case "int":
		return KindInt, nil
	case "bool":
		return KindBool, nil
	case "uuid":
		return KindUUID, nil
	case "float", "float32", "float64", "number":
		return KindNull, fmt.Errorf("floats are forbidden as column kinds: %q", name)
	default:
		return KindNull, fmt.Errorf("unknown column kind %q", name)
	}
}

// Value is a sealed interface over column values.
// Only Null, String, Int, Bool and UUID implement it.
type Value interface {
	Kind() Kind
	fmt.Stringer
	columnValue() // Sealed
}

// Null is the absent column value.
type Null struct{}

func (Null) Kind() Kind     { return KindNull }
func (Null) String() string { return "null" }
func (Null) columnValue()   {}

// String is a text column value.
type String string

func (String) Kind() Kind       { return KindString }
func (s String) String() string { return strconv.Quote(string(s)) }
func (String) columnValue()     {}

// Int is an integer column value. Always int64.
type Int int64

func (Int) Kind() Kind       { return KindInt }
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }
func (Int) columnValue()     {}

// Bool is a boolean column value.
type Bool bool

func (Bool) Kind() Kind       { return KindBool }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }
func (Bool) columnValue()     {}

// UUID is a uuid column value.
type UUID uuid.UUID

func (UUID) Kind() Kind       { return KindUUID }
func (u UUID) String() string { return uuid.UUID(u).String() }
func (UUID) columnValue()     {}

// IsNull reports whether v is absent. A nil interface counts as null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports whether two values are the same kind and the same value.
// Null equals null.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case UUID:
		bv, ok := b.(UUID)
		return ok && av == bv
	default:
		return false
	}
}

// Conforms reports whether v may be stored in a column of kind k.
// Null conforms to every kind; nullability is checked elsewhere.
func Conforms(v Value, k Kind) bool {
	return IsNull(v) || v.Kind() == k
}

// FromAny converts a decoded YAML or CUE scalar into a Value of kind k.
// Strings are parsed for uuid columns. Floats are rejected.
func FromAny(raw any, k Kind) (Value, error) {
	if raw == nil {
		return Null{}, nil
	}
	switch k {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return String(s), nil
	case KindInt:
		switch n := raw.(type) {
		case int:
			return Int(n), nil
		case int64:
			return Int(n), nil
		case uint64:
			if n > 1<<63-1 {
				return nil, fmt.Errorf("integer out of int64 range: %d", n)
			}
			return Int(int64(n)), nil
		case float64, float32:
			return nil, fmt.Errorf("floats are forbidden: %v", n)
		default:
			return nil, fmt.Errorf("expected int, got %T", raw)
		}
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return Bool(b), nil
	case KindUUID:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected uuid string, got %T", raw)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q: %w", s, err)
		}
		return UUID(id), nil
	default:
		return nil, fmt.Errorf("cannot convert to %s", k)
	}
}
