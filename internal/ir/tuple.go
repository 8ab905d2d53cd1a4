package ir

import "strings"

// Tuple is an ordered row of column values.
type Tuple []Value

// NewTuple returns a tuple of width n with every column null.
func NewTuple(n int) Tuple {
	t := make(Tuple, n)
	for i := range t {
		t[i] = Null{}
	}
	return t
}

// Clone returns a copy that shares no backing array with t.
func (t Tuple) Clone() Tuple {
	if t == nil {
		return nil
	}
	out := make(Tuple, len(t))
	copy(out, t)
	return out
}

// Equal compares tuples column by column.
func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if !Equal(t[i], o[i]) {
			return false
		}
	}
	return true
}

// Slice returns a copy of columns [offset, offset+length).
func (t Tuple) Slice(offset, length int) Tuple {
	out := make(Tuple, length)
	copy(out, t[offset:offset+length])
	return out
}

// Pick returns a copy of the columns at the given indexes, in order.
func (t Tuple) Pick(indexes []int) Tuple {
	out := make(Tuple, len(indexes))
	for i, idx := range indexes {
		out[i] = t[idx]
	}
	return out
}

// Concat returns t followed by o as a new tuple.
func (t Tuple) Concat(o Tuple) Tuple {
	out := make(Tuple, 0, len(t)+len(o))
	out = append(out, t...)
	return append(out, o...)
}

// HasNull reports whether any column is null.
func (t Tuple) HasNull() bool {
	for _, v := range t {
		if IsNull(v) {
			return true
		}
	}
	return false
}

// AllNull reports whether every column is null.
func (t Tuple) AllNull() bool {
	for _, v := range t {
		if !IsNull(v) {
			return false
		}
	}
	return true
}

// String renders the tuple as "(v1, v2)".
func (t Tuple) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range t {
		if i > 0 {
			b.WriteString(", ")
		}
		if v == nil {
			b.WriteString("null")
			continue
		}
		b.WriteString(v.String())
	}
	b.WriteByte(')')
	return b.String()
}
