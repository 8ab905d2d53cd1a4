package key

import (
	"iter"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
)

type entry[V any] struct {
	key   Key
	value V
	live  bool
}

// Map is a Key-indexed map that iterates in insertion order.
// The zero value is not usable; call NewMap.
type Map[V any] struct {
	entries []entry[V]
	buckets map[uint64][]int
	live    int
}

// NewMap returns an empty map.
func NewMap[V any]() *Map[V] {
	return &Map[V]{buckets: make(map[uint64][]int)}
}

func (m *Map[V]) find(h *schema.Hierarchy, hash uint64, values ir.Tuple) int {
	for _, idx := range m.buckets[hash] {
		e := &m.entries[idx]
		if e.live && EqualValues(e.key, h, values) {
			return idx
		}
	}
	return -1
}

func (m *Map[V]) index(k Key) int {
	return m.find(k.Hierarchy(), k.Hash(), k.Values())
}

// Get returns the value stored under k.
func (m *Map[V]) Get(k Key) (V, bool) {
	if idx := m.index(k); idx >= 0 {
		return m.entries[idx].value, true
	}
	var zero V
	return zero, false
}

// Lookup finds the entry whose key holds values in hierarchy h, without
// building a Key.
func (m *Map[V]) Lookup(h *schema.Hierarchy, values ir.Tuple) (Key, V, bool) {
	if idx := m.find(h, HashValues(h, values), values); idx >= 0 {
		e := m.entries[idx]
		return e.key, e.value, true
	}
	var zero V
	return nil, zero, false
}

// Has reports whether k is present.
func (m *Map[V]) Has(k Key) bool { return m.index(k) >= 0 }

// Set stores v under k. An existing entry keeps its position and its key.
func (m *Map[V]) Set(k Key, v V) {
	if idx := m.index(k); idx >= 0 {
		m.entries[idx].value = v
		return
	}
	m.entries = append(m.entries, entry[V]{key: k, value: v, live: true})
	m.buckets[k.Hash()] = append(m.buckets[k.Hash()], len(m.entries)-1)
	m.live++
}

// Delete removes k and reports whether it was present.
func (m *Map[V]) Delete(k Key) bool {
	idx := m.index(k)
	if idx < 0 {
		return false
	}
	m.entries[idx] = entry[V]{}
	m.unbucket(k.Hash(), idx)
	m.live--
	if len(m.entries) > 32 && m.live < len(m.entries)/2 {
		m.compact()
	}
	return true
}

func (m *Map[V]) unbucket(hash uint64, idx int) {
	b := m.buckets[hash]
	for i, j := range b {
		if j == idx {
			b = append(b[:i], b[i+1:]...)
			break
		}
	}
	if len(b) == 0 {
		delete(m.buckets, hash)
		return
	}
	m.buckets[hash] = b
}

func (m *Map[V]) compact() {
	entries := make([]entry[V], 0, m.live)
	buckets := make(map[uint64][]int, len(m.buckets))
	for _, e := range m.entries {
		if !e.live {
			continue
		}
		entries = append(entries, e)
		buckets[e.key.Hash()] = append(buckets[e.key.Hash()], len(entries)-1)
	}
	m.entries, m.buckets = entries, buckets
}

// Len is the number of entries.
func (m *Map[V]) Len() int { return m.live }

// Clear removes every entry.
func (m *Map[V]) Clear() {
	m.entries = nil
	m.buckets = make(map[uint64][]int)
	m.live = 0
}

// All iterates entries in insertion order. The map must not be modified
// during iteration.
func (m *Map[V]) All() iter.Seq2[Key, V] {
	return func(yield func(Key, V) bool) {
		for _, e := range m.entries {
			if e.live && !yield(e.key, e.value) {
				return
			}
		}
	}
}

// Keys iterates keys in insertion order.
func (m *Map[V]) Keys() iter.Seq[Key] {
	return func(yield func(Key) bool) {
		for _, e := range m.entries {
			if e.live && !yield(e.key) {
				return
			}
		}
	}
}

// Oldest returns the first live key in insertion order.
func (m *Map[V]) Oldest() (Key, bool) {
	for _, e := range m.entries {
		if e.live {
			return e.key, true
		}
	}
	return nil, false
}

// Clone returns an independent copy.
func (m *Map[V]) Clone() *Map[V] {
	out := NewMap[V]()
	for k, v := range m.All() {
		out.Set(k, v)
	}
	return out
}

// Set is a Key set that iterates in insertion order.
type Set struct {
	m *Map[struct{}]
}

// NewSet returns a set holding keys.
func NewSet(keys ...Key) *Set {
	s := &Set{m: NewMap[struct{}]()}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts k and reports whether it was absent.
func (s *Set) Add(k Key) bool {
	if s.m.Has(k) {
		return false
	}
	s.m.Set(k, struct{}{})
	return true
}

// Remove deletes k and reports whether it was present.
func (s *Set) Remove(k Key) bool { return s.m.Delete(k) }

// Contains reports whether k is in the set.
func (s *Set) Contains(k Key) bool { return s.m.Has(k) }

// Len is the number of keys.
func (s *Set) Len() int { return s.m.Len() }

// Clear removes every key.
func (s *Set) Clear() { s.m.Clear() }

// All iterates keys in insertion order.
func (s *Set) All() iter.Seq[Key] { return s.m.Keys() }

// Slice returns the keys in insertion order.
func (s *Set) Slice() []Key {
	out := make([]Key, 0, s.Len())
	for k := range s.All() {
		out = append(out, k)
	}
	return out
}

// Oldest returns the first key in insertion order.
func (s *Set) Oldest() (Key, bool) { return s.m.Oldest() }

// Clone returns an independent copy.
func (s *Set) Clone() *Set { return &Set{m: s.m.Clone()} }
