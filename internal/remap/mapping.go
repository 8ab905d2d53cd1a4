// Package remap replaces temporary keys of new entities with durable ones
// and rewrites every recorded reference that still names a temporary key.
package remap

import (
	"iter"

	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/state"
)

// KeyMapping is a finalized old-to-new key mapping. It is read-only.
type KeyMapping struct {
	m *key.Map[key.Key]
}

// Len is the number of mapped keys.
func (km *KeyMapping) Len() int { return km.m.Len() }

// Lookup returns the key k maps to.
func (km *KeyMapping) Lookup(k key.Key) (key.Key, bool) {
	if k == nil {
		return nil, false
	}
	return km.m.Get(k)
}

// Remap returns the key k maps to, or k itself when unmapped.
func (km *KeyMapping) Remap(k key.Key) key.Key {
	if mapped, ok := km.Lookup(k); ok {
		return mapped
	}
	return k
}

// All iterates old and new keys in mapping order.
func (km *KeyMapping) All() iter.Seq2[key.Key, key.Key] { return km.m.All() }

// Apply rekeys every state whose key is mapped and returns how many
// changed.
func (km *KeyMapping) Apply(states iter.Seq[*state.EntityState]) (int, error) {
	n := 0
	for s := range states {
		mapped, ok := km.Lookup(s.Key())
		if !ok || mapped == s.Key() {
			continue
		}
		if err := s.Rekey(mapped); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Context collects mappings during one remap pass.
type Context struct {
	m *key.Map[key.Key]
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{m: key.NewMap[key.Key]()}
}

// Register maps old to new.
func (c *Context) Register(old, new key.Key) { c.m.Set(old, new) }

// TryRemap returns the mapped key, or k when unmapped. Nil stays nil.
func (c *Context) TryRemap(k key.Key) key.Key {
	if k == nil {
		return nil
	}
	if mapped, ok := c.m.Get(k); ok {
		return mapped
	}
	return k
}

// Finalize freezes the context into a KeyMapping.
func (c *Context) Finalize() *KeyMapping {
	return &KeyMapping{m: c.m.Clone()}
}
