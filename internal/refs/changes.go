package refs

import (
	"sync"

	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/schema"
)

// FieldChange is a net reference change of one owner field. Old and New
// are nil for a null reference. For collections, Old is a removed member
// and New an added one.
type FieldChange struct {
	Owner key.Key
	Field *schema.FieldInfo
	Old   key.Key
	New   key.Key
}

type changeSlot struct {
	field *schema.FieldInfo
	hash  uint64
}

// FieldChanges accumulates reference changes of master associations.
type FieldChanges struct {
	mu      sync.Mutex
	changes []FieldChange
	// scalar reference changes coalesce per (owner, field)
	scalar map[changeSlot][]int
}

// NewFieldChanges returns an empty registry.
func NewFieldChanges() *FieldChanges {
	return &FieldChanges{scalar: make(map[changeSlot][]int)}
}

// Register records that owner's field moved from old to new. Repeated
// changes of the same reference field keep the first Old and the last New.
// Collection changes are kept individually.
func (c *FieldChanges) Register(owner key.Key, field *schema.FieldInfo, old, new key.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if field.Kind == schema.FieldReference {
		sl := changeSlot{field: field, hash: owner.Hash()}
		for _, i := range c.scalar[sl] {
			if c.changes[i].Owner.Equal(owner) {
				c.changes[i].New = new
				return
			}
		}
		c.scalar[sl] = append(c.scalar[sl], len(c.changes))
	}
	c.changes = append(c.changes, FieldChange{Owner: owner, Field: field, Old: old, New: new})
}

// Items returns a snapshot of the recorded changes in registration order.
func (c *FieldChanges) Items() []FieldChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FieldChange, len(c.changes))
	copy(out, c.changes)
	return out
}

// Len is the number of recorded changes.
func (c *FieldChanges) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}

// Clear drops every change.
func (c *FieldChanges) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = nil
	clear(c.scalar)
}
