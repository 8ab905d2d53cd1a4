// Package pin withholds entities from a flush while an explicit root still
// depends on them.
//
// Roots are entities the caller protects, for example because it is still
// enumerating them. Process pins every root plus, transitively, every New
// or Modified entity whose reference points at a pinned New entity, and
// splits the registry into pinned and persistable halves. Reachability is
// computed in memory only, from reference columns of registered states.
package pin

import (
	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

// Root is the handle returned by RegisterRoot. Release unregisters the root;
// releasing twice is harmless.
type Root struct {
	pinner *Pinner
	state  *state.EntityState
}

// Release unregisters the root.
func (r *Root) Release() {
	if r.pinner == nil {
		return
	}
	r.pinner.release(r.state)
	r.pinner = nil
}

// Pinner holds the root set and the partitions of the last Process call.
type Pinner struct {
	roots       map[*state.EntityState]int
	order       []*state.EntityState
	pinned      *state.Registry
	persistable *state.Registry
}

// New returns a pinner with no roots.
func New() *Pinner {
	return &Pinner{roots: make(map[*state.EntityState]int)}
}

// RegisterRoot protects s until the returned handle is released. Roots are
// reference counted: registering the same state twice needs two releases.
func (p *Pinner) RegisterRoot(s *state.EntityState) *Root {
	if p.roots[s] == 0 {
		p.order = append(p.order, s)
	}
	p.roots[s]++
	return &Root{pinner: p, state: s}
}

func (p *Pinner) release(s *state.EntityState) {
	n, ok := p.roots[s]
	if !ok {
		return
	}
	if n > 1 {
		p.roots[s] = n - 1
		return
	}
	delete(p.roots, s)
	for i, r := range p.order {
		if r == s {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// ClearRoots drops every root, outstanding handles included.
func (p *Pinner) ClearRoots() {
	clear(p.roots)
	p.order = nil
}

// RootCount is the number of distinct roots.
func (p *Pinner) RootCount() int { return len(p.order) }

type referencer struct {
	state  *state.EntityState
	values ir.Tuple
}

type slot struct {
	assoc *schema.Association
	hash  uint64
}

// Process computes the pinned closure over reg and partitions it. The
// partitions stay available until Reset.
func (p *Pinner) Process(reg *state.Registry) {
	if len(p.order) == 0 {
		p.pinned, p.persistable = reg.Partition(func(*state.EntityState) bool { return false })
		return
	}

	index := buildIndex(reg)
	pinned := make(map[*state.EntityState]bool, len(p.order))
	var stack []*state.EntityState
	for _, r := range p.order {
		pinned[r] = true
		if r.PersistenceState() == state.New {
			stack = append(stack, r)
		}
	}

	for len(stack) > 0 {
		target := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		k := target.Key()
		for _, a := range target.Type().TargetAssociations() {
			for _, ref := range index[slot{assoc: a, hash: k.Hash()}] {
				if pinned[ref.state] || !key.EqualValues(k, a.TargetType.Hierarchy, ref.values) {
					continue
				}
				pinned[ref.state] = true
				if ref.state.PersistenceState() == state.New {
					stack = append(stack, ref.state)
				}
			}
		}
	}

	p.pinned, p.persistable = reg.Partition(func(s *state.EntityState) bool { return pinned[s] })
}

// buildIndex maps (association, referenced key hash) to the New and
// Modified states whose reference field holds that key.
func buildIndex(reg *state.Registry) map[slot][]referencer {
	index := make(map[slot][]referencer)
	for _, ps := range []state.PersistenceState{state.New, state.Modified} {
		for s := range reg.Items(ps) {
			for _, a := range s.Type().OwnerAssociations() {
				if !a.IsReference() {
					continue
				}
				values := s.Field(a.OwnerField)
				if values.HasNull() {
					continue
				}
				sl := slot{assoc: a, hash: key.HashValues(a.TargetType.Hierarchy, values)}
				index[sl] = append(index[sl], referencer{state: s, values: values})
			}
		}
	}
	return index
}

// PinnedItems returns the pinned partition of the last Process call.
func (p *Pinner) PinnedItems() *state.Registry { return p.pinned }

// PersistableItems returns the persistable partition of the last Process
// call.
func (p *Pinner) PersistableItems() *state.Registry { return p.persistable }

// Reset discards the partitions. Roots are kept.
func (p *Pinner) Reset() {
	p.pinned, p.persistable = nil, nil
}
