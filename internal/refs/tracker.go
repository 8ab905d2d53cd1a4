package refs

import (
	"sync"

	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

type targetSlot struct {
	target *state.EntityState
	assoc  *schema.Association
}

// refSet is an insertion-ordered set of referencing states.
type refSet struct {
	index   map[*state.EntityState]int
	entries []*state.EntityState
}

func (s *refSet) has(r *state.EntityState) bool {
	_, ok := s.index[r]
	return ok
}

func (s *refSet) add(r *state.EntityState) {
	if s.index == nil {
		s.index = make(map[*state.EntityState]int)
	}
	s.index[r] = len(s.entries)
	s.entries = append(s.entries, r)
}

func (s *refSet) remove(r *state.EntityState) {
	i, ok := s.index[r]
	if !ok {
		return
	}
	delete(s.index, r)
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	for j := i; j < len(s.entries); j++ {
		s.index[s.entries[j]] = j
	}
}

func (s *refSet) slice() []*state.EntityState {
	out := make([]*state.EntityState, len(s.entries))
	copy(out, s.entries)
	return out
}

// Tracker records, per target and association, which states gained or lost
// a reference to the target. Entries are keyed by state, so rekeying a
// target does not invalidate them.
type Tracker struct {
	mu      sync.Mutex
	added   map[targetSlot]*refSet
	removed map[targetSlot]*refSet
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		added:   make(map[targetSlot]*refSet),
		removed: make(map[targetSlot]*refSet),
	}
}

// RegisterChange records that referencing now points at referenced instead
// of noLongerReferenced through assoc. Either end may be nil. An addition
// cancels a pending removal of the same pair and vice versa; registering
// the same addition or removal twice is an InvariantError.
func (t *Tracker) RegisterChange(referenced, referencing, noLongerReferenced *state.EntityState, assoc *schema.Association) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if noLongerReferenced != nil {
		if err := t.move(targetSlot{noLongerReferenced, assoc}, referencing, t.added, t.removed, "removal"); err != nil {
			return err
		}
	}
	if referenced != nil {
		if err := t.move(targetSlot{referenced, assoc}, referencing, t.removed, t.added, "addition"); err != nil {
			return err
		}
	}
	return nil
}

// move cancels referencing in opposite, or records it in same.
func (t *Tracker) move(slot targetSlot, referencing *state.EntityState, opposite, same map[targetSlot]*refSet, what string) error {
	if set, ok := opposite[slot]; ok && set.has(referencing) {
		set.remove(referencing)
		if len(set.entries) == 0 {
			delete(opposite, slot)
		}
		return nil
	}
	set, ok := same[slot]
	if !ok {
		set = &refSet{}
		same[slot] = set
	}
	if set.has(referencing) {
		return &InvariantError{
			Association: slot.assoc.Name,
			Detail:      "reference " + what + " of " + slot.target.Key().String() + " by " + referencing.Key().String() + " already registered",
		}
	}
	set.add(referencing)
	return nil
}

// AddedReferencesTo lists the states that started referencing target
// through assoc.
func (t *Tracker) AddedReferencesTo(target *state.EntityState, assoc *schema.Association) []*state.EntityState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.added[targetSlot{target, assoc}]; ok {
		return set.slice()
	}
	return nil
}

// RemovedReferencesTo lists the states that stopped referencing target
// through assoc.
func (t *Tracker) RemovedReferencesTo(target *state.EntityState, assoc *schema.Association) []*state.EntityState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.removed[targetSlot{target, assoc}]; ok {
		return set.slice()
	}
	return nil
}

// IsEmpty reports whether no change is recorded.
func (t *Tracker) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.added) == 0 && len(t.removed) == 0
}

// Clear drops every recorded change.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.added)
	clear(t.removed)
}
