package state

import (
	"iter"
)

// bucket is an insertion-ordered set of states.
type bucket struct {
	index   map[*EntityState]int
	entries []*EntityState
}

func newBucket() *bucket {
	return &bucket{index: make(map[*EntityState]int)}
}

func (b *bucket) has(s *EntityState) bool {
	_, ok := b.index[s]
	return ok
}

func (b *bucket) add(s *EntityState) bool {
	if b.has(s) {
		return false
	}
	b.index[s] = len(b.entries)
	b.entries = append(b.entries, s)
	return true
}

func (b *bucket) remove(s *EntityState) bool {
	i, ok := b.index[s]
	if !ok {
		return false
	}
	delete(b.index, s)
	b.entries[i] = nil
	if len(b.entries) > 32 && len(b.index) < len(b.entries)/2 {
		b.compact()
	}
	return true
}

func (b *bucket) compact() {
	live := make([]*EntityState, 0, len(b.index))
	for _, s := range b.entries {
		if s != nil {
			b.index[s] = len(live)
			live = append(live, s)
		}
	}
	b.entries = live
}

func (b *bucket) len() int { return len(b.index) }

func (b *bucket) snapshot() []*EntityState {
	out := make([]*EntityState, 0, len(b.index))
	for _, s := range b.entries {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Registry partitions touched entities by persistence state. An entity is
// in at most one bucket, and Count always equals the sum of bucket sizes.
type Registry struct {
	buckets map[PersistenceState]*bucket
	count   int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{buckets: map[PersistenceState]*bucket{
		New:      newBucket(),
		Modified: newBucket(),
		Removed:  newBucket(),
	}}
}

// Register files s under its current persistence state.
//
// Collapse rules:
//   - New while in Removed: the entity was removed and recreated. With no
//     tuple difference it is Synchronized again and leaves the registry,
//     otherwise it becomes Modified.
//   - Removed while in New: the entity never reached storage and is dropped.
//   - Modified while in New: stays New.
//   - Synchronized: leaves the registry.
func (r *Registry) Register(s *EntityState) {
	switch s.state {
	case New:
		if r.buckets[Removed].has(s) {
			r.take(s)
			if !s.HasDifference() {
				s.state = Synchronized
				return
			}
			s.state = Modified
		}
	case Removed:
		if r.buckets[New].has(s) {
			r.take(s)
			return
		}
	case Modified:
		if r.buckets[New].has(s) {
			s.state = New
			return
		}
	case Synchronized:
		r.take(s)
		return
	}
	target := r.buckets[s.state]
	if target.has(s) {
		return
	}
	r.take(s)
	target.add(s)
	r.count++
}

// take removes s from whichever bucket holds it.
func (r *Registry) take(s *EntityState) bool {
	for _, b := range r.buckets {
		if b.remove(s) {
			r.count--
			return true
		}
	}
	return false
}

// Unregister removes s without changing its persistence state.
func (r *Registry) Unregister(s *EntityState) bool { return r.take(s) }

// Contains reports whether s is registered in any bucket.
func (r *Registry) Contains(s *EntityState) bool {
	for _, b := range r.buckets {
		if b.has(s) {
			return true
		}
	}
	return false
}

// Items yields a snapshot of the bucket for ps taken when Items is called.
// Registering during iteration does not affect the sequence.
func (r *Registry) Items(ps PersistenceState) iter.Seq[*EntityState] {
	b, ok := r.buckets[ps]
	if !ok {
		return func(func(*EntityState) bool) {}
	}
	snap := b.snapshot()
	return func(yield func(*EntityState) bool) {
		for _, s := range snap {
			if !yield(s) {
				return
			}
		}
	}
}

// All yields Removed, Modified then New states.
func (r *Registry) All() iter.Seq[*EntityState] {
	parts := [][]*EntityState{
		r.buckets[Removed].snapshot(),
		r.buckets[Modified].snapshot(),
		r.buckets[New].snapshot(),
	}
	return func(yield func(*EntityState) bool) {
		for _, part := range parts {
			for _, s := range part {
				if !yield(s) {
					return
				}
			}
		}
	}
}

// Len is the size of the bucket for ps.
func (r *Registry) Len(ps PersistenceState) int {
	if b, ok := r.buckets[ps]; ok {
		return b.len()
	}
	return 0
}

// Count is the number of registered states.
func (r *Registry) Count() int { return r.count }

// Clear empties every bucket.
func (r *Registry) Clear() {
	for ps := range r.buckets {
		r.buckets[ps] = newBucket()
	}
	r.count = 0
}

// Partition splits the registry by pred without changing any state.
// Bucket membership and order are preserved in both halves.
func (r *Registry) Partition(pred func(*EntityState) bool) (matched, rest *Registry) {
	matched, rest = NewRegistry(), NewRegistry()
	for _, ps := range []PersistenceState{New, Modified, Removed} {
		for _, s := range r.buckets[ps].snapshot() {
			dst := rest
			if pred(s) {
				dst = matched
			}
			dst.buckets[ps].add(s)
			dst.count++
		}
	}
	return matched, rest
}
