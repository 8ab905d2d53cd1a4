// Package delta tracks the membership of one collection relationship: a
// bounded cache of confirmed member keys plus the uncommitted additions and
// removals made since the last flush.
//
// A State is owned by one session and is not safe for concurrent use.
package delta

import (
	"errors"

	"github.com/roach88/uow/internal/key"
)

// DefaultCapacity bounds the confirmed-member cache of a State.
const DefaultCapacity = 1024

// ErrConcurrentModification is returned by an Iterator whose State changed
// after the iterator was created.
var ErrConcurrentModification = errors.New("collection modified during iteration")

// Remapper rewrites a key, returning it unchanged when it is not mapped.
// *remap.KeyMapping satisfies it.
type Remapper interface {
	Remap(k key.Key) key.Key
}

// Option configures a State.
type Option func(*State)

// WithCapacity bounds the confirmed cache. Values below one are ignored.
func WithCapacity(n int) Option {
	return func(s *State) {
		if n > 0 {
			s.capacity = n
		}
	}
}

type snapshot struct {
	confirmed   *key.Set
	total       int64
	totalKnown  bool
	fullyLoaded bool
}

// State is the delta state of one (owner, association) pair.
type State struct {
	capacity    int
	confirmed   *key.Set
	added       *key.Set
	removed     *key.Set
	total       int64
	totalKnown  bool
	fullyLoaded bool
	version     uint64
	backup      *snapshot
}

// New returns an empty State. A collection whose owner was just created is
// fully loaded: its membership is known to be empty.
func New(fullyLoaded bool, opts ...Option) *State {
	s := &State{
		capacity:    DefaultCapacity,
		confirmed:   key.NewSet(),
		added:       key.NewSet(),
		removed:     key.NewSet(),
		fullyLoaded: fullyLoaded,
		totalKnown:  fullyLoaded,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Version increases on every structural change.
func (s *State) Version() uint64 { return s.version }

// TotalCount is the estimated member count, if known.
func (s *State) TotalCount() (int64, bool) { return s.total, s.totalKnown }

// IsFullyLoaded reports whether the confirmed cache holds every member the
// store knows about.
func (s *State) IsFullyLoaded() bool { return s.fullyLoaded }

// HasChanges reports whether there are uncommitted additions or removals.
func (s *State) HasChanges() bool { return s.added.Len() > 0 || s.removed.Len() > 0 }

// Added returns the pending additions in insertion order.
func (s *State) Added() []key.Key { return s.added.Slice() }

// Removed returns the pending removals in insertion order.
func (s *State) Removed() []key.Key { return s.removed.Slice() }

// Contains checks pending removals, then pending additions, then the
// confirmed cache.
func (s *State) Contains(k key.Key) bool {
	switch {
	case s.removed.Contains(k):
		return false
	case s.added.Contains(k):
		return true
	default:
		return s.confirmed.Contains(k)
	}
}

// Add records k as a member. It reports whether membership changed.
func (s *State) Add(k key.Key) bool {
	if !s.removed.Remove(k) {
		if s.added.Contains(k) || s.confirmed.Contains(k) {
			return false
		}
		s.added.Add(k)
	}
	s.version++
	if s.totalKnown {
		s.total++
	}
	return true
}

// Remove records k as no longer a member. Unless the collection is fully
// loaded, a key missing from the cache is assumed to be a member.
func (s *State) Remove(k key.Key) bool {
	if !s.added.Remove(k) {
		if s.removed.Contains(k) {
			return false
		}
		if !s.confirmed.Contains(k) && s.fullyLoaded {
			return false
		}
		s.removed.Add(k)
	}
	s.version++
	if s.totalKnown && s.total > 0 {
		s.total--
	}
	return true
}

// ApplyChanges folds the pending deltas into the confirmed cache once they
// are durably written. The previous cache is kept for RollbackState.
func (s *State) ApplyChanges() {
	s.ApplyWhere(func(key.Key) bool { return true })
}

// ApplyWhere folds the pending additions and removals of the keys written
// reports as durably written, leaving the others pending. The previous cache
// is kept for RollbackState.
func (s *State) ApplyWhere(written func(key.Key) bool) {
	if !s.HasChanges() {
		return
	}
	s.backup = &snapshot{
		confirmed:   s.confirmed.Clone(),
		total:       s.total,
		totalKnown:  s.totalKnown,
		fullyLoaded: s.fullyLoaded,
	}
	for _, k := range s.removed.Slice() {
		if written(k) {
			s.removed.Remove(k)
			s.confirmed.Remove(k)
		}
	}
	for _, k := range s.added.Slice() {
		if written(k) {
			s.added.Remove(k)
			s.confirm(k)
		}
	}
}

// RollbackState restores the cache saved by the last ApplyChanges.
func (s *State) RollbackState() {
	if s.backup == nil {
		return
	}
	s.confirmed = s.backup.confirmed
	s.total = s.backup.total
	s.totalKnown = s.backup.totalKnown
	s.fullyLoaded = s.backup.fullyLoaded
	s.backup = nil
	s.version++
}

// CancelChanges drops the pending deltas without applying them.
func (s *State) CancelChanges() {
	if !s.HasChanges() {
		return
	}
	if s.totalKnown {
		s.total += int64(s.removed.Len()) - int64(s.added.Len())
	}
	s.added.Clear()
	s.removed.Clear()
	s.version++
}

// Update reconciles the State with an authoritative member list. A negative
// total means the store did not report one.
func (s *State) Update(keys []key.Key, total int64) {
	if s.HasChanges() {
		synced := key.NewSet(keys...)
		for _, k := range s.added.Slice() {
			if synced.Contains(k) {
				s.added.Remove(k)
			}
		}
		for _, k := range s.removed.Slice() {
			if !synced.Contains(k) {
				s.removed.Remove(k)
			}
		}
	}

	s.confirmed = key.NewSet()
	s.fullyLoaded = total >= 0 && int64(len(keys)) == total
	for _, k := range keys {
		s.confirm(k)
	}
	s.totalKnown = total >= 0
	if s.totalKnown {
		s.total = total + int64(s.added.Len()) - int64(s.removed.Len())
	}
	s.backup = nil
	s.version++
}

// RemapKeys rewrites the pending deltas through m. The confirmed cache only
// ever holds keys the store has seen, so it is left alone.
func (s *State) RemapKeys(m Remapper) int {
	n := remapSet(s.added, m) + remapSet(s.removed, m)
	if n > 0 {
		s.version++
	}
	return n
}

// Invalidate drops the confirmed cache and the count estimate.
func (s *State) Invalidate() {
	s.confirmed = key.NewSet()
	s.fullyLoaded = false
	s.totalKnown = false
	s.total = 0
	s.backup = nil
	s.version++
}

func (s *State) confirm(k key.Key) {
	s.confirmed.Add(k)
	for s.confirmed.Len() > s.capacity {
		oldest, _ := s.confirmed.Oldest()
		s.confirmed.Remove(oldest)
		s.fullyLoaded = false
	}
}

func remapSet(set *key.Set, m Remapper) int {
	n := 0
	next := key.NewSet()
	for k := range set.All() {
		mapped := m.Remap(k)
		if mapped != k {
			n++
		}
		next.Add(mapped)
	}
	if n > 0 {
		*set = *next
	}
	return n
}
