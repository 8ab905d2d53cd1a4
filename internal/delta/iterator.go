package delta

import "github.com/roach88/uow/internal/key"

// Iterator walks the members of a State as of its creation: confirmed
// members not pending removal, then pending additions. Any structural change
// to the State stops the iterator with ErrConcurrentModification.
type Iterator struct {
	s       *State
	version uint64
	keys    []key.Key
	pos     int
	cur     key.Key
	err     error
}

// Iterate returns an iterator over the current members.
func (s *State) Iterate() *Iterator {
	keys := make([]key.Key, 0, s.confirmed.Len()+s.added.Len())
	for k := range s.confirmed.All() {
		if !s.removed.Contains(k) {
			keys = append(keys, k)
		}
	}
	keys = append(keys, s.added.Slice()...)
	return &Iterator{s: s, version: s.version, keys: keys}
}

// Next advances to the next member.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.s.version != it.version {
		it.err = ErrConcurrentModification
		it.cur = nil
		return false
	}
	if it.pos >= len(it.keys) {
		it.cur = nil
		return false
	}
	it.cur = it.keys[it.pos]
	it.pos++
	return true
}

// Key is the current member.
func (it *Iterator) Key() key.Key { return it.cur }

// Err is the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }
