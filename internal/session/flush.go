package session

import (
	"context"
	"slices"
	"time"

	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/persist"
	"github.com/roach88/uow/internal/remap"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

// FlushResult describes a successful flush.
type FlushResult struct {
	Seq      int64
	Actions  []persist.Action
	Stats    persist.Stats
	Mapping  *remap.KeyMapping
	Remapped int
	Pinned   int
}

// Plan returns the actions the next flush would execute, without remapping
// keys or executing anything. Pinned entities are left out as in Flush.
func (s *Session) Plan() ([]persist.Action, error) {
	defer s.pinner.Reset()
	s.pinner.Process(s.registry)
	return s.generator.Generate(s.pinner.PersistableItems())
}

// Flush writes every persistable change through the executor.
func (s *Session) Flush(ctx context.Context) (*FlushResult, error) {
	seq := s.clock.Next()
	start := time.Now()
	defer s.pinner.Reset()

	s.pinner.Process(s.registry)
	persistable, pinned := s.pinner.PersistableItems(), s.pinner.PinnedItems()

	log := s.logger.With("seq", seq)
	log.Info("flush started",
		"new", persistable.Len(state.New),
		"modified", persistable.Len(state.Modified),
		"removed", persistable.Len(state.Removed),
		"pinned", pinned.Count(),
	)

	mapping, err := s.remapper.Remap(ctx, persistable)
	if err != nil {
		return nil, s.fail(start, &FlushError{Code: ErrCodeKeyGeneration, Seq: seq, Err: err})
	}
	remapped, err := s.applyMapping(mapping)
	if err != nil {
		return nil, s.fail(start, &FlushError{Code: ErrCodeKeyGeneration, Seq: seq, Err: err})
	}
	if remapped > 0 {
		log.Debug("temporary keys remapped", "count", remapped)
	}

	actions, err := s.generator.Generate(persistable)
	if err != nil {
		return nil, s.fail(start, &FlushError{Code: ErrCodePlanFailed, Seq: seq, Err: err})
	}
	stats := persist.Summarize(actions)

	if len(actions) > 0 {
		if err := s.executor.Execute(ctx, actions); err != nil {
			return nil, s.fail(start, &FlushError{Code: ErrCodeExecutionFailed, Seq: seq, Actions: len(actions), Err: err})
		}
	}

	s.commit(persistable, pinned)

	s.metrics.Flushes.WithLabelValues("ok").Inc()
	s.metrics.observePlan(stats)
	s.metrics.RemappedKeys.Add(float64(remapped))
	s.metrics.PinnedEntities.Add(float64(pinned.Count()))
	s.metrics.FlushDuration.Observe(time.Since(start).Seconds())

	log.Info("flush completed",
		"inserts", stats.Inserts,
		"updates", stats.Updates,
		"removes", stats.Removes,
		"compensations", stats.Compensations,
		"remapped", remapped,
	)
	return &FlushResult{
		Seq:      seq,
		Actions:  actions,
		Stats:    stats,
		Mapping:  mapping,
		Remapped: remapped,
		Pinned:   pinned.Count(),
	}, nil
}

func (s *Session) fail(start time.Time, err *FlushError) error {
	s.metrics.Flushes.WithLabelValues("failed").Inc()
	s.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	s.logger.Error("flush failed", "seq", err.Seq, "code", string(err.Code), "error", err.Err)
	return err
}

// applyMapping rekeys the mapped states, moves them in the identity map and
// rewrites pending collection deltas.
func (s *Session) applyMapping(mapping *remap.KeyMapping) (int, error) {
	if mapping.Len() == 0 {
		return 0, nil
	}
	var moved []*state.EntityState
	for old := range mapping.All() {
		if st := s.lookup(old); st != nil {
			moved = append(moved, st)
		}
	}
	for _, st := range moved {
		s.identity.Delete(st.Key())
	}
	n, err := mapping.Apply(slices.Values(moved))
	for _, st := range moved {
		s.identity.Set(st.Key(), st)
	}
	for _, ds := range s.collections {
		ds.RemapKeys(mapping)
	}
	return n, err
}

// commit marks the flushed states as written.
func (s *Session) commit(persistable, pinned *state.Registry) {
	var removed []*state.EntityState
	for st := range persistable.All() {
		s.registry.Unregister(st)
		if st.PersistenceState() == state.Removed {
			removed = append(removed, st)
			continue
		}
		st.CommitDifference()
		st.SetPersistenceState(state.Synchronized)
	}
	for _, st := range removed {
		s.forget(st)
	}

	for slot, ds := range s.collections {
		ds.ApplyWhere(func(member key.Key) bool {
			held := s.membershipState(slot, member)
			return held == nil || !pinned.Contains(held)
		})
	}
	if s.registry.Count() == 0 {
		s.tracker.Clear()
	}
}

// membershipState returns the state whose write records member's change in
// slot: the member itself for one-to-many, the link entity for
// many-to-many. It is nil when that state is no longer tracked.
func (s *Session) membershipState(slot collectionSlot, member key.Key) *state.EntityState {
	a := slot.field.Association
	if a.Multiplicity == schema.OneToMany {
		return s.lookup(member)
	}
	ownerValues, memberValues := slot.owner.Key().Values(), member.Values()
	if a.IsPaired() {
		ownerValues, memberValues = memberValues, ownerValues
	}
	k, err := s.factory.Materialize(a.Auxiliary, ownerValues.Concat(memberValues), key.AccuracyExactType, false, nil)
	if err != nil {
		return nil
	}
	return s.lookup(k)
}

// Rollback discards every pending change: New entities are forgotten,
// Modified and Removed ones get their last flushed values back, and
// pending collection changes are cancelled. With transactional collections
// the collection caches also return to their state before the last flush.
func (s *Session) Rollback() {
	discarded := s.registry.Count()
	var dropped []*state.EntityState
	for st := range s.registry.All() {
		st.RollbackDifference()
		if st.PersistenceState() == state.New {
			dropped = append(dropped, st)
			continue
		}
		st.SetPersistenceState(state.Synchronized)
	}
	s.registry.Clear()
	for _, st := range dropped {
		s.forget(st)
	}

	for _, ds := range s.collections {
		ds.CancelChanges()
		if s.transactional {
			ds.RollbackState()
		}
	}
	s.changes.Clear()
	s.tracker.Clear()
	s.pinner.Reset()

	s.metrics.Rollbacks.Inc()
	s.logger.Info("session rolled back", "discarded", discarded)
}
