package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/uow/internal/delta"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

// Collection returns the delta state of owner's collection field, creating
// it on first use. The collection of a New owner starts fully loaded and
// empty; pending changes made before the first call are folded in.
func (s *Session) Collection(owner *state.EntityState, name string) (*delta.State, error) {
	if err := s.checkTracked(owner); err != nil {
		return nil, err
	}
	f, err := collectionField(owner, name)
	if err != nil {
		return nil, err
	}
	return s.collection(owner, f), nil
}

func collectionField(owner *state.EntityState, name string) (*schema.FieldInfo, error) {
	f, ok := owner.Type().Field(name)
	if !ok {
		return nil, fmt.Errorf("%s has no field %q", owner.Type().Name, name)
	}
	if f.Kind != schema.FieldCollection || f.Association == nil {
		return nil, fmt.Errorf("%s is not a collection", f)
	}
	return f, nil
}

func (s *Session) collection(owner *state.EntityState, f *schema.FieldInfo) *delta.State {
	slot := collectionSlot{owner, f}
	if ds, ok := s.collections[slot]; ok {
		return ds
	}
	ds := delta.New(owner.PersistenceState() == state.New, delta.WithCapacity(s.collectionCap))
	s.collections[slot] = ds
	s.seed(ds, owner, f)
	return ds
}

// seed replays the changes made before ds existed.
func (s *Session) seed(ds *delta.State, owner *state.EntityState, f *schema.FieldInfo) {
	a := f.Association
	if a.Multiplicity == schema.OneToMany {
		ref := a.Reversed.OwnerField
		for _, r := range s.tracker.AddedReferencesTo(owner, a.Reversed) {
			if r.PersistenceState() != state.Removed && r.Field(ref).Equal(owner.Key().Values()) {
				ds.Add(r.Key())
			}
		}
		for _, r := range s.tracker.RemovedReferencesTo(owner, a.Reversed) {
			if !r.Field(ref).Equal(owner.Key().Values()) {
				ds.Remove(r.Key())
			}
		}
		return
	}

	ownerSide, memberSide := "owner", "target"
	if a.IsPaired() {
		ownerSide, memberSide = memberSide, ownerSide
	}
	ownerField, _ := a.Auxiliary.Field(ownerSide)
	memberField, _ := a.Auxiliary.Field(memberSide)
	for _, link := range s.identity.All() {
		if link.Type() != a.Auxiliary || !link.Field(ownerField).Equal(owner.Key().Values()) {
			continue
		}
		member, err := s.factory.Materialize(f.Target, link.Field(memberField), key.AccuracyBaseType, false, nil)
		if err != nil {
			continue
		}
		switch link.PersistenceState() {
		case state.New:
			ds.Add(member)
		case state.Removed:
			ds.Remove(member)
		}
	}
}

// AddItem makes item a member of owner's collection. For a one-to-many
// collection this points item's inverse reference at owner; for a
// many-to-many one it creates the link entity. It reports whether
// membership changed.
func (s *Session) AddItem(owner *state.EntityState, name string, item *state.EntityState) (bool, error) {
	f, err := s.memberField(owner, name, item)
	if err != nil {
		return false, err
	}
	a := f.Association
	ds := s.collection(owner, f)
	if ds.Contains(item.Key()) {
		return false, nil
	}

	if a.Multiplicity == schema.OneToMany {
		if err := s.setReference(item, a.Reversed.OwnerField, owner); err != nil {
			return false, err
		}
		return true, nil
	}

	l, err := s.resolveLink(owner, f, item)
	if err != nil {
		return false, err
	}
	switch {
	case l.state == nil:
		st, err := state.NewEntityState(l.key, nil, state.New)
		if err != nil {
			return false, err
		}
		s.identity.Set(st.Key(), st)
		s.registry.Register(st)
	case l.state.PersistenceState() == state.Removed:
		l.state.SetPersistenceState(state.New)
		s.registry.Register(l.state)
	default:
		return false, nil
	}
	s.changes.Register(l.owner.Key(), l.field, nil, l.target.Key())
	s.memberChanged(owner, f, item, true)
	return true, nil
}

// RemoveItem takes item out of owner's collection. A one-to-many member
// has its inverse reference cleared, which requires that reference to be
// nullable. It reports whether membership changed.
func (s *Session) RemoveItem(owner *state.EntityState, name string, item *state.EntityState) (bool, error) {
	f, err := s.memberField(owner, name, item)
	if err != nil {
		return false, err
	}
	a := f.Association
	ds := s.collection(owner, f)
	if ds.IsFullyLoaded() && !ds.Contains(item.Key()) {
		return false, nil
	}

	if a.Multiplicity == schema.OneToMany {
		ref := a.Reversed.OwnerField
		if !item.Field(ref).Equal(owner.Key().Values()) {
			return false, nil
		}
		if !ref.Nullable {
			return false, fmt.Errorf("remove %s from %s: %s is not nullable; remove the entity instead", item.Key(), f, ref)
		}
		if err := s.setReference(item, ref, nil); err != nil {
			return false, err
		}
		return true, nil
	}

	l, err := s.resolveLink(owner, f, item)
	if err != nil {
		return false, err
	}
	switch {
	case l.state == nil:
		st, err := state.NewEntityState(l.key, nil, state.Removed)
		if err != nil {
			return false, err
		}
		s.identity.Set(st.Key(), st)
		s.registry.Register(st)
	case l.state.PersistenceState() == state.Removed:
		return false, nil
	case l.state.PersistenceState() == state.New:
		l.state.SetPersistenceState(state.Removed)
		s.registry.Register(l.state)
		s.forget(l.state)
	default:
		l.state.SetPersistenceState(state.Removed)
		s.registry.Register(l.state)
	}
	s.memberChanged(owner, f, item, false)
	return true, nil
}

func (s *Session) memberField(owner *state.EntityState, name string, item *state.EntityState) (*schema.FieldInfo, error) {
	if err := s.checkMutable(owner); err != nil {
		return nil, err
	}
	if err := s.checkMutable(item); err != nil {
		return nil, err
	}
	f, err := collectionField(owner, name)
	if err != nil {
		return nil, err
	}
	if !item.Type().IsSubtypeOf(f.Target) {
		return nil, fmt.Errorf("%s cannot hold %s", f, item.Key())
	}
	return f, nil
}

// linkRef is a many-to-many link in master orientation.
type linkRef struct {
	key    key.Key
	state  *state.EntityState // nil when not tracked
	owner  *state.EntityState
	target *state.EntityState
	field  *schema.FieldInfo
}

func (s *Session) resolveLink(owner *state.EntityState, f *schema.FieldInfo, item *state.EntityState) (linkRef, error) {
	a := f.Association
	if a.Auxiliary == nil {
		return linkRef{}, fmt.Errorf("%s has no link type", f)
	}
	l := linkRef{owner: owner, target: item, field: f}
	if a.IsPaired() {
		l = linkRef{owner: item, target: owner, field: a.Reversed.OwnerField}
	}
	k, err := s.factory.Materialize(a.Auxiliary, l.owner.Key().Values().Concat(l.target.Key().Values()), key.AccuracyExactType, false, nil)
	if err != nil {
		return linkRef{}, err
	}
	l.key, l.state = k, s.lookup(k)
	return l, nil
}

// memberChanged updates both sides' delta states of a many-to-many pair.
func (s *Session) memberChanged(owner *state.EntityState, f *schema.FieldInfo, item *state.EntityState, added bool) {
	apply := func(ds *delta.State, k key.Key) {
		if added {
			ds.Add(k)
		} else {
			ds.Remove(k)
		}
	}
	apply(s.collection(owner, f), item.Key())
	if r := f.Association.Reversed; r != nil {
		if ds := s.collections[collectionSlot{item, r.OwnerField}]; ds != nil {
			apply(ds, owner.Key())
		}
	}
}

// Sync reloads the confirmed members of owner's collection through the
// Reader, keeping pending changes that storage does not reflect yet.
func (s *Session) Sync(ctx context.Context, owner *state.EntityState, name string) error {
	if s.reader == nil {
		return errors.New("sync: session has no reader")
	}
	if err := s.checkTracked(owner); err != nil {
		return err
	}
	f, err := collectionField(owner, name)
	if err != nil {
		return err
	}
	ds := s.collection(owner, f)
	if owner.PersistenceState() == state.New {
		return nil
	}

	rows, typ, err := s.reader.Members(ctx, f, owner.Key().Values())
	if err != nil {
		return fmt.Errorf("sync %s of %s: %w", f, owner.Key(), err)
	}
	keys := make([]key.Key, 0, len(rows))
	for _, values := range rows {
		k, err := s.factory.Materialize(typ, values, key.AccuracyBaseType, false, nil)
		if err != nil {
			return fmt.Errorf("sync %s of %s: %w", f, owner.Key(), err)
		}
		keys = append(keys, k)
	}
	ds.Update(keys, int64(len(keys)))
	s.logger.Debug("collection synced", "owner", owner.Key().String(), "field", f.String(), "members", len(keys))
	return nil
}
