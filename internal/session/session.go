package session

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/uow/internal/delta"
	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/persist"
	"github.com/roach88/uow/internal/pin"
	"github.com/roach88/uow/internal/refs"
	"github.com/roach88/uow/internal/remap"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

type collectionSlot struct {
	owner *state.EntityState
	field *schema.FieldInfo
}

// Session is a unit of work over one model.
type Session struct {
	model   *schema.Model
	mode    key.Mode
	sorted  bool
	cache   *key.Cache
	named   map[string]key.Generator
	factory *key.Factory

	identity  *key.Map[*state.EntityState]
	registry  *state.Registry
	pinner    *pin.Pinner
	changes   *refs.FieldChanges
	tracker   *refs.Tracker
	remapper  *remap.Remapper
	generator persist.Generator
	executor  persist.Executor
	reader    Reader

	collections   map[collectionSlot]*delta.State
	collectionCap int
	transactional bool

	metrics *Metrics
	logger  *slog.Logger
	clock   *Clock
}

// New creates a session for m.
func New(m *schema.Model, opts ...Option) (*Session, error) {
	s := &Session{
		model:         m,
		mode:          key.ModeDurable,
		sorted:        true,
		named:         make(map[string]key.Generator),
		identity:      key.NewMap[*state.EntityState](),
		registry:      state.NewRegistry(),
		pinner:        pin.New(),
		changes:       refs.NewFieldChanges(),
		tracker:       refs.NewTracker(),
		executor:      persist.Discard,
		collections:   make(map[collectionSlot]*delta.State),
		collectionCap: delta.DefaultCapacity,
		transactional: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = NewClock()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.cache == nil {
		c, err := key.NewCache(key.DefaultCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create key cache: %w", err)
		}
		s.cache = c
	}

	gens := key.NewGenerators(s.mode)
	for name, gen := range s.named {
		gens.RegisterNamed(name, gen)
	}
	s.factory = key.NewFactory(gens, s.cache)
	s.remapper = remap.New(s.factory, s.changes, s.lookup, s.logger)
	if s.sorted {
		s.generator = persist.NewSortingGenerator(s.logger)
	} else {
		s.generator = persist.PlainGenerator{}
	}
	return s, nil
}

// Model returns the session's model.
func (s *Session) Model() *schema.Model { return s.model }

// Factory returns the key factory.
func (s *Session) Factory() *key.Factory { return s.factory }

// Registry returns the change registry. Callers must not register states
// directly.
func (s *Session) Registry() *state.Registry { return s.registry }

// Tracker returns the reference-change tracker.
func (s *Session) Tracker() *refs.Tracker { return s.tracker }

// Clock returns the flush clock.
func (s *Session) Clock() *Clock { return s.clock }

// Entities yields every tracked state in tracking order.
func (s *Session) Entities() iter.Seq[*state.EntityState] {
	return func(yield func(*state.EntityState) bool) {
		for _, st := range s.identity.All() {
			if !yield(st) {
				return
			}
		}
	}
}

// Find returns the tracked state of type t (or a subtype) with the given
// key values.
func (s *Session) Find(t *schema.TypeInfo, keyValues ir.Tuple) (*state.EntityState, bool) {
	_, st, ok := s.identity.Lookup(t.Hierarchy, keyValues)
	if !ok || !st.Type().IsSubtypeOf(t) {
		return nil, false
	}
	return st, true
}

func (s *Session) lookup(k key.Key) *state.EntityState {
	if k == nil {
		return nil
	}
	st, _ := s.identity.Get(k)
	return st
}

// Create tracks a new entity of type t with a generated key. In temporary
// key mode the key is replaced at flush.
func (s *Session) Create(ctx context.Context, t *schema.TypeInfo) (*state.EntityState, error) {
	if t.Auxiliary {
		return nil, fmt.Errorf("create %s: link entities are managed through collections", t.Name)
	}
	k, err := s.factory.Generate(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", t.Name, err)
	}
	return s.track(k)
}

// CreateWithKey tracks a new entity of type t with caller-chosen key
// values. Recreating a removed entity revives its tracked state.
func (s *Session) CreateWithKey(t *schema.TypeInfo, keyValues ir.Tuple) (*state.EntityState, error) {
	if t.Auxiliary {
		return nil, fmt.Errorf("create %s: link entities are managed through collections", t.Name)
	}
	k, err := s.factory.Materialize(t, keyValues, key.AccuracyExactType, true, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", t.Name, err)
	}
	return s.track(k)
}

func (s *Session) track(k key.Key) (*state.EntityState, error) {
	if existing := s.lookup(k); existing != nil {
		if existing.PersistenceState() != state.Removed || existing.Type() != k.Type() {
			return nil, fmt.Errorf("create %s: %w", k, ErrDuplicateKey)
		}
		existing.SetPersistenceState(state.New)
		s.registry.Register(existing)
		return existing, nil
	}
	st, err := state.NewEntityState(k, nil, state.New)
	if err != nil {
		return nil, err
	}
	s.identity.Set(k, st)
	s.registry.Register(st)
	return st, nil
}

// Materialize tracks a stored row of exact type t. When the entity is
// already tracked its state is returned unchanged.
func (s *Session) Materialize(t *schema.TypeInfo, tuple ir.Tuple) (*state.EntityState, error) {
	k, err := s.factory.Materialize(t, tuple, key.AccuracyExactType, true, keyIndexes(t))
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", t.Name, err)
	}
	if existing := s.lookup(k); existing != nil {
		return existing, nil
	}
	st, err := state.NewEntityState(k, tuple, state.Synchronized)
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", t.Name, err)
	}
	s.identity.Set(k, st)
	return st, nil
}

func keyIndexes(t *schema.TypeInfo) []int {
	out := make([]int, t.Key().Arity())
	for i := range out {
		out[i] = i
	}
	return out
}

// Get returns the entity of type t with the given key values, loading it
// through the Reader when it is not tracked. A removed entity is not found.
func (s *Session) Get(ctx context.Context, t *schema.TypeInfo, keyValues ir.Tuple) (*state.EntityState, error) {
	if st, ok := s.Find(t, keyValues); ok {
		if st.PersistenceState() == state.Removed {
			return nil, fmt.Errorf("get %s %v: %w", t.Name, keyValues, ErrNotFound)
		}
		return st, nil
	}
	if _, _, tracked := s.identity.Lookup(t.Hierarchy, keyValues); tracked || s.reader == nil {
		return nil, fmt.Errorf("get %s %v: %w", t.Name, keyValues, ErrNotFound)
	}
	typ, tuple, err := s.reader.Load(ctx, t, keyValues)
	if err != nil {
		return nil, fmt.Errorf("get %s %v: %w", t.Name, keyValues, err)
	}
	return s.Materialize(typ, tuple)
}

// Set assigns a value field.
func (s *Session) Set(st *state.EntityState, name string, v ir.Value) error {
	f, err := s.mutableField(st, name)
	if err != nil {
		return err
	}
	if f.Kind != schema.FieldValue {
		return fmt.Errorf("set %s: %s is a %s field", st.Key(), f, f.Kind)
	}
	if err := st.SetField(f, ir.Tuple{v}); err != nil {
		return fmt.Errorf("set %s: %w", st.Key(), err)
	}
	s.touch(st)
	return nil
}

// SetReference points a reference field at target. A nil target clears it.
func (s *Session) SetReference(st *state.EntityState, name string, target *state.EntityState) error {
	f, err := s.mutableField(st, name)
	if err != nil {
		return err
	}
	if f.Kind != schema.FieldReference {
		return fmt.Errorf("set %s: %s is a %s field", st.Key(), f, f.Kind)
	}
	if target != nil {
		if err := s.checkMutable(target); err != nil {
			return fmt.Errorf("set %s: target: %w", f, err)
		}
	}
	return s.setReference(st, f, target)
}

func (s *Session) setReference(st *state.EntityState, f *schema.FieldInfo, target *state.EntityState) error {
	oldKey, err := st.ReferenceKey(f, s.factory)
	if err != nil {
		return fmt.Errorf("set %s: %w", f, err)
	}
	var newKey key.Key
	if target != nil {
		newKey = target.Key()
	}
	if oldKey == nil && newKey == nil || oldKey != nil && newKey != nil && oldKey.Equal(newKey) {
		return nil
	}
	if err := st.SetReferenceKey(f, newKey); err != nil {
		return fmt.Errorf("set %s: %w", st.Key(), err)
	}

	a := f.Association
	oldTarget := s.lookup(oldKey)
	if err := s.tracker.RegisterChange(target, st, oldTarget, a); err != nil {
		return err
	}
	s.changes.Register(st.Key(), f, oldKey, newKey)

	if a.Reversed != nil && a.Reversed.OwnerField.Kind == schema.FieldCollection {
		inverse := a.Reversed.OwnerField
		if ds := s.collections[collectionSlot{oldTarget, inverse}]; ds != nil && oldTarget != nil {
			ds.Remove(st.Key())
		}
		if ds := s.collections[collectionSlot{target, inverse}]; ds != nil && target != nil {
			ds.Add(st.Key())
		}
	}
	s.touch(st)
	return nil
}

// touch registers st after a field change. A Modified entity whose
// changes were all undone is Synchronized again.
func (s *Session) touch(st *state.EntityState) {
	switch st.PersistenceState() {
	case state.Synchronized:
		if st.HasDifference() {
			st.SetPersistenceState(state.Modified)
			s.registry.Register(st)
		}
	case state.Modified:
		if !st.HasDifference() {
			st.SetPersistenceState(state.Synchronized)
			s.registry.Register(st)
		}
	}
}

// Remove marks st for deletion. Tracked entities that reference st through
// a nullable reference are set to null; a non-nullable one fails with
// ErrReferencedEntity and nothing changes. Removing a New entity forgets
// it entirely.
func (s *Session) Remove(st *state.EntityState) error {
	if err := s.checkTracked(st); err != nil {
		return err
	}
	if st.PersistenceState() == state.Removed {
		return nil
	}
	if st.Type().Auxiliary {
		return fmt.Errorf("remove %s: link entities are managed through collections", st.Key())
	}

	type referrer struct {
		state *state.EntityState
		field *schema.FieldInfo
	}
	var nulls []referrer
	for _, a := range st.Type().TargetAssociations() {
		if !a.IsReference() {
			continue
		}
		for _, r := range s.tracker.AddedReferencesTo(st, a) {
			if r == st || r.PersistenceState() == state.Removed || !r.Field(a.OwnerField).Equal(st.Key().Values()) {
				continue
			}
			if !a.OwnerField.Nullable {
				return fmt.Errorf("remove %s: %s references it through %s: %w", st.Key(), r.Key(), a.OwnerField, ErrReferencedEntity)
			}
			nulls = append(nulls, referrer{r, a.OwnerField})
		}
	}
	for _, n := range nulls {
		if err := s.setReference(n.state, n.field, nil); err != nil {
			return fmt.Errorf("remove %s: %w", st.Key(), err)
		}
	}

	s.detach(st)

	wasNew := st.PersistenceState() == state.New
	st.SetPersistenceState(state.Removed)
	s.registry.Register(st)
	if wasNew {
		s.forget(st)
	}
	s.logger.Debug("entity removed", "key", st.Key().String(), "was_new", wasNew)
	return nil
}

// detach takes st out of the collections it is a member of and drops
// unflushed links that name it.
func (s *Session) detach(st *state.EntityState) {
	for _, f := range st.Type().Fields() {
		if f.Kind != schema.FieldReference || f.Association == nil || f.Association.Reversed == nil {
			continue
		}
		owner := s.lookup(keyOrNil(st.ReferenceKey(f, s.factory)))
		if ds := s.collections[collectionSlot{owner, f.Association.Reversed.OwnerField}]; ds != nil && owner != nil {
			ds.Remove(st.Key())
		}
	}

	var links []*state.EntityState
	for _, link := range s.identity.All() {
		if !link.Type().Auxiliary || link.PersistenceState() != state.New {
			continue
		}
		for _, name := range []string{"owner", "target"} {
			f, _ := link.Type().Field(name)
			if f.Target.Hierarchy == st.Key().Hierarchy() && link.Field(f).Equal(st.Key().Values()) {
				links = append(links, link)
				break
			}
		}
	}
	for _, link := range links {
		link.SetPersistenceState(state.Removed)
		s.registry.Register(link)
		s.forget(link)
	}
}

func keyOrNil(k key.Key, err error) key.Key {
	if err != nil {
		return nil
	}
	return k
}

// forget drops st from the identity map with the collections it owns.
func (s *Session) forget(st *state.EntityState) {
	if s.lookup(st.Key()) == st {
		s.identity.Delete(st.Key())
	}
	for slot := range s.collections {
		if slot.owner == st {
			delete(s.collections, slot)
		}
	}
}

// Pin protects st, and New entities that reference it, from flushes until
// the returned root is released.
func (s *Session) Pin(st *state.EntityState) *pin.Root {
	return s.pinner.RegisterRoot(st)
}

func (s *Session) checkTracked(st *state.EntityState) error {
	if st == nil || s.lookup(st.Key()) != st {
		return ErrNotTracked
	}
	return nil
}

func (s *Session) checkMutable(st *state.EntityState) error {
	if err := s.checkTracked(st); err != nil {
		return err
	}
	if st.PersistenceState() == state.Removed {
		return fmt.Errorf("%s: %w", st.Key(), ErrRemoved)
	}
	return nil
}

func (s *Session) mutableField(st *state.EntityState, name string) (*schema.FieldInfo, error) {
	if err := s.checkMutable(st); err != nil {
		return nil, err
	}
	f, ok := st.Type().Field(name)
	if !ok {
		return nil, fmt.Errorf("%s has no field %q", st.Type().Name, name)
	}
	return f, nil
}
