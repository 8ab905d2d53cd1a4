package remap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/refs"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

// Resolver finds the tracked state of a key, or nil.
type Resolver func(k key.Key) *state.EntityState

// Remapper allocates durable keys for temporary ones and fixes the
// recorded references.
type Remapper struct {
	factory *key.Factory
	changes *refs.FieldChanges
	resolve Resolver
	logger  *slog.Logger
}

// New creates a remapper over the session's reference changes.
func New(factory *key.Factory, changes *refs.FieldChanges, resolve Resolver, logger *slog.Logger) *Remapper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Remapper{factory: factory, changes: changes, resolve: resolve, logger: logger}
}

// Remap runs one pass over reg:
//  1. every New state with a temporary key gets a durable key
//  2. every recorded reference change is resolved through the mapping;
//     scalar references are rewritten on the owner state, many-to-many
//     changes map the auxiliary entity's combined key
//  3. the change registry is cleared, keeping only changes whose ends are
//     still temporary because their entities were withheld from this pass
//
// The returned mapping has not been applied to any state.
func (r *Remapper) Remap(ctx context.Context, reg *state.Registry) (*KeyMapping, error) {
	rc := NewContext()
	for s := range reg.Items(state.New) {
		if !s.Key().IsTemporary() {
			continue
		}
		durable, err := r.factory.GenerateDurable(ctx, s.Type())
		if err != nil {
			return nil, err
		}
		rc.Register(s.Key(), durable)
	}

	var retained []refs.FieldChange
	for _, ch := range r.changes.Items() {
		owner, target := rc.TryRemap(ch.Owner), rc.TryRemap(ch.New)
		switch ch.Field.Kind {
		case schema.FieldReference:
			if err := r.rewriteReference(ch, target); err != nil {
				return nil, err
			}
		case schema.FieldCollection:
			if err := r.remapAuxiliary(rc, ch, owner, target); err != nil {
				return nil, err
			}
		}
		if owner.IsTemporary() || target != nil && target.IsTemporary() {
			retained = append(retained, refs.FieldChange{Owner: owner, Field: ch.Field, Old: rc.TryRemap(ch.Old), New: target})
		}
	}

	r.changes.Clear()
	for _, ch := range retained {
		r.changes.Register(ch.Owner, ch.Field, ch.Old, ch.New)
	}

	mapping := rc.Finalize()
	if mapping.Len() > 0 {
		r.logger.Debug("remapped temporary keys", "count", mapping.Len(), "retained_changes", len(retained))
	}
	return mapping, nil
}

func (r *Remapper) rewriteReference(ch refs.FieldChange, target key.Key) error {
	if ch.New == nil || target == ch.New {
		return nil
	}
	owner := r.resolve(ch.Owner)
	if owner == nil {
		return nil
	}
	// Only rewrite when the owner still points at the recorded target.
	if !owner.Field(ch.Field).Equal(ch.New.Values()) {
		return nil
	}
	if err := owner.SetReferenceKey(ch.Field, target); err != nil {
		return fmt.Errorf("remap %s of %s: %w", ch.Field, ch.Owner, err)
	}
	return nil
}

func (r *Remapper) remapAuxiliary(rc *Context, ch refs.FieldChange, owner, target key.Key) error {
	aux := ch.Field.Association.Auxiliary
	if aux == nil || ch.New == nil {
		return nil
	}
	oldKey, err := r.factory.Materialize(aux, ch.Owner.Values().Concat(ch.New.Values()), key.AccuracyExactType, false, nil)
	if err != nil {
		return err
	}
	newKey, err := r.factory.Materialize(aux, owner.Values().Concat(target.Values()), key.AccuracyExactType, false, nil)
	if err != nil {
		return err
	}
	if !oldKey.Equal(newKey) {
		rc.Register(oldKey, newKey)
	}
	return nil
}
