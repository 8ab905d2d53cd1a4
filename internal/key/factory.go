package key

import (
	"context"
	"fmt"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
)

// Factory builds keys. A nil cache disables interning.
type Factory struct {
	generators *Generators
	cache      *Cache
}

// NewFactory creates a factory drawing new keys from generators.
func NewFactory(generators *Generators, cache *Cache) *Factory {
	return &Factory{generators: generators, cache: cache}
}

// Cache returns the interning cache, or nil.
func (f *Factory) Cache() *Cache { return f.cache }

// Generators returns the generator registry.
func (f *Factory) Generators() *Generators { return f.generators }

// Materialize builds a key of type t from tuple. When keyIndexes is non-nil
// the key columns are picked from tuple at those indexes; otherwise tuple
// holds exactly the key columns.
//
// A leaf type of a single-type hierarchy always gets exact accuracy and is
// never cached. Other keys are interned when allowCache is set and accuracy
// is exact.
func (f *Factory) Materialize(t *schema.TypeInfo, tuple ir.Tuple, accuracy Accuracy, allowCache bool, keyIndexes []int) (Key, error) {
	var values ir.Tuple
	if keyIndexes != nil {
		for _, idx := range keyIndexes {
			if idx < 0 || idx >= len(tuple) {
				return nil, &ShapeError{Type: t.Name, Reason: fmt.Sprintf("key index %d outside tuple of width %d", idx, len(tuple))}
			}
		}
		values = tuple.Pick(keyIndexes)
	} else {
		values = tuple.Clone()
	}
	if err := validate(t, values); err != nil {
		return nil, err
	}
	if t.IsLeaf() && t.Hierarchy.IsSingleType() {
		accuracy = AccuracyExactType
		allowCache = false
	}
	k := newKey(header{typ: t, accuracy: accuracy, hash: HashValues(t.Hierarchy, values)}, values)
	if allowCache && accuracy == AccuracyExactType && f.cache != nil {
		return f.cache.Intern(k), nil
	}
	return k, nil
}

// Exact is Materialize with exact accuracy, caching and no key indexes.
func (f *Factory) Exact(t *schema.TypeInfo, values ir.Tuple) (Key, error) {
	return f.Materialize(t, values, AccuracyExactType, true, nil)
}

// Generate allocates a key for a new entity of type t from the generator
// the session mode selects. Generated keys are exact and uncached.
func (f *Factory) Generate(ctx context.Context, t *schema.TypeInfo) (Key, error) {
	gen, err := f.generators.For(t.Hierarchy)
	if err != nil {
		return nil, err
	}
	return f.generate(ctx, t, gen)
}

// GenerateDurable allocates a permanent key regardless of mode.
func (f *Factory) GenerateDurable(ctx context.Context, t *schema.TypeInfo) (Key, error) {
	gen, err := f.generators.Durable(t.Hierarchy)
	if err != nil {
		return nil, err
	}
	return f.generate(ctx, t, gen)
}

func (f *Factory) generate(ctx context.Context, t *schema.TypeInfo, gen Generator) (Key, error) {
	values, err := gen.Next(ctx, t.Key())
	if err != nil {
		return nil, fmt.Errorf("generate key for %s: %w", t.Name, err)
	}
	if err := validate(t, values); err != nil {
		return nil, err
	}
	h := header{typ: t, accuracy: AccuracyExactType, temporary: gen.Temporary(), hash: HashValues(t.Hierarchy, values)}
	return newKey(h, values), nil
}

// Narrow returns k with exact type t. t must belong to k's hierarchy.
func Narrow(k Key, t *schema.TypeInfo) (Key, error) {
	if t.Hierarchy != k.Hierarchy() {
		return nil, &ShapeError{Type: t.Name, Reason: fmt.Sprintf("key %s belongs to another hierarchy", k)}
	}
	if k.Accuracy() == AccuracyExactType && k.Type() == t {
		return k, nil
	}
	return withType(k, t), nil
}

func validate(t *schema.TypeInfo, values ir.Tuple) error {
	info := t.Key()
	if len(values) != info.Arity() {
		return &ShapeError{Type: t.Name, Reason: fmt.Sprintf("expected %d values, got %d", info.Arity(), len(values))}
	}
	for i, c := range info.Columns {
		v := values[i]
		if ir.IsNull(v) {
			return &ShapeError{Type: t.Name, Reason: fmt.Sprintf("column %q is null", c.Name)}
		}
		if v.Kind() != c.Kind {
			return &ShapeError{Type: t.Name, Reason: fmt.Sprintf("column %q expects %s, got %s", c.Name, c.Kind, v.Kind())}
		}
	}
	return nil
}
