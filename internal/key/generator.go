package key

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
)

// Generator allocates key values for new entities.
type Generator interface {
	// Next returns a fresh value tuple for info. Implementations may block
	// on storage.
	Next(ctx context.Context, info *schema.KeyInfo) (ir.Tuple, error)

	// Temporary reports whether generated keys must be replaced by durable
	// ones before they reach storage.
	Temporary() bool
}

// TemporaryGenerator hands out placeholder keys that are never persisted.
// Int columns count down from -1, string columns read "tmp-N" and uuid
// columns get a random v4 uuid. Counters are per key.
type TemporaryGenerator struct {
	mu       sync.Mutex
	counters map[*schema.KeyInfo]int64
}

// NewTemporaryGenerator returns a generator with all counters at zero.
func NewTemporaryGenerator() *TemporaryGenerator {
	return &TemporaryGenerator{counters: make(map[*schema.KeyInfo]int64)}
}

func (g *TemporaryGenerator) Temporary() bool { return true }

func (g *TemporaryGenerator) Next(_ context.Context, info *schema.KeyInfo) (ir.Tuple, error) {
	g.mu.Lock()
	g.counters[info]++
	n := g.counters[info]
	g.mu.Unlock()

	out := make(ir.Tuple, info.Arity())
	for i, c := range info.Columns {
		switch c.Kind {
		case ir.KindInt:
			out[i] = ir.Int(-n)
		case ir.KindString:
			out[i] = ir.String(fmt.Sprintf("tmp-%d", n))
		case ir.KindUUID:
			out[i] = ir.UUID(uuid.New())
		default:
			return nil, &ConfigError{Hierarchy: info.Name, Reason: fmt.Sprintf("cannot generate temporary %s column %q", c.Kind, c.Name)}
		}
	}
	return out, nil
}

// UUIDGenerator allocates durable v7 uuids. Every key column must be a
// uuid column.
type UUIDGenerator struct{}

func (UUIDGenerator) Temporary() bool { return false }

func (UUIDGenerator) Next(_ context.Context, info *schema.KeyInfo) (ir.Tuple, error) {
	out := make(ir.Tuple, info.Arity())
	for i, c := range info.Columns {
		if c.Kind != ir.KindUUID {
			return nil, &ConfigError{Hierarchy: info.Name, Reason: fmt.Sprintf("uuid generator cannot fill %s column %q", c.Kind, c.Name)}
		}
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate uuid: %w", err)
		}
		out[i] = ir.UUID(id)
	}
	return out, nil
}

// Mode selects which generator new entities get their keys from.
type Mode uint8

const (
	// ModeDurable assigns permanent keys at creation.
	ModeDurable Mode = iota
	// ModeTemporary assigns placeholder keys and remaps them at flush.
	ModeTemporary
)

func (m Mode) String() string {
	if m == ModeTemporary {
		return "temporary"
	}
	return "durable"
}

// ParseMode resolves "durable" or "temporary". Empty means durable.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "durable":
		return ModeDurable, nil
	case "temporary":
		return ModeTemporary, nil
	default:
		return ModeDurable, fmt.Errorf("unknown key mode %q", s)
	}
}

// Generators maps hierarchies to their durable generators and picks the
// generator for new keys according to the mode.
type Generators struct {
	mu        sync.RWMutex
	mode      Mode
	named     map[string]Generator
	durable   map[*schema.Hierarchy]Generator
	temporary Generator
}

// NewGenerators creates an empty registry. The "uuid" name is registered.
func NewGenerators(mode Mode) *Generators {
	return &Generators{
		mode:      mode,
		named:     map[string]Generator{"uuid": UUIDGenerator{}},
		durable:   make(map[*schema.Hierarchy]Generator),
		temporary: NewTemporaryGenerator(),
	}
}

// Mode returns the configured mode.
func (g *Generators) Mode() Mode { return g.mode }

// RegisterNamed makes gen available to hierarchies whose key names it.
func (g *Generators) RegisterNamed(name string, gen Generator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.named[name] = gen
}

// Register binds gen to h, overriding the key's named generator.
func (g *Generators) Register(h *schema.Hierarchy, gen Generator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.durable[h] = gen
}

// Durable returns the permanent generator of h.
func (g *Generators) Durable(h *schema.Hierarchy) (Generator, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if gen, ok := g.durable[h]; ok {
		return gen, nil
	}
	if h.Key.Generator == "" {
		return nil, &ConfigError{Hierarchy: h.Name(), Reason: "no key generator configured"}
	}
	gen, ok := g.named[h.Key.Generator]
	if !ok {
		return nil, &ConfigError{Hierarchy: h.Name(), Reason: fmt.Sprintf("unknown key generator %q", h.Key.Generator)}
	}
	if gen.Temporary() {
		return nil, &ConfigError{Hierarchy: h.Name(), Reason: fmt.Sprintf("key generator %q is not durable", h.Key.Generator)}
	}
	return gen, nil
}

// For returns the generator new keys of h come from under the current
// mode. Temporary mode still requires a durable generator to remap to.
func (g *Generators) For(h *schema.Hierarchy) (Generator, error) {
	durable, err := g.Durable(h)
	if err != nil {
		return nil, err
	}
	if g.mode == ModeTemporary {
		return g.temporary, nil
	}
	return durable, nil
}
