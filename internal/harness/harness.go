package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/uow/internal/compiler"
	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/pin"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/session"
	"github.com/roach88/uow/internal/state"
	"github.com/roach88/uow/internal/store"
)

// Option configures Run.
type Option func(*config)

type config struct {
	database string
	logger   *slog.Logger
}

// WithDatabase runs the scenario against the SQLite file at path instead
// of a fresh in-memory database.
func WithDatabase(path string) Option {
	return func(c *config) {
		c.database = path
	}
}

// WithLogger sets the logger handed to the session.
//
// Default: a logger that discards everything
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Harness executes the steps of one scenario against one session.
type Harness struct {
	model    *schema.Model
	store    *store.Store
	session  *session.Session
	entities map[string]*state.EntityState
	roots    map[string]*pin.Root
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load the scenario's CUE model
//  2. Open the store, in memory unless WithDatabase is given
//  3. Run the steps in order, stopping at the first unexpected error
//  4. Evaluate the assertions
//
// The returned error reports a scenario that could not be set up. Step
// and assertion failures are reported through the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &config{database: ":memory:"}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	m, err := compiler.LoadModel(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	st, err := store.Open(cfg.database, m)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	mode := key.ModeDurable
	if scenario.KeyMode == "temporary" {
		mode = key.ModeTemporary
	}
	sorted := scenario.Sorted == nil || *scenario.Sorted

	sess, err := session.New(m,
		session.WithExecutor(st),
		session.WithReader(st),
		session.WithGenerator("sequence", st.Sequence()),
		session.WithKeyMode(mode),
		session.WithSortedActions(sorted),
		session.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	h := &Harness{
		model:    m,
		store:    st,
		session:  sess,
		entities: make(map[string]*state.EntityState),
		roots:    make(map[string]*pin.Root),
		logger:   cfg.logger.With("scenario", scenario.Name),
	}

	result := NewResult()
	h.runSteps(ctx, scenario.Steps, result)

	actx := &AssertionContext{
		Ctx:      ctx,
		Store:    st,
		Model:    m,
		Entities: h.entities,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		err := h.execute(ctx, i, step, result)
		switch {
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error %q, got none", i, step.Do, step.ExpectError))
			return
		case step.ExpectError != "" && !errorMatches(err, step.ExpectError):
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error %q, got: %v", i, step.Do, step.ExpectError, err))
			return
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Do, err))
			return
		}
		h.logger.Debug("step completed", "step", i, "do", step.Do)
	}
}

func errorMatches(err error, want string) bool {
	if want == "any" {
		return true
	}
	var fe *session.FlushError
	if errors.As(err, &fe) && string(fe.Code) == want {
		return true
	}
	return strings.Contains(err.Error(), want)
}

func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) error {
	switch step.Do {
	case OpCreate:
		return h.create(ctx, step)
	case OpGet:
		return h.get(ctx, step)
	case OpSet:
		st, err := h.entity(step.Entity)
		if err != nil {
			return err
		}
		return h.set(st, step.Field, step.Value)
	case OpRef:
		st, err := h.entity(step.Entity)
		if err != nil {
			return err
		}
		var target *state.EntityState
		if step.Target != "" {
			if target, err = h.entity(step.Target); err != nil {
				return err
			}
		}
		return h.session.SetReference(st, step.Field, target)
	case OpRemove:
		st, err := h.entity(step.Entity)
		if err != nil {
			return err
		}
		return h.session.Remove(st)
	case OpAdd, OpDrop:
		owner, err := h.entity(step.Entity)
		if err != nil {
			return err
		}
		item, err := h.entity(step.Item)
		if err != nil {
			return err
		}
		if step.Do == OpAdd {
			_, err = h.session.AddItem(owner, step.Field, item)
		} else {
			_, err = h.session.RemoveItem(owner, step.Field, item)
		}
		return err
	case OpPin:
		st, err := h.entity(step.Entity)
		if err != nil {
			return err
		}
		h.roots[step.Entity] = h.session.Pin(st)
		return nil
	case OpUnpin:
		root, ok := h.roots[step.Entity]
		if !ok {
			return fmt.Errorf("entity %q is not pinned", step.Entity)
		}
		root.Release()
		delete(h.roots, step.Entity)
		return nil
	case OpFlush:
		return h.flush(ctx, i, result)
	case OpRollback:
		h.session.Rollback()
		return nil
	default:
		return fmt.Errorf("unknown operation %q", step.Do)
	}
}

func (h *Harness) create(ctx context.Context, step Step) error {
	t, err := h.typ(step.Type)
	if err != nil {
		return err
	}

	var st *state.EntityState
	if len(step.Key) > 0 {
		values, err := keyTuple(t, step.Key)
		if err != nil {
			return err
		}
		st, err = h.session.CreateWithKey(t, values)
		if err != nil {
			return err
		}
	} else {
		st, err = h.session.Create(ctx, t)
		if err != nil {
			return err
		}
	}
	h.entities[step.As] = st

	for _, name := range sortedKeys(step.Values) {
		if err := h.set(st, name, step.Values[name]); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) get(ctx context.Context, step Step) error {
	t, err := h.typ(step.Type)
	if err != nil {
		return err
	}
	values, err := keyTuple(t, step.Key)
	if err != nil {
		return err
	}
	st, err := h.session.Get(ctx, t, values)
	if err != nil {
		return err
	}
	h.entities[step.As] = st
	return nil
}

func (h *Harness) set(st *state.EntityState, name string, raw any) error {
	f, ok := st.Type().Field(name)
	if !ok {
		return fmt.Errorf("%s has no field %q", st.Type().Name, name)
	}
	if f.Kind != schema.FieldValue || f.Length() != 1 {
		return fmt.Errorf("field %s is not a single-column value field", f)
	}
	v, err := ir.FromAny(raw, f.Columns[0].Kind)
	if err != nil {
		return fmt.Errorf("field %s: %w", f, err)
	}
	return h.session.Set(st, name, v)
}

func (h *Harness) flush(ctx context.Context, i int, result *Result) error {
	res, err := h.session.Flush(ctx)
	if err != nil {
		trace := FlushTrace{Step: i, Actions: []string{}, Error: "FAILED"}
		var fe *session.FlushError
		if errors.As(err, &fe) {
			trace.Seq = fe.Seq
			trace.Error = string(fe.Code)
		}
		result.Flushes = append(result.Flushes, trace)
		return err
	}

	trace := FlushTrace{
		Step:          i,
		Seq:           res.Seq,
		Actions:       make([]string, len(res.Actions)),
		Compensations: res.Stats.Compensations,
		Remapped:      res.Remapped,
		Pinned:        res.Pinned,
	}
	for j, a := range res.Actions {
		trace.Actions[j] = a.String()
	}
	result.Flushes = append(result.Flushes, trace)
	return nil
}

func (h *Harness) entity(alias string) (*state.EntityState, error) {
	st, ok := h.entities[alias]
	if !ok {
		return nil, fmt.Errorf("unknown entity alias %q", alias)
	}
	return st, nil
}

func (h *Harness) typ(name string) (*schema.TypeInfo, error) {
	t, ok := h.model.Type(name)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	return t, nil
}

// keyTuple converts YAML key values to the key columns of t.
func keyTuple(t *schema.TypeInfo, raw []any) (ir.Tuple, error) {
	cols := t.Key().Columns
	if len(raw) != len(cols) {
		return nil, fmt.Errorf("%s key has %d columns, got %d values", t.Name, len(cols), len(raw))
	}
	values := make(ir.Tuple, len(cols))
	for i, c := range cols {
		v, err := ir.FromAny(raw[i], c.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s key column %s: %w", t.Name, c.Name, err)
		}
		values[i] = v
	}
	return values, nil
}
