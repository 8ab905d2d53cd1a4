package persist

import (
	"log/slog"
	"slices"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

// SortingGenerator orders inserts and removes by reference dependencies.
//
// Inserts come referenced-first, so a row's targets exist before it does.
// Removes come referencer-first. States whose type takes part in no
// reference association skip the graph: they are inserted first and
// removed last. A cycle is broken by writing null into one reference of
// the cycle, preferring a nullable one, and restoring it with a
// compensating update after all inserts. For removes the broken reference
// is cleared by an update before any remove.
type SortingGenerator struct {
	logger *slog.Logger
}

// NewSortingGenerator creates a sorting generator. A nil logger discards.
func NewSortingGenerator(logger *slog.Logger) *SortingGenerator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SortingGenerator{logger: logger}
}

// restoration records a reference nulled to break a cycle.
type restoration struct {
	state    *state.EntityState
	field    *schema.FieldInfo
	original ir.Tuple
}

func (g *SortingGenerator) Generate(reg *state.Registry) ([]Action, error) {
	actions := make([]Action, 0, reg.Count())
	actions = append(actions, g.insertSequence(slices.Collect(reg.Items(state.New)))...)
	for s := range reg.Items(state.Modified) {
		actions = append(actions, updateAction(s))
	}
	actions = append(actions, g.removeSequence(slices.Collect(reg.Items(state.Removed)))...)
	return actions, nil
}

func (g *SortingGenerator) insertSequence(states []*state.EntityState) []Action {
	if len(states) == 0 {
		return nil
	}
	gr, bypassed := buildGraph(states, (*state.EntityState).Field)
	order, broken, forced := gr.sort()
	g.logBroken("insert", gr, broken, forced)

	restores := make([]restoration, 0, len(broken))
	for _, ei := range broken {
		e := gr.edges[ei]
		s := gr.nodes[e.from]
		restores = append(restores, restoration{state: s, field: e.field, original: s.Field(e.field)})
		for _, idx := range e.field.Indexes() {
			s.Tuple().Set(idx, ir.Null{})
		}
	}

	actions := make([]Action, 0, len(states)+len(broken))
	for _, s := range bypassed {
		actions = append(actions, insertAction(s))
	}
	for i := len(order) - 1; i >= 0; i-- {
		actions = append(actions, insertAction(gr.nodes[order[i]]))
	}

	for _, r := range restores {
		for i, idx := range r.field.Indexes() {
			r.state.Tuple().Set(idx, r.original[i])
		}
	}
	for _, r := range restores {
		actions = append(actions, Action{
			State:        r.state,
			Kind:         Update,
			Values:       r.state.Snapshot(),
			Columns:      r.field.Indexes(),
			Compensation: true,
		})
	}
	return actions
}

// removeSequence orders by the references storage currently holds, so
// pending differences of removed states are ignored. Clearing updates carry
// their own values and leave the states untouched.
func (g *SortingGenerator) removeSequence(states []*state.EntityState) []Action {
	if len(states) == 0 {
		return nil
	}
	gr, bypassed := buildGraph(states, (*state.EntityState).OriginalField)
	order, broken, forced := gr.sort()
	g.logBroken("remove", gr, broken, forced)

	actions := make([]Action, 0, len(states)+len(broken))
	for _, ei := range broken {
		e := gr.edges[ei]
		s := gr.nodes[e.from]
		values := s.Tuple().Original()
		for _, idx := range e.field.Indexes() {
			values[idx] = ir.Null{}
		}
		actions = append(actions, Action{
			State:        s,
			Kind:         Update,
			Values:       values,
			Columns:      e.field.Indexes(),
			Compensation: true,
		})
	}
	for _, n := range order {
		actions = append(actions, removeAction(gr.nodes[n]))
	}
	for _, s := range bypassed {
		actions = append(actions, removeAction(s))
	}
	return actions
}

func (g *SortingGenerator) logBroken(phase string, gr *graph, broken []int, forced int) {
	for _, ei := range broken {
		e := gr.edges[ei]
		attrs := []any{
			"phase", phase,
			"field", e.field.String(),
			"from", gr.nodes[e.from].Key().String(),
			"to", gr.nodes[e.to].Key().String(),
		}
		if e.nullable() {
			g.logger.Debug("broke reference cycle", attrs...)
		} else {
			g.logger.Warn("broke non-nullable reference to order a cycle", attrs...)
		}
	}
	if forced > 0 {
		g.logger.Warn("cycle required breaking non-nullable references", "phase", phase, "count", forced)
	}
}
