package persist

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/state"
)

// ActionKind is the write an action performs.
type ActionKind uint8

const (
	Insert ActionKind = iota
	Update
	Remove
)

func (k ActionKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("action_kind(%d)", uint8(k))
	}
}

// ParseActionKind resolves "insert", "update" or "remove".
func ParseActionKind(s string) (ActionKind, error) {
	switch s {
	case "insert":
		return Insert, nil
	case "update":
		return Update, nil
	case "remove":
		return Remove, nil
	default:
		return 0, fmt.Errorf("unknown action kind %q", s)
	}
}

// Action is one write against one entity.
type Action struct {
	State *state.EntityState
	Kind  ActionKind

	// Values is the full tuple to write for inserts and updates, and the
	// key values for removes.
	Values ir.Tuple

	// Columns lists the tuple indexes an update writes. Nil for inserts
	// and removes.
	Columns []int

	// Compensation marks an update that restores, or a pre-delete update
	// that clears, a reference broken to order a cycle.
	Compensation bool
}

func (a Action) String() string {
	var b strings.Builder
	b.WriteString(a.Kind.String())
	b.WriteByte(' ')
	b.WriteString(a.State.Key().String())
	if a.Kind == Update {
		fmt.Fprintf(&b, " columns=%v", a.Columns)
	}
	if a.Compensation {
		b.WriteString(" compensation")
	}
	return b.String()
}

// Executor applies an ordered plan to storage. A failed Execute must leave
// storage unchanged.
type Executor interface {
	Execute(ctx context.Context, actions []Action) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, actions []Action) error

func (f ExecutorFunc) Execute(ctx context.Context, actions []Action) error {
	return f(ctx, actions)
}

// Discard is an Executor that accepts every plan and writes nothing.
var Discard Executor = ExecutorFunc(func(context.Context, []Action) error { return nil })

// Generator produces the ordered plan for a registry.
type Generator interface {
	Generate(reg *state.Registry) ([]Action, error)
}

// Stats summarizes a plan.
type Stats struct {
	Inserts       int
	Updates       int
	Removes       int
	Compensations int
}

// Summarize counts a plan's actions by kind.
func Summarize(actions []Action) Stats {
	var s Stats
	for _, a := range actions {
		switch a.Kind {
		case Insert:
			s.Inserts++
		case Update:
			s.Updates++
		case Remove:
			s.Removes++
		}
		if a.Compensation {
			s.Compensations++
		}
	}
	return s
}

func insertAction(s *state.EntityState) Action {
	return Action{State: s, Kind: Insert, Values: s.Snapshot()}
}

func updateAction(s *state.EntityState) Action {
	return Action{State: s, Kind: Update, Values: s.Snapshot(), Columns: s.Tuple().ChangedColumns()}
}

func removeAction(s *state.EntityState) Action {
	return Action{State: s, Kind: Remove, Values: s.Key().Values()}
}
