package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
	"github.com/roach88/uow/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Actions  []string // Actions of the inspected flush, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Actions) > 0 {
		buf.WriteString("\n  Actions:\n")
		for i, a := range e.Actions {
			fmt.Fprintf(&buf, "    [%d] %s\n", i, a)
		}
	}
	return buf.String()
}

// AssertionContext carries what assertions inspect besides the result.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Model    *schema.Model
	Entities map[string]*state.EntityState
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertActionOrder:
		f, err := selectFlush(result, a.Flush)
		if err != nil {
			return err
		}
		return assertActionOrder(f, a)
	case AssertActionCount:
		f, err := selectFlush(result, a.Flush)
		if err != nil {
			return err
		}
		return assertActionCount(f, a)
	case AssertCompensations:
		f, err := selectFlush(result, a.Flush)
		if err != nil {
			return err
		}
		if f.Compensations != a.Count {
			return &AssertionError{
				Type:     AssertCompensations,
				Expected: fmt.Sprintf("%d compensating updates", a.Count),
				Actual:   fmt.Sprintf("%d compensating updates", f.Compensations),
				Actions:  f.Actions,
			}
		}
		return nil
	case AssertRowCount:
		return assertRowCount(actx, a)
	case AssertStored:
		return assertStored(actx, a)
	case AssertEntityState:
		return assertEntityState(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// selectFlush returns the n-th successful flush, 1-based, or the last one
// when n is zero.
func selectFlush(result *Result, n int) (FlushTrace, error) {
	ok := result.Succeeded()
	if len(ok) == 0 {
		return FlushTrace{}, errors.New("no successful flush to inspect")
	}
	if n == 0 {
		return ok[len(ok)-1], nil
	}
	if n > len(ok) {
		return FlushTrace{}, fmt.Errorf("flush %d requested, only %d succeeded", n, len(ok))
	}
	return ok[n-1], nil
}

func indexOfPrefix(actions []string, prefix string) int {
	return slices.IndexFunc(actions, func(s string) bool { return strings.HasPrefix(s, prefix) })
}

func assertActionOrder(f FlushTrace, a Assertion) error {
	first := indexOfPrefix(f.Actions, a.First)
	then := indexOfPrefix(f.Actions, a.Then)
	if first < 0 || then < 0 {
		missing := a.First
		if first >= 0 {
			missing = a.Then
		}
		return &AssertionError{
			Type:     AssertActionOrder,
			Expected: fmt.Sprintf("an action starting with %q", missing),
			Actual:   "no such action",
			Actions:  f.Actions,
		}
	}
	if first >= then {
		return &AssertionError{
			Type:     AssertActionOrder,
			Expected: fmt.Sprintf("%q before %q", a.First, a.Then),
			Actual:   fmt.Sprintf("positions %d and %d", first, then),
			Actions:  f.Actions,
		}
	}
	return nil
}

func assertActionCount(f FlushTrace, a Assertion) error {
	n := 0
	for _, s := range f.Actions {
		if strings.HasPrefix(s, a.Kind+" ") {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertActionCount,
			Expected: fmt.Sprintf("%d %s actions", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d %s actions", n, a.Kind),
			Actions:  f.Actions,
		}
	}
	return nil
}

func assertRowCount(actx *AssertionContext, a Assertion) error {
	t, ok := actx.Model.Type(a.Entity)
	if !ok {
		return fmt.Errorf("unknown type %q", a.Entity)
	}
	n, err := actx.Store.Count(actx.Ctx, t.Hierarchy)
	if err != nil {
		return err
	}
	if n != int64(a.Count) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d %s rows", a.Count, t.Hierarchy.Name()),
			Actual:   fmt.Sprintf("%d %s rows", n, t.Hierarchy.Name()),
		}
	}
	return nil
}

func assertStored(actx *AssertionContext, a Assertion) error {
	t, ok := actx.Model.Type(a.Entity)
	if !ok {
		return fmt.Errorf("unknown type %q", a.Entity)
	}
	keyValues, err := keyTuple(t, a.Key)
	if err != nil {
		return err
	}

	typ, tuple, err := actx.Store.Load(actx.Ctx, t, keyValues)
	if errors.Is(err, store.ErrNotFound) {
		if a.Missing {
			return nil
		}
		return &AssertionError{
			Type:     AssertStored,
			Expected: fmt.Sprintf("stored %s %v", t.Name, keyValues),
			Actual:   "row not found",
		}
	}
	if err != nil {
		return err
	}
	if a.Missing {
		return &AssertionError{
			Type:     AssertStored,
			Expected: fmt.Sprintf("no stored %s %v", t.Name, keyValues),
			Actual:   fmt.Sprintf("found a %s row", typ.Name),
		}
	}

	for _, name := range sortedKeys(a.Expect) {
		f, ok := typ.Field(name)
		if !ok {
			return fmt.Errorf("%s has no field %q", typ.Name, name)
		}
		want, err := expectedColumns(f, a.Expect[name])
		if err != nil {
			return err
		}
		got := tuple.Pick(f.Indexes())
		if !got.Equal(want) {
			return &AssertionError{
				Type:     AssertStored,
				Expected: fmt.Sprintf("%s = %v", f, want),
				Actual:   fmt.Sprintf("%s = %v", f, got),
			}
		}
	}
	return nil
}

// expectedColumns converts an expected YAML value to the columns of f. A
// multi-column field takes a list; null stands for every column null.
func expectedColumns(f *schema.FieldInfo, raw any) (ir.Tuple, error) {
	if f.Kind == schema.FieldCollection {
		return nil, fmt.Errorf("field %s is a collection and is not stored on the row", f)
	}
	out := make(ir.Tuple, f.Length())
	if raw == nil {
		for i := range out {
			out[i] = ir.Null{}
		}
		return out, nil
	}

	list, isList := raw.([]any)
	if !isList {
		list = []any{raw}
	}
	if len(list) != len(out) {
		return nil, fmt.Errorf("field %s has %d columns, got %d values", f, len(out), len(list))
	}
	for i, c := range f.Columns {
		v, err := ir.FromAny(list[i], c.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

func assertEntityState(actx *AssertionContext, a Assertion) error {
	st, ok := actx.Entities[a.Entity]
	if !ok {
		return fmt.Errorf("unknown entity alias %q", a.Entity)
	}
	if got := st.PersistenceState().String(); got != a.State {
		return &AssertionError{
			Type:     AssertEntityState,
			Expected: fmt.Sprintf("%s is %s", a.Entity, a.State),
			Actual:   fmt.Sprintf("%s is %s", a.Entity, got),
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
