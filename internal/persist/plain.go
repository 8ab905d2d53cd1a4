package persist

import (
	"github.com/roach88/uow/internal/state"
)

// PlainGenerator emits removes, updates and inserts in registry order with
// no dependency ordering. Use it only when storage defers or lacks foreign
// key checks.
type PlainGenerator struct{}

func (PlainGenerator) Generate(reg *state.Registry) ([]Action, error) {
	actions := make([]Action, 0, reg.Count())
	for s := range reg.Items(state.Removed) {
		actions = append(actions, removeAction(s))
	}
	for s := range reg.Items(state.Modified) {
		actions = append(actions, updateAction(s))
	}
	for s := range reg.Items(state.New) {
		actions = append(actions, insertAction(s))
	}
	return actions, nil
}
