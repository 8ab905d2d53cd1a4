package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/uow/internal/persist"
)

// Recorder is an executor that keeps every plan it is given. Set Err to
// make the next plans fail; a failed plan is recorded in Failed instead.
type Recorder struct {
	mu     sync.Mutex
	Err    error
	plans  [][]persist.Action
	failed [][]persist.Action
}

var _ persist.Executor = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Execute(_ context.Context, actions []persist.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		r.failed = append(r.failed, slices.Clone(actions))
		return r.Err
	}
	r.plans = append(r.plans, slices.Clone(actions))
	return nil
}

// Plans returns the executed plans in order.
func (r *Recorder) Plans() [][]persist.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.plans)
}

// Failed returns the plans that were rejected.
func (r *Recorder) Failed() [][]persist.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.failed)
}

// Last returns the most recent executed plan, or nil.
func (r *Recorder) Last() []persist.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.plans) == 0 {
		return nil
	}
	return r.plans[len(r.plans)-1]
}

// Summaries renders every executed plan one action per line.
func (r *Recorder) Summaries() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.plans))
	for i, plan := range r.plans {
		for _, a := range plan {
			out[i] = append(out[i], a.String())
		}
	}
	return out
}
