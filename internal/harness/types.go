package harness

// FlushTrace records one flush attempted by a scenario.
type FlushTrace struct {
	// Step is the index of the flush step.
	Step int `json:"step"`

	// Seq is the session clock value of the flush. Zero when it failed
	// before a sequence was taken.
	Seq int64 `json:"seq"`

	// Actions are the executed actions, rendered as strings, in order.
	Actions []string `json:"actions"`

	Compensations int `json:"compensations"`
	Remapped      int `json:"remapped"`
	Pinned        int `json:"pinned"`

	// Error is the flush error code, or empty on success.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	// Flushes lists every flush in step order, failed ones included.
	Flushes []FlushTrace `json:"flushes"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Flushes: []FlushTrace{},
		Errors:  []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Succeeded returns the flushes that executed without error.
func (r *Result) Succeeded() []FlushTrace {
	var out []FlushTrace
	for _, f := range r.Flushes {
		if f.Error == "" {
			out = append(out, f)
		}
	}
	return out
}
