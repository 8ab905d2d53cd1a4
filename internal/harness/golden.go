package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/uow/internal/ir"
)

// Snapshot is the golden-file form of a scenario run.
type Snapshot struct {
	Scenario string       `json:"scenario"`
	Flushes  []FlushTrace `json:"flushes"`
}

// toCanonicalMap converts a Snapshot to plain maps and slices, the only
// shapes ir.MarshalCanonical accepts.
func (s *Snapshot) toCanonicalMap() map[string]any {
	flushes := make([]any, len(s.Flushes))
	for i, f := range s.Flushes {
		entry := map[string]any{
			"step":          int64(f.Step),
			"seq":           f.Seq,
			"actions":       f.Actions,
			"compensations": int64(f.Compensations),
			"remapped":      int64(f.Remapped),
			"pinned":        int64(f.Pinned),
		}
		if f.Error != "" {
			entry["error"] = f.Error
		}
		flushes[i] = entry
	}
	return map[string]any{
		"scenario": s.Scenario,
		"flushes":  flushes,
	}
}

// MarshalSnapshot renders a result as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := Snapshot{Scenario: name, Flushes: result.Flushes}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its flushes against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
