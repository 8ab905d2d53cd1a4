package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
)

func traceResult(flushes ...FlushTrace) *Result {
	r := NewResult()
	r.Flushes = flushes
	return r
}

var sampleFlush = FlushTrace{
	Seq: 1,
	Actions: []string{
		"insert Department, (1)",
		"insert Employee, (1)",
		"update Department, (1) columns=[2] compensation",
	},
	Compensations: 1,
}

func TestAssertActionOrder(t *testing.T) {
	tests := []struct {
		name        string
		first, then string
		wantErr     string
	}{
		{"in order", "insert Department", "insert Employee", ""},
		{"intervening actions allowed", "insert Department", "update Department", ""},
		{"wrong order", "insert Employee", "insert Department", "before"},
		{"missing first", "remove Employee", "insert Department", `"remove Employee"`},
		{"missing then", "insert Employee", "remove Department", `"remove Department"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertActionOrder(sampleFlush, Assertion{Type: AssertActionOrder, First: tt.first, Then: tt.then})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertActionCount(t *testing.T) {
	assert.NoError(t, assertActionCount(sampleFlush, Assertion{Kind: "insert", Count: 2}))
	assert.NoError(t, assertActionCount(sampleFlush, Assertion{Kind: "update", Count: 1}))
	assert.NoError(t, assertActionCount(sampleFlush, Assertion{Kind: "remove", Count: 0}))

	err := assertActionCount(sampleFlush, Assertion{Kind: "insert", Count: 3})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "3 insert actions", ae.Expected)
	assert.Equal(t, "2 insert actions", ae.Actual)
	assert.Equal(t, sampleFlush.Actions, ae.Actions)
}

func TestSelectFlush(t *testing.T) {
	failed := FlushTrace{Seq: 2, Error: "EXECUTION_FAILED"}
	second := FlushTrace{Seq: 3, Actions: []string{"remove Employee, (1)"}}
	r := traceResult(sampleFlush, failed, second)

	f, err := selectFlush(r, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.Seq)

	f, err = selectFlush(r, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.Seq, "failed flushes are skipped")

	_, err = selectFlush(r, 3)
	assert.ErrorContains(t, err, "only 2 succeeded")

	_, err = selectFlush(traceResult(failed), 0)
	assert.ErrorContains(t, err, "no successful flush")
}

func TestEvaluateAssertions(t *testing.T) {
	r := traceResult(sampleFlush)
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertCompensations, Count: 1},
		{Type: AssertCompensations, Count: 0},
		{Type: AssertActionCount, Kind: "insert", Count: 2},
		{Type: "bogus"},
	}, &AssertionContext{})

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertions[1]")
	assert.Contains(t, errs[0], "0 compensating updates")
	assert.Contains(t, errs[1], `assertions[3]: unknown assertion type "bogus"`)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertActionOrder,
		Expected: `"insert Order" before "insert Customer"`,
		Actual:   "positions 1 and 0",
		Actions:  []string{"insert Customer, (1)", "insert Order, (1)"},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: action_order")
	assert.Contains(t, msg, "Expected: \"insert Order\" before \"insert Customer\"")
	assert.Contains(t, msg, "Actual: positions 1 and 0")
	assert.Contains(t, msg, "[1] insert Order, (1)")
}

func TestExpectedColumns(t *testing.T) {
	b := schema.NewBuilder()
	b.Root("Site", "", schema.Col("region", ir.KindString), schema.Col("n", ir.KindInt))
	b.Root("Host", "", schema.Col("id", ir.KindInt)).
		Value("up", ir.KindBool, true).
		Reference("site", "Site", true)
	m, err := b.Build()
	require.NoError(t, err)
	host := m.MustType("Host")
	up, _ := host.Field("up")
	site, _ := host.Field("site")

	got, err := expectedColumns(up, true)
	require.NoError(t, err)
	assert.Equal(t, ir.Tuple{ir.Bool(true)}, got)

	got, err = expectedColumns(site, []any{"eu", 3})
	require.NoError(t, err)
	assert.Equal(t, ir.Tuple{ir.String("eu"), ir.Int(3)}, got)

	got, err = expectedColumns(site, nil)
	require.NoError(t, err)
	assert.True(t, got.AllNull())
	assert.Len(t, got, 2)

	_, err = expectedColumns(site, []any{"eu"})
	assert.ErrorContains(t, err, "has 2 columns, got 1 values")

	_, err = expectedColumns(up, 1.5)
	assert.Error(t, err)
}
