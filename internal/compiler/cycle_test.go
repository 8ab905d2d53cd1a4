package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
)

func build(t *testing.T, declare func(b *schema.Builder)) *schema.Model {
	t.Helper()
	b := schema.NewBuilder()
	declare(b)
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	m := build(t, func(b *schema.Builder) {
		b.Root("Customer", "", schema.Col("id", ir.KindInt))
		b.Root("Order", "", schema.Col("id", ir.KindInt)).Reference("customer", "Customer", false)
		b.Root("Line", "", schema.Col("id", ir.KindInt)).Reference("order", "Order", false)
	})
	assert.Empty(t, AnalyzeCycles(m))
}

func TestAnalyzeCycles_RootSelfReferenceIgnored(t *testing.T) {
	m := build(t, func(b *schema.Builder) {
		b.Root("Person", "", schema.Col("id", ir.KindInt)).Reference("mentor", "Person", true)
	})
	assert.Empty(t, AnalyzeCycles(m))
}

func TestAnalyzeCycles_SubtypeSelfReference(t *testing.T) {
	m := build(t, func(b *schema.Builder) {
		b.Root("Person", "", schema.Col("id", ir.KindInt))
		b.Subtype("Employee", "Person").Reference("manager", "Employee", true)
	})
	warnings := AnalyzeCycles(m)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"Person", "Person"}, warnings[0].Path)
	assert.Equal(t, []string{"Employee.manager"}, warnings[0].Fields)
	assert.False(t, warnings[0].Unresolvable)
	assert.Equal(t, "warning", warnings[0].Level)
}

func TestAnalyzeCycles_TwoNodeBreakable(t *testing.T) {
	m := build(t, func(b *schema.Builder) {
		b.Root("A", "", schema.Col("id", ir.KindInt)).Reference("b", "B", false)
		b.Root("B", "", schema.Col("id", ir.KindInt)).Reference("a", "A", true)
	})
	warnings := AnalyzeCycles(m)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"A", "B", "A"}, warnings[0].Path)
	assert.ElementsMatch(t, []string{"A.b", "B.a"}, warnings[0].Fields)
	assert.False(t, warnings[0].Unresolvable)
	assert.Contains(t, warnings[0].Message, "A → B → A")
}

func TestAnalyzeCycles_Unresolvable(t *testing.T) {
	m := build(t, func(b *schema.Builder) {
		b.Root("A", "", schema.Col("id", ir.KindInt)).Reference("b", "B", false)
		b.Root("B", "", schema.Col("id", ir.KindInt)).Reference("c", "C", false)
		b.Root("C", "", schema.Col("id", ir.KindInt)).Reference("a", "A", false)
	})
	warnings := AnalyzeCycles(m)
	require.Len(t, warnings, 1)
	assert.True(t, warnings[0].Unresolvable)
	assert.Equal(t, "error", warnings[0].Level)
	assert.Equal(t, []string{"A", "B", "C", "A"}, warnings[0].Path)
}

func TestAnalyzeCycles_IndependentCycles(t *testing.T) {
	m := build(t, func(b *schema.Builder) {
		b.Root("A", "", schema.Col("id", ir.KindInt)).Reference("b", "B", true)
		b.Root("B", "", schema.Col("id", ir.KindInt)).Reference("a", "A", true)
		b.Root("C", "", schema.Col("id", ir.KindInt)).Reference("d", "D", true)
		b.Root("D", "", schema.Col("id", ir.KindInt)).Reference("c", "C", true)
		b.Root("E", "", schema.Col("id", ir.KindInt)).Reference("a", "A", true)
	})
	assert.Len(t, AnalyzeCycles(m), 2)
}

func TestAnalyzeCycles_ManyToManyIsNotACycle(t *testing.T) {
	m := build(t, func(b *schema.Builder) {
		b.Root("Post", "", schema.Col("id", ir.KindInt)).ManyToMany("related", "Post")
	})
	assert.Empty(t, AnalyzeCycles(m))
}

func TestReconstructCyclePath_Empty(t *testing.T) {
	assert.Empty(t, reconstructCyclePath(nil, &referenceGraph{}))
}
