// Package testutil holds fixtures shared by package tests: sample models,
// a deterministic key generator and a recording executor.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
)

// ShopModel declares customers with orders, a rush-order subtype and
// many-to-many order tags. Customer and Order keys come from the
// "sequence" generator; tags are keyed by name.
func ShopModel(tb testing.TB) *schema.Model {
	tb.Helper()
	b := schema.NewBuilder()
	b.Root("Customer", "sequence", schema.Col("id", ir.KindInt)).
		Value("name", ir.KindString, false).
		Value("vip", ir.KindBool, true).
		Collection("orders", "Order", "customer")
	b.Root("Order", "sequence", schema.Col("id", ir.KindInt)).
		Reference("customer", "Customer", true).
		ManyToMany("tags", "Tag")
	b.Subtype("RushOrder", "Order").
		Value("priority", ir.KindInt, false)
	b.Root("Tag", "", schema.Col("name", ir.KindString))
	m, err := b.Build()
	require.NoError(tb, err)
	return m
}

// OrgModel has a reference cycle: every employee belongs to a department
// and a department may name an employee as its head. Employees may also
// have a mentor.
func OrgModel(tb testing.TB) *schema.Model {
	tb.Helper()
	b := schema.NewBuilder()
	b.Root("Department", "sequence", schema.Col("id", ir.KindInt)).
		Value("title", ir.KindString, false).
		Reference("head", "Employee", true).
		Collection("staff", "Employee", "department")
	b.Root("Employee", "sequence", schema.Col("id", ir.KindInt)).
		Value("name", ir.KindString, false).
		Reference("department", "Department", false).
		Reference("mentor", "Employee", true)
	m, err := b.Build()
	require.NoError(tb, err)
	return m
}
