package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopCUE = `
entity: Customer: {
	key: id: int
	generator: "sequence"
	fields: {
		name:   string
		email:  {type: string, nullable: true}
		orders: {collection: "Order", inverse: "customer"}
	}
}

entity: Order: {
	key: id: int
	generator: "sequence"
	fields: {
		customer: {ref: "Customer", nullable: true}
		tags:     {many: "Tag"}
	}
}

entity: RushOrder: {
	extends: "Order"
	fields: priority: int
}

entity: Tag: {
	key: id: "uuid"
	generator: "uuid"
	fields: label: string
}
`

func compileString(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

func TestCompileModel(t *testing.T) {
	spec, err := CompileModel(compileString(t, shopCUE))
	require.NoError(t, err)
	require.Len(t, spec.Entities, 4)

	customer, ok := spec.Entity("Customer")
	require.True(t, ok)
	assert.Equal(t, "sequence", customer.Generator)
	assert.Equal(t, []ColumnSpec{{Name: "id", Type: "int"}}, customer.Key)
	require.Len(t, customer.Fields, 3)
	assert.Equal(t, FieldSpec{Name: "name", Shape: ShapeValue, Type: "string"}, withoutPos(customer.Fields[0]))
	assert.Equal(t, FieldSpec{Name: "email", Shape: ShapeValue, Type: "string", Nullable: true}, withoutPos(customer.Fields[1]))
	assert.Equal(t, FieldSpec{Name: "orders", Shape: ShapeCollection, Target: "Order", Inverse: "customer"}, withoutPos(customer.Fields[2]))

	rush, ok := spec.Entity("RushOrder")
	require.True(t, ok)
	assert.Equal(t, "Order", rush.Extends)
	assert.Empty(t, rush.Key)

	tag, ok := spec.Entity("Tag")
	require.True(t, ok)
	assert.Equal(t, "uuid", tag.Key[0].Type)
}

func TestCompileModel_NoEntities(t *testing.T) {
	spec, err := CompileModel(compileString(t, `other: 1`))
	require.NoError(t, err)
	assert.Empty(t, spec.Entities)
}

func TestCompileEntity_FloatForbidden(t *testing.T) {
	v := compileString(t, `entity: Bad: { key: id: int, fields: weight: float }`)
	_, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")
}

func TestCompileEntity_AmbiguousField(t *testing.T) {
	v := compileString(t, `entity: Bad: { key: id: int, fields: x: {ref: "A", many: "B"} }`)
	_, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Bad")))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fields.x", ce.Field)
}

func TestCompileEntity_NonBoolNullable(t *testing.T) {
	v := compileString(t, `entity: Bad: { key: id: int, fields: x: {type: int, nullable: "yes"} }`)
	_, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Bad")))
	assert.Error(t, err)
}

func withoutPos(f FieldSpec) FieldSpec {
	f.Pos = FieldSpec{}.Pos
	return f
}
