package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileModel parses every entity under the top-level "entity" struct.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Customer: { key: id: int, generator: "sequence" }`)
//	spec, err := CompileModel(v)
func CompileModel(v cue.Value) (*ModelSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ModelSpec{}
	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return spec, nil
	}

	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		entity, err := CompileEntity(iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Entities = append(spec.Entities, *entity)
	}
	return spec, nil
}

// CompileEntity parses a single entity struct. The entity name is the last
// path selector, so v should be looked up as "entity.Name".
//
// Accepted shape:
//
//	Order: {
//		key: id: int            // roots only
//		generator: "sequence"   // roots only
//		extends: "Base"         // subtypes only
//		fields: {
//			note:     string
//			total:    {type: int, nullable: true}
//			customer: {ref: "Customer", nullable: true}
//			lines:    {collection: "Line", inverse: "order"}
//			tags:     {many: "Tag"}
//		}
//	}
func CompileEntity(v cue.Value) (*EntitySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &EntitySpec{Pos: v.Pos()}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	var err error
	if spec.Extends, err = optionalString(v, "extends"); err != nil {
		return nil, err
	}
	if spec.Generator, err = optionalString(v, "generator"); err != nil {
		return nil, err
	}

	keyVal := v.LookupPath(cue.ParsePath("key"))
	if keyVal.Exists() {
		iter, err := keyVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			typ, err := extractTypeName(iter.Value())
			if err != nil {
				return nil, err
			}
			spec.Key = append(spec.Key, ColumnSpec{Name: iter.Label(), Type: typ})
		}
	}

	spec.Fields, err = parseFields(v)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func parseFields(v cue.Value) ([]FieldSpec, error) {
	var fields []FieldSpec

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return fields, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		field, err := parseField(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// parseField accepts either a bare type (a non-null value column) or a
// struct with exactly one of type, ref, collection or many.
func parseField(name string, v cue.Value) (FieldSpec, error) {
	field := FieldSpec{Name: name, Pos: v.Pos()}

	if v.IncompleteKind() != cue.StructKind {
		typ, err := extractTypeName(v)
		if err != nil {
			return field, err
		}
		field.Shape = ShapeValue
		field.Type = typ
		return field, nil
	}

	shapes := 0
	if t := v.LookupPath(cue.ParsePath("type")); t.Exists() {
		typ, err := extractTypeName(t)
		if err != nil {
			return field, err
		}
		field.Shape, field.Type = ShapeValue, typ
		shapes++
	}
	for _, s := range []FieldShape{ShapeReference, ShapeCollection, ShapeMany} {
		target, err := optionalString(v, string(s))
		if err != nil {
			return field, err
		}
		if target != "" {
			field.Shape, field.Target = s, target
			shapes++
		}
	}
	if shapes != 1 {
		return field, &CompileError{
			Field:   "fields." + name,
			Message: "must declare exactly one of type, ref, collection or many",
			Pos:     v.Pos(),
		}
	}

	var err error
	if field.Inverse, err = optionalString(v, "inverse"); err != nil {
		return field, err
	}
	if n := v.LookupPath(cue.ParsePath("nullable")); n.Exists() {
		if field.Nullable, err = n.Bool(); err != nil {
			return field, formatCUEError(err)
		}
	}
	return field, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	s := v.LookupPath(cue.ParsePath(path))
	if !s.Exists() {
		return "", nil
	}
	str, err := s.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return str, nil
}

// extractTypeName converts a CUE type to a column kind name. A concrete
// string names the kind directly, which is how "uuid" is spelled.
func extractTypeName(v cue.Value) (string, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		return v.String()
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
