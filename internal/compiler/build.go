package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
)

// Build validates spec and links it into a schema.Model.
func Build(spec *ModelSpec) (*schema.Model, error) {
	if verrs := Validate(spec); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, errors.Join(errs...)
	}

	b := schema.NewBuilder()
	for _, e := range spec.Entities {
		var decl *schema.TypeDecl
		if e.Extends != "" {
			decl = b.Subtype(e.Name, e.Extends)
		} else {
			cols := make([]schema.Column, len(e.Key))
			for i, c := range e.Key {
				kind, err := ir.ParseKind(c.Type)
				if err != nil {
					return nil, fmt.Errorf("entity %s: %w", e.Name, err)
				}
				cols[i] = schema.Col(c.Name, kind)
			}
			decl = b.Root(e.Name, e.Generator, cols...)
		}

		for _, f := range e.Fields {
			switch f.Shape {
			case ShapeValue:
				kind, err := ir.ParseKind(f.Type)
				if err != nil {
					return nil, fmt.Errorf("entity %s: %w", e.Name, err)
				}
				decl.Value(f.Name, kind, f.Nullable)
			case ShapeReference:
				decl.Reference(f.Name, f.Target, f.Nullable)
			case ShapeCollection:
				decl.Collection(f.Name, f.Target, f.Inverse)
			case ShapeMany:
				if f.Inverse != "" {
					decl.Collection(f.Name, f.Target, f.Inverse)
				} else {
					decl.ManyToMany(f.Name, f.Target)
				}
			}
		}
	}
	return b.Build()
}
