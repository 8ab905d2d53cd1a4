package compiler

import "cuelang.org/go/cue/token"

// ModelSpec is a domain model as declared in CUE, before linking.
type ModelSpec struct {
	Entities []EntitySpec `json:"entities"`
}

// Entity returns the entity named name.
func (m *ModelSpec) Entity(name string) (*EntitySpec, bool) {
	for i := range m.Entities {
		if m.Entities[i].Name == name {
			return &m.Entities[i], true
		}
	}
	return nil, false
}

// EntitySpec declares one entity type. A root declares Key and Generator;
// a subtype declares Extends and inherits both.
type EntitySpec struct {
	Name      string       `json:"name"`
	Extends   string       `json:"extends,omitempty"`
	Generator string       `json:"generator,omitempty"`
	Key       []ColumnSpec `json:"key,omitempty"`
	Fields    []FieldSpec  `json:"fields,omitempty"`
	Pos       token.Pos    `json:"-"`
}

// ColumnSpec is a key column.
type ColumnSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FieldShape says how a field stores its data.
type FieldShape string

const (
	ShapeValue      FieldShape = "value"
	ShapeReference  FieldShape = "ref"
	ShapeCollection FieldShape = "collection"
	ShapeMany       FieldShape = "many"
)

// FieldSpec declares one non-key field.
//
// Type is set for values, Target for the other shapes. Inverse names the
// reference field on Target that a one-to-many collection mirrors.
type FieldSpec struct {
	Name     string     `json:"name"`
	Shape    FieldShape `json:"shape"`
	Type     string     `json:"type,omitempty"`
	Target   string     `json:"target,omitempty"`
	Inverse  string     `json:"inverse,omitempty"`
	Nullable bool       `json:"nullable,omitempty"`
	Pos      token.Pos  `json:"-"`
}
