package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/uow/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrNoEntities       = "E200" // model declares no entities
	ErrMissingKey       = "E201" // root entity without key columns
	ErrSubtypeKey       = "E202" // subtype redeclares key or generator
	ErrUnknownBase      = "E203" // extends names an unknown entity
	ErrInvalidFieldType = "E204" // unknown column kind
	ErrFloatForbidden   = "E205" // float column kind
	ErrDuplicateName    = "E206" // duplicate entity or field name
	ErrUnknownTarget    = "E207" // ref/collection/many names an unknown entity
	ErrInvalidInverse   = "E208" // collection without a matching inverse reference
	ErrInheritanceCycle = "E209" // extends chain loops
	ErrInvalidName      = "E210" // entity or field name is not an identifier

	ErrUnresolvableCycle = "E211" // reference cycle with no nullable reference
)

// ValidationError represents a model validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Validate checks a model spec and returns every error found.
func Validate(spec *ModelSpec) []ValidationError {
	var errs []ValidationError

	if len(spec.Entities) == 0 {
		return []ValidationError{{
			Field:   "entity",
			Message: "at least one entity is required",
			Code:    ErrNoEntities,
		}}
	}

	names := make(map[string]bool)
	for _, e := range spec.Entities {
		if names[e.Name] {
			errs = append(errs, ValidationError{
				Field:   "entity." + e.Name,
				Message: fmt.Sprintf("duplicate entity name: %q", e.Name),
				Code:    ErrDuplicateName,
				Line:    e.Pos.Line(),
			})
		}
		names[e.Name] = true
	}

	for i := range spec.Entities {
		errs = append(errs, validateEntity(spec, &spec.Entities[i])...)
	}
	errs = append(errs, validateInheritance(spec)...)
	return errs
}

func validateEntity(spec *ModelSpec, e *EntitySpec) []ValidationError {
	var errs []ValidationError
	path := "entity." + e.Name
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    e.Pos.Line(),
		})
	}

	if !identifierPattern.MatchString(e.Name) {
		add(path, ErrInvalidName, "entity name %q is not an identifier", e.Name)
	}

	if e.Extends == "" {
		if len(e.Key) == 0 {
			add(path+".key", ErrMissingKey, "root entity %q must declare key columns", e.Name)
		}
	} else {
		if len(e.Key) > 0 || e.Generator != "" {
			add(path+".key", ErrSubtypeKey, "subtype %q inherits its key and generator from %q", e.Name, e.Extends)
		}
		if _, ok := spec.Entity(e.Extends); !ok {
			add(path+".extends", ErrUnknownBase, "unknown base entity %q", e.Extends)
		}
	}

	seen := make(map[string]bool)
	for _, c := range e.Key {
		colPath := fmt.Sprintf("%s.key.%s", path, c.Name)
		if seen[c.Name] {
			add(colPath, ErrDuplicateName, "duplicate field name: %q", c.Name)
		}
		seen[c.Name] = true
		errs = append(errs, validateFieldType(c.Type, colPath, c.Name, e.Pos.Line())...)
	}

	for _, f := range e.Fields {
		fieldPath := fmt.Sprintf("%s.fields.%s", path, f.Name)
		if !identifierPattern.MatchString(f.Name) {
			add(fieldPath, ErrInvalidName, "field name %q is not an identifier", f.Name)
		}
		if seen[f.Name] {
			add(fieldPath, ErrDuplicateName, "duplicate field name: %q", f.Name)
		}
		seen[f.Name] = true

		if f.Shape == ShapeValue {
			errs = append(errs, validateFieldType(f.Type, fieldPath, f.Name, f.Pos.Line())...)
			continue
		}
		target, ok := spec.Entity(f.Target)
		if !ok {
			add(fieldPath, ErrUnknownTarget, "unknown target entity %q", f.Target)
			continue
		}
		if f.Shape == ShapeCollection || f.Shape == ShapeMany && f.Inverse != "" {
			if !hasInverse(spec, target, f.Inverse, e.Name) {
				add(fieldPath, ErrInvalidInverse, "collection needs inverse naming a reference of %q back to %q", f.Target, e.Name)
			}
		}
	}
	return errs
}

// hasInverse reports whether target, or one of its bases, declares a
// reference or many-to-many field named inverse that points back at owner.
func hasInverse(spec *ModelSpec, target *EntitySpec, inverse, owner string) bool {
	if strings.TrimSpace(inverse) == "" {
		return false
	}
	for hops := 0; target != nil && hops <= len(spec.Entities); hops++ {
		for _, f := range target.Fields {
			if f.Name == inverse {
				return (f.Shape == ShapeReference || f.Shape == ShapeMany) && isSameOrBase(spec, owner, f.Target)
			}
		}
		target, _ = spec.Entity(target.Extends)
	}
	return false
}

// isSameOrBase reports whether base is name or one of its ancestors.
func isSameOrBase(spec *ModelSpec, name, base string) bool {
	for hops := 0; name != "" && hops <= len(spec.Entities); hops++ {
		if name == base {
			return true
		}
		e, ok := spec.Entity(name)
		if !ok {
			return false
		}
		name = e.Extends
	}
	return false
}

func validateInheritance(spec *ModelSpec) []ValidationError {
	var errs []ValidationError
	for _, e := range spec.Entities {
		seen := map[string]bool{e.Name: true}
		for cur, ok := spec.Entity(e.Extends); ok; cur, ok = spec.Entity(cur.Extends) {
			if seen[cur.Name] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("entity.%s.extends", e.Name),
					Message: fmt.Sprintf("inheritance chain of %q loops through %q", e.Name, cur.Name),
					Code:    ErrInheritanceCycle,
					Line:    e.Pos.Line(),
				})
				break
			}
			seen[cur.Name] = true
		}
	}
	return errs
}

func validateFieldType(fieldType, fieldPath, fieldName string, line int) []ValidationError {
	if isFloatType(fieldType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for field %q, use int instead", fieldName),
			Code:    ErrFloatForbidden,
			Line:    line,
		}}
	}
	if _, err := ir.ParseKind(fieldType); err != nil {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for field %q", fieldType, fieldName),
			Code:    ErrInvalidFieldType,
			Line:    line,
		}}
	}
	return nil
}

func isFloatType(t string) bool {
	switch t {
	case "float", "float32", "float64", "number", "double":
		return true
	}
	return false
}
