package schema

import (
	"errors"
	"fmt"

	"github.com/roach88/uow/internal/ir"
)

// Builder collects type declarations and links them into a Model.
// Declarations may reference types declared later.
type Builder struct {
	decls  []*TypeDecl
	byName map[string]*TypeDecl
	errs   []error
}

// TypeDecl is a type under construction. Its methods chain.
type TypeDecl struct {
	name      string
	base      string
	key       []Column
	generator string
	fields    []fieldDecl
}

type fieldDecl struct {
	name     string
	kind     FieldKind
	column   ir.Kind
	nullable bool
	target   string
	inverse  string
	many     bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{byName: make(map[string]*TypeDecl)}
}

// Root declares a hierarchy root with its key columns and the name of the
// key generator that allocates its durable keys.
func (b *Builder) Root(name, generator string, key ...Column) *TypeDecl {
	d := &TypeDecl{name: name, key: key, generator: generator}
	b.add(d)
	return d
}

// Subtype declares a type that inherits base's key and fields.
func (b *Builder) Subtype(name, base string) *TypeDecl {
	d := &TypeDecl{name: name, base: base}
	b.add(d)
	return d
}

func (b *Builder) add(d *TypeDecl) {
	if _, dup := b.byName[d.name]; dup {
		b.errs = append(b.errs, fmt.Errorf("type %q declared twice", d.name))
		return
	}
	b.byName[d.name] = d
	b.decls = append(b.decls, d)
}

// Value adds a scalar field.
func (d *TypeDecl) Value(name string, kind ir.Kind, nullable bool) *TypeDecl {
	d.fields = append(d.fields, fieldDecl{name: name, kind: FieldValue, column: kind, nullable: nullable})
	return d
}

// Reference adds a single-valued reference to target.
func (d *TypeDecl) Reference(name, target string, nullable bool) *TypeDecl {
	d.fields = append(d.fields, fieldDecl{name: name, kind: FieldReference, target: target, nullable: nullable})
	return d
}

// Collection adds the paired side of an association declared on target.
// inverse names either a reference field of target pointing back at this
// type (one-to-many) or a many-to-many collection of target.
func (d *TypeDecl) Collection(name, target, inverse string) *TypeDecl {
	d.fields = append(d.fields, fieldDecl{name: name, kind: FieldCollection, target: target, inverse: inverse})
	return d
}

// ManyToMany adds the master side of a many-to-many association.
func (d *TypeDecl) ManyToMany(name, target string) *TypeDecl {
	d.fields = append(d.fields, fieldDecl{name: name, kind: FieldCollection, target: target, many: true})
	return d
}

// Build links the declarations. All problems found are joined into the
// returned error.
func (b *Builder) Build() (*Model, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	l := &linker{b: b, m: &Model{byName: make(map[string]*TypeInfo)}}
	l.createTypes()
	l.linkBases()
	if len(l.errs) == 0 {
		l.layoutTypes()
	}
	if len(l.errs) == 0 {
		l.linkAssociations()
	}
	if len(l.errs) == 0 {
		l.indexAssociations()
	}
	if len(l.errs) > 0 {
		return nil, errors.Join(l.errs...)
	}
	return l.m, nil
}

type linker struct {
	b    *Builder
	m    *Model
	errs []error
	// declared fields per type, kept for association linking
	declared map[*TypeInfo][]*FieldInfo
	decl     map[*FieldInfo]fieldDecl
}

func (l *linker) fail(format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf(format, args...))
}

func (l *linker) createTypes() {
	for i, d := range l.b.decls {
		t := &TypeInfo{Name: d.name, ID: i + 1, byName: make(map[string]*FieldInfo)}
		l.m.types = append(l.m.types, t)
		l.m.byName[d.name] = t
	}
}

func (l *linker) linkBases() {
	for _, d := range l.b.decls {
		t := l.m.byName[d.name]
		if d.base == "" {
			if len(d.key) == 0 {
				l.fail("root type %q declares no key columns", d.name)
				continue
			}
			for _, c := range d.key {
				if c.Kind == ir.KindNull {
					l.fail("key column %s.%s has no kind", d.name, c.Name)
				}
			}
			h := &Hierarchy{Root: t, Key: &KeyInfo{Name: d.name, Columns: d.key, Generator: d.generator}}
			t.Hierarchy = h
			l.m.hierarchies = append(l.m.hierarchies, h)
			continue
		}
		base, ok := l.m.byName[d.base]
		if !ok {
			l.fail("type %q extends unknown type %q", d.name, d.base)
			continue
		}
		t.Base = base
		base.children = append(base.children, t)
	}
	if len(l.errs) > 0 {
		return
	}
	for _, t := range l.m.types {
		root := t
		for steps := 0; root.Base != nil; steps++ {
			if steps > len(l.m.types) {
				l.fail("type %q has a cyclic base chain", t.Name)
				break
			}
			root = root.Base
		}
		if root.Base != nil {
			continue
		}
		if t != root {
			t.Hierarchy = root.Hierarchy
			t.Hierarchy.Types = append(t.Hierarchy.Types, t)
		}
	}
	for _, h := range l.m.hierarchies {
		h.Types = append([]*TypeInfo{h.Root}, h.Types...)
	}
}

// layoutTypes assigns tuple offsets, bases before subtypes.
func (l *linker) layoutTypes() {
	l.declared = make(map[*TypeInfo][]*FieldInfo)
	l.decl = make(map[*FieldInfo]fieldDecl)
	done := make(map[*TypeInfo]bool)
	var layout func(t *TypeInfo)
	layout = func(t *TypeInfo) {
		if done[t] {
			return
		}
		done[t] = true
		d := l.b.byName[t.Name]
		if t.Base == nil {
			for i, c := range d.key {
				l.addField(t, &FieldInfo{Name: c.Name, Kind: FieldKey, DeclaringType: t, Offset: i, Columns: []Column{c}})
			}
			t.width = len(d.key)
		} else {
			layout(t.Base)
			for _, f := range t.Base.fields {
				l.addField(t, f)
			}
			t.width = t.Base.width
		}
		for _, fd := range d.fields {
			f := &FieldInfo{Name: fd.name, Kind: fd.kind, DeclaringType: t, Offset: t.width, Nullable: fd.nullable}
			switch fd.kind {
			case FieldValue:
				f.Columns = []Column{{Name: fd.name, Kind: fd.column}}
			case FieldReference, FieldCollection:
				target, ok := l.m.byName[fd.target]
				if !ok {
					l.fail("field %s.%s targets unknown type %q", t.Name, fd.name, fd.target)
					continue
				}
				f.Target = target
				if fd.kind == FieldReference {
					for _, c := range target.Key().Columns {
						f.Columns = append(f.Columns, Column{Name: fd.name + "_" + c.Name, Kind: c.Kind})
					}
				}
			}
			if _, dup := t.byName[fd.name]; dup {
				l.fail("field %s.%s declared twice", t.Name, fd.name)
				continue
			}
			l.addField(t, f)
			l.declared[t] = append(l.declared[t], f)
			l.decl[f] = fd
			t.width += f.Length()
		}
	}
	for _, t := range l.m.types {
		layout(t)
	}
}

func (l *linker) addField(t *TypeInfo, f *FieldInfo) {
	t.fields = append(t.fields, f)
	t.byName[f.Name] = f
}

func (l *linker) linkAssociations() {
	// Masters first so paired sides can find them.
	for _, t := range l.m.types {
		for _, f := range l.declared[t] {
			fd := l.decl[f]
			switch {
			case f.Kind == FieldReference:
				l.addAssociation(&Association{
					Name: f.String(), OwnerType: t, OwnerField: f, TargetType: f.Target,
					Multiplicity: ManyToOne, Master: true,
				})
			case f.Kind == FieldCollection && fd.many:
				a := &Association{
					Name: f.String(), OwnerType: t, OwnerField: f, TargetType: f.Target,
					Multiplicity: ManyToMany, Master: true,
				}
				a.Auxiliary = l.auxiliary(a)
				l.addAssociation(a)
			}
		}
	}
	for _, t := range l.m.types {
		for _, f := range l.declared[t] {
			fd := l.decl[f]
			if f.Kind != FieldCollection || fd.many {
				continue
			}
			inv, ok := f.Target.Field(fd.inverse)
			if !ok || inv.Association == nil {
				l.fail("collection %s has no inverse %s.%s", f, f.Target.Name, fd.inverse)
				continue
			}
			master := inv.Association
			if master.Reversed != nil {
				l.fail("association %s is already paired with %s", master, master.Reversed)
				continue
			}
			if !t.IsSubtypeOf(master.TargetType) {
				l.fail("collection %s: inverse %s does not target %s", f, inv, t.Name)
				continue
			}
			a := &Association{
				Name: f.String(), OwnerType: t, OwnerField: f, TargetType: f.Target,
				Reversed: master, Auxiliary: master.Auxiliary,
			}
			switch master.Multiplicity {
			case ManyToOne:
				a.Multiplicity = OneToMany
			case ManyToMany:
				a.Multiplicity = ManyToMany
			default:
				l.fail("collection %s cannot pair with %s", f, master)
				continue
			}
			master.Reversed = a
			l.addAssociation(a)
		}
	}
}

func (l *linker) addAssociation(a *Association) {
	a.OwnerField.Association = a
	l.m.associations = append(l.m.associations, a)
}

// auxiliary creates the join type of a many-to-many association. Its key
// is the owner key columns followed by the target key columns, and its two
// reference fields overlay those same columns.
func (l *linker) auxiliary(a *Association) *TypeInfo {
	ownerKey, targetKey := a.OwnerType.Key(), a.TargetType.Key()
	t := &TypeInfo{Name: a.Name, ID: len(l.m.types) + 1, Auxiliary: true, byName: make(map[string]*FieldInfo)}
	var cols, ownerCols, targetCols []Column
	for _, c := range ownerKey.Columns {
		ownerCols = append(ownerCols, Column{Name: "owner_" + c.Name, Kind: c.Kind})
	}
	for _, c := range targetKey.Columns {
		targetCols = append(targetCols, Column{Name: "target_" + c.Name, Kind: c.Kind})
	}
	cols = append(append(cols, ownerCols...), targetCols...)
	t.Hierarchy = &Hierarchy{Root: t, Types: []*TypeInfo{t}, Key: &KeyInfo{Name: t.Name, Columns: cols}}
	t.width = len(cols)

	owner := &FieldInfo{Name: "owner", Kind: FieldReference, DeclaringType: t, Offset: 0, Columns: ownerCols, Target: a.OwnerType}
	target := &FieldInfo{Name: "target", Kind: FieldReference, DeclaringType: t, Offset: len(ownerCols), Columns: targetCols, Target: a.TargetType}
	l.addField(t, owner)
	l.addField(t, target)

	l.m.types = append(l.m.types, t)
	l.m.byName[t.Name] = t
	l.m.hierarchies = append(l.m.hierarchies, t.Hierarchy)
	for _, f := range []*FieldInfo{owner, target} {
		l.addAssociation(&Association{
			Name: f.String(), OwnerType: t, OwnerField: f, TargetType: f.Target,
			Multiplicity: ManyToOne, Master: true,
		})
	}
	return t
}

func (l *linker) indexAssociations() {
	for _, t := range l.m.types {
		for _, a := range l.m.associations {
			if t.IsSubtypeOf(a.OwnerType) {
				t.owners = append(t.owners, a)
			}
			if t.IsSubtypeOf(a.TargetType) {
				t.targets = append(t.targets, a)
			}
		}
	}
}
