// Package sqlgen compiles persist actions and collection reads into
// parameterized SQLite statements.
//
// Every hierarchy maps to one table holding the columns of all its types
// plus a type_id discriminator. Values are always bound as parameters and
// every multi-row read is ordered by key.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/schema"
)

// TypeIDColumn holds the TypeInfo.ID of each row.
const TypeIDColumn = "type_id"

// Column is one table column.
type Column struct {
	Name    string
	Kind    ir.Kind
	NotNull bool
}

// ForeignKey is a reference constraint.
type ForeignKey struct {
	Columns    []string
	Table      string
	References []string
}

// Table is the storage layout of one hierarchy.
type Table struct {
	Name        string
	Hierarchy   *schema.Hierarchy
	Columns     []Column
	ForeignKeys []ForeignKey

	// layouts maps each type's tuple indexes to column names.
	layouts map[*schema.TypeInfo][]string
	index   map[string]int
	byID    map[int]*schema.TypeInfo
}

func newTable(h *schema.Hierarchy) (*Table, error) {
	t := &Table{
		Name:      h.Name(),
		Hierarchy: h,
		layouts:   make(map[*schema.TypeInfo][]string),
		index:     make(map[string]int),
		byID:      make(map[int]*schema.TypeInfo),
	}
	arity := h.Key.Arity()
	owner := make(map[string]*schema.FieldInfo)
	for _, c := range h.Key.Columns {
		t.addColumn(Column{Name: c.Name, Kind: c.Kind, NotNull: true})
	}
	t.addColumn(Column{Name: TypeIDColumn, Kind: ir.KindInt, NotNull: true})

	for _, typ := range h.Types {
		t.byID[typ.ID] = typ
		layout := make([]string, typ.TupleWidth())
		for i, c := range h.Key.Columns {
			layout[i] = c.Name
		}
		for _, f := range typ.Fields() {
			if f.Kind != schema.FieldValue && f.Kind != schema.FieldReference {
				continue
			}
			for j, c := range f.Columns {
				idx := f.Offset + j
				if idx < arity {
					continue
				}
				if c.Name == TypeIDColumn {
					return nil, fmt.Errorf("table %s: column name %q is reserved (%s)", t.Name, c.Name, f)
				}
				layout[idx] = c.Name
				if prev, ok := owner[c.Name]; ok {
					if prev != f {
						return nil, fmt.Errorf("table %s: column %q is declared by both %s and %s", t.Name, c.Name, prev, f)
					}
					continue
				}
				owner[c.Name] = f
				t.addColumn(Column{
					Name:    c.Name,
					Kind:    c.Kind,
					NotNull: !f.Nullable && f.DeclaringType.IsRoot(),
				})
			}
			if f.Kind == schema.FieldReference && !t.hasForeignKey(f) {
				t.ForeignKeys = append(t.ForeignKeys, foreignKey(f))
			}
		}
		t.layouts[typ] = layout
	}
	return t, nil
}

func (t *Table) addColumn(c Column) {
	t.index[c.Name] = len(t.Columns)
	t.Columns = append(t.Columns, c)
}

func (t *Table) hasForeignKey(f *schema.FieldInfo) bool {
	cols := strings.Join(columnNames(f.Columns), ",")
	for _, fk := range t.ForeignKeys {
		if strings.Join(fk.Columns, ",") == cols {
			return true
		}
	}
	return false
}

func foreignKey(f *schema.FieldInfo) ForeignKey {
	return ForeignKey{
		Columns:    columnNames(f.Columns),
		Table:      f.Target.Hierarchy.Name(),
		References: columnNames(f.Target.Key().Columns),
	}
}

func columnNames(cols []schema.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// KeyColumns returns the primary key column names.
func (t *Table) KeyColumns() []string { return columnNames(t.Hierarchy.Key.Columns) }

// Layout returns the column name of every tuple index of typ.
func (t *Table) Layout(typ *schema.TypeInfo) []string { return t.layouts[typ] }

// TypeByID resolves a type_id value.
func (t *Table) TypeByID(id int64) (*schema.TypeInfo, bool) {
	typ, ok := t.byID[int(id)]
	return typ, ok
}

// Decode converts a row read with SelectRow into the row's exact type and
// its entity tuple.
func (t *Table) Decode(row []any) (*schema.TypeInfo, ir.Tuple, error) {
	if len(row) != len(t.Columns) {
		return nil, nil, fmt.Errorf("table %s: row has %d columns, want %d", t.Name, len(row), len(t.Columns))
	}
	id, ok := row[t.index[TypeIDColumn]].(int64)
	if !ok {
		return nil, nil, fmt.Errorf("table %s: bad %s %v", t.Name, TypeIDColumn, row[t.index[TypeIDColumn]])
	}
	typ, ok := t.TypeByID(id)
	if !ok {
		return nil, nil, fmt.Errorf("table %s: unknown %s %d", t.Name, TypeIDColumn, id)
	}
	layout := t.layouts[typ]
	tuple := make(ir.Tuple, len(layout))
	for i, name := range layout {
		col := t.index[name]
		v, err := FromColumn(row[col], t.Columns[col].Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("table %s column %s: %w", t.Name, name, err)
		}
		tuple[i] = v
	}
	return typ, tuple, nil
}

// CreateSQL returns the CREATE TABLE statement.
func (t *Table) CreateSQL() string {
	var defs []string
	for _, c := range t.Columns {
		def := quote(c.Name) + " " + sqlType(c.Kind)
		if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, "PRIMARY KEY ("+quoteList(t.KeyColumns())+")")
	for _, fk := range t.ForeignKeys {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteList(fk.Columns), quote(fk.Table), quoteList(fk.References)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(t.Name), strings.Join(defs, ", "))
}

func sqlType(k ir.Kind) string {
	switch k {
	case ir.KindInt, ir.KindBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteList(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return strings.Join(out, ", ")
}
