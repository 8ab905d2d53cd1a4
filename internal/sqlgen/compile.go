package sqlgen

import (
	"fmt"
	"strings"

	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/persist"
	"github.com/roach88/uow/internal/schema"
)

// Statement is SQL text plus its positional parameters.
type Statement struct {
	SQL    string
	Params []any
}

// Compiler builds statements for one model.
type Compiler struct {
	model  *schema.Model
	tables []*Table
	byH    map[*schema.Hierarchy]*Table
}

// NewCompiler lays out one table per hierarchy of m.
func NewCompiler(m *schema.Model) (*Compiler, error) {
	c := &Compiler{model: m, byH: make(map[*schema.Hierarchy]*Table)}
	for _, h := range m.Hierarchies() {
		t, err := newTable(h)
		if err != nil {
			return nil, err
		}
		c.tables = append(c.tables, t)
		c.byH[h] = t
	}
	return c, nil
}

// Tables returns the tables in model order.
func (c *Compiler) Tables() []*Table { return c.tables }

// Table returns the table of h.
func (c *Compiler) Table(h *schema.Hierarchy) *Table { return c.byH[h] }

// CreateTables returns the DDL for every table.
func (c *Compiler) CreateTables() []string {
	out := make([]string, len(c.tables))
	for i, t := range c.tables {
		out[i] = t.CreateSQL()
	}
	return out
}

// Compile converts an action to a statement. It returns false for an
// update that writes no non-key column.
func (c *Compiler) Compile(a persist.Action) (Statement, bool, error) {
	typ := a.State.Type()
	t := c.byH[typ.Hierarchy]
	if t == nil {
		return Statement{}, false, fmt.Errorf("no table for %s", typ.Name)
	}
	switch a.Kind {
	case persist.Insert:
		return c.insert(t, typ, a.Values)
	case persist.Update:
		return c.update(t, typ, a.Values, a.Columns)
	case persist.Remove:
		return c.delete(t, a.Values)
	default:
		return Statement{}, false, fmt.Errorf("unsupported action kind: %s", a.Kind)
	}
}

func (c *Compiler) insert(t *Table, typ *schema.TypeInfo, values ir.Tuple) (Statement, bool, error) {
	layout := t.Layout(typ)
	if len(values) != len(layout) {
		return Statement{}, false, fmt.Errorf("insert %s: tuple width %d, want %d", typ.Name, len(values), len(layout))
	}
	cols := append([]string{TypeIDColumn}, layout...)
	params := make([]any, 0, len(cols))
	params = append(params, int64(typ.ID))
	for _, v := range values {
		p, err := ToParam(v)
		if err != nil {
			return Statement{}, false, fmt.Errorf("insert %s: %w", typ.Name, err)
		}
		params = append(params, p)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(t.Name), quoteList(cols), placeholders(len(cols)))
	return Statement{SQL: sql, Params: params}, true, nil
}

func (c *Compiler) update(t *Table, typ *schema.TypeInfo, values ir.Tuple, columns []int) (Statement, bool, error) {
	layout := t.Layout(typ)
	arity := t.Hierarchy.Key.Arity()
	if len(values) < arity {
		return Statement{}, false, fmt.Errorf("update %s: tuple has no key", typ.Name)
	}
	var sets []string
	var params []any
	for _, idx := range columns {
		if idx < arity {
			continue
		}
		if idx >= len(layout) || idx >= len(values) {
			return Statement{}, false, fmt.Errorf("update %s: column index %d out of range", typ.Name, idx)
		}
		p, err := ToParam(values[idx])
		if err != nil {
			return Statement{}, false, fmt.Errorf("update %s: %w", typ.Name, err)
		}
		sets = append(sets, quote(layout[idx])+" = ?")
		params = append(params, p)
	}
	if len(sets) == 0 {
		return Statement{}, false, nil
	}
	where, keyParams, err := keyPredicate(t.KeyColumns(), values.Slice(0, arity))
	if err != nil {
		return Statement{}, false, fmt.Errorf("update %s: %w", typ.Name, err)
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quote(t.Name), strings.Join(sets, ", "), where)
	return Statement{SQL: sql, Params: append(params, keyParams...)}, true, nil
}

func (c *Compiler) delete(t *Table, keyValues ir.Tuple) (Statement, bool, error) {
	where, params, err := keyPredicate(t.KeyColumns(), keyValues)
	if err != nil {
		return Statement{}, false, fmt.Errorf("delete from %s: %w", t.Name, err)
	}
	return Statement{SQL: fmt.Sprintf("DELETE FROM %s WHERE %s", quote(t.Name), where), Params: params}, true, nil
}

// SelectRow reads one row of h by key. The first result column is type_id,
// followed by every table column in table order.
func (c *Compiler) SelectRow(h *schema.Hierarchy, keyValues ir.Tuple) (Statement, error) {
	t := c.byH[h]
	if t == nil {
		return Statement{}, fmt.Errorf("no table for %s", h.Name())
	}
	where, params, err := keyPredicate(t.KeyColumns(), keyValues)
	if err != nil {
		return Statement{}, fmt.Errorf("select from %s: %w", t.Name, err)
	}
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", quoteList(names), quote(t.Name), where)
	return Statement{SQL: sql, Params: params}, nil
}

// Count counts the rows of h.
func (c *Compiler) Count(h *schema.Hierarchy) Statement {
	return Statement{SQL: fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(h.Name()))}
}

// Members selects the key columns of every member of the collection f
// owned by the entity with key owner. The result's type is the member type.
func (c *Compiler) Members(f *schema.FieldInfo, owner ir.Tuple) (Statement, *schema.TypeInfo, error) {
	if f.Kind != schema.FieldCollection || f.Association == nil {
		return Statement{}, nil, fmt.Errorf("%s is not a collection", f)
	}
	a := f.Association
	switch {
	case a.Multiplicity == schema.OneToMany:
		ref := a.Reversed.OwnerField
		table := c.byH[a.TargetType.Hierarchy]
		where, params, err := keyPredicate(columnNames(ref.Columns), owner)
		if err != nil {
			return Statement{}, nil, fmt.Errorf("members of %s: %w", f, err)
		}
		if !a.TargetType.Hierarchy.IsSingleType() {
			ids := subtypeIDs(a.TargetType)
			where += fmt.Sprintf(" AND %s IN (%s)", quote(TypeIDColumn), placeholders(len(ids)))
			params = append(params, ids...)
		}
		keys := table.KeyColumns()
		sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
			quoteList(keys), quote(table.Name), where, orderBy(keys))
		return Statement{SQL: sql, Params: params}, a.TargetType, nil

	case a.Multiplicity == schema.ManyToMany && a.Auxiliary != nil:
		aux := a.Auxiliary
		ownerField, targetField := mustField(aux, "owner"), mustField(aux, "target")
		if a.IsPaired() {
			ownerField, targetField = targetField, ownerField
		}
		where, params, err := keyPredicate(columnNames(ownerField.Columns), owner)
		if err != nil {
			return Statement{}, nil, fmt.Errorf("members of %s: %w", f, err)
		}
		cols := columnNames(targetField.Columns)
		sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
			quoteList(cols), quote(aux.Name), where, orderBy(cols))
		return Statement{SQL: sql, Params: params}, a.TargetType, nil

	default:
		return Statement{}, nil, fmt.Errorf("unsupported collection %s (%s)", f, a.Multiplicity)
	}
}

func mustField(t *schema.TypeInfo, name string) *schema.FieldInfo {
	f, ok := t.Field(name)
	if !ok {
		panic(fmt.Sprintf("sqlgen: %s has no field %q", t.Name, name))
	}
	return f
}

func subtypeIDs(t *schema.TypeInfo) []any {
	var ids []any
	for _, typ := range t.Hierarchy.Types {
		if typ.IsSubtypeOf(t) {
			ids = append(ids, int64(typ.ID))
		}
	}
	return ids
}

func keyPredicate(cols []string, values ir.Tuple) (string, []any, error) {
	if len(cols) != len(values) {
		return "", nil, fmt.Errorf("key has %d values, want %d", len(values), len(cols))
	}
	parts := make([]string, len(cols))
	params := make([]any, len(cols))
	for i, col := range cols {
		p, err := ToParam(values[i])
		if err != nil {
			return "", nil, err
		}
		parts[i] = quote(col) + " = ?"
		params[i] = p
	}
	return strings.Join(parts, " AND "), params, nil
}

func orderBy(cols []string) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = quote(col) + " ASC"
	}
	return strings.Join(parts, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
