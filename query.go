package flagdb

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Field is a named value projected into a result row.
type Field struct {
	Name  string
	Type  Type
	Value uint64
}

// Bool reports a boolean field as true when non-zero.
func (f Field) Bool() bool { return f.Value != 0 }

// Result is one row returned by Get or a Query. Column values stay encoded
// until read through Flags.
type Result struct {
	Key    []byte
	Fields []Field

	table *Table
	raw   []uint64
}

func newResult(t *Table, key []byte, raw []uint64, extras []*Named) (*Result, error) {
	r := &Result{Key: key, table: t, raw: raw}
	if len(extras) == 0 {
		return r, nil
	}
	r.Fields = make([]Field, len(extras))
	for i, n := range extras {
		v, err := n.Eval(r)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", n.Alias)
		}
		if n.Type() == TypeBool {
			v = boolInt(v != 0)
		}
		r.Fields[i] = Field{Name: n.Alias, Type: n.Type(), Value: v}
	}
	return r, nil
}

// Raw returns the stored integer of a column.
func (r *Result) Raw(column string) (uint64, bool) {
	i, ok := r.table.index[column]
	if !ok {
		return 0, false
	}
	return r.raw[i], true
}

// Flags decodes a column through its declaration.
func (r *Result) Flags(column string) (FlagValue, error) {
	i, ok := r.table.index[column]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownColumn, "%q", column)
	}
	return r.table.columns[i].Decode(r.raw[i]), nil
}

// Field returns a projected field by name.
func (r *Result) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Bool returns a projected field as a boolean.
func (r *Result) Bool(name string) (value, ok bool) {
	f, ok := r.Field(name)
	return f.Bool(), ok
}

// Query selects rows of a DB. Where conditions are ANDed.
type Query struct {
	db     *DB
	where  []Expr
	extras []*Named
	limit  int
}

func (db *DB) Query() *Query { return &Query{db: db} }

func (q *Query) Where(conds ...Expr) *Query {
	q.where = append(q.where, conds...)
	return q
}

// Select adds named fields to every result row.
func (q *Query) Select(fields ...*Named) *Query {
	q.extras = append(q.extras, fields...)
	return q
}

// Limit caps the number of rows returned; zero means no cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// SQL renders the query as a SELECT statement.
func (q *Query) SQL() string {
	return q.db.table.SelectSQL(q.where, q.extras, q.limit)
}

// SelectSQL renders a SELECT of every column plus extras, filtered by the
// ANDed conditions.
func (t *Table) SelectSQL(where []Expr, extras []*Named, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT `key`")
	for _, c := range t.columns {
		b.WriteString(", ")
		b.WriteString(c.SQL())
	}
	for _, n := range extras {
		b.WriteString(", ")
		b.WriteString(n.SQL())
	}
	b.WriteString(" FROM ")
	b.WriteString(Quote(t.name))
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(And(where...).SQL())
	}
	b.WriteString(" ORDER BY `key`")
	if limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(limit))
	}
	return b.String()
}

// Rows runs the query and returns matching rows in key order.
func (q *Query) Rows() ([]*Result, error) {
	db := q.db
	db.rwlock.RLock()
	defer db.rwlock.RUnlock()
	if !db.opened {
		return nil, ErrDatabaseClosed
	}

	keys := make([]string, 0, len(db.rows))
	for k := range db.rows {
		keys = append(keys, k)
	}
	sortKeys(keys, BytesComparator)

	cond := And(q.where...)
	var out []*Result
	for _, k := range keys {
		r := &Result{Key: []byte(k), table: db.table, raw: db.rows[k]}
		ok, err := Truth(cond, r)
		if err != nil {
			return nil, errors.Wrapf(err, "row %q", k)
		}
		if !ok {
			continue
		}
		if r, err = newResult(db.table, r.Key, r.raw, q.extras); err != nil {
			return nil, errors.Wrapf(err, "row %q", k)
		}
		out = append(out, r)
		if q.limit > 0 && len(out) >= q.limit {
			break
		}
	}
	return out, nil
}
