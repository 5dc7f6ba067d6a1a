package flagdb

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Table is an ordered set of flag columns stored together under one key.
type Table struct {
	name    string
	columns []*Column
	index   map[string]int
	rowSize int
}

// Record holds decoded column values by column name. Columns left out are
// stored with every flag off.
type Record map[string]FlagValue

func NewTable(name string, cols ...*Column) (*Table, error) {
	if name == "" {
		return nil, errors.New("table name is empty")
	}
	if len(cols) == 0 {
		return nil, errors.Errorf("table %q has no columns", name)
	}
	t := &Table{name: name, columns: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if _, ok := t.index[c.Name()]; ok {
			return nil, errors.Wrapf(ErrDuplicateColumn, "%q in table %q", c.Name(), name)
		}
		t.index[c.Name()] = i
		t.rowSize += int(c.Width())
	}
	return t, nil
}

func (t *Table) Name() string { return t.name }

// Columns returns the columns in storage order.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	if i, ok := t.index[name]; ok {
		return t.columns[i]
	}
	return nil
}

// RowSize is the number of bytes one stored row takes.
func (t *Table) RowSize() int { return t.rowSize }

// DDL renders a CREATE TABLE statement with a binary primary key.
func (t *Table) DDL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(Quote(t.name))
	b.WriteString(" (\n  `key` VARBINARY(255) NOT NULL PRIMARY KEY")
	for _, c := range t.columns {
		b.WriteString(",\n  ")
		b.WriteString(c.DDL())
	}
	b.WriteString("\n)")
	return b.String()
}

// signature identifies the on-disk layout: column names, widths and flags.
func (t *Table) signature() string {
	var b strings.Builder
	b.WriteString(t.name)
	b.WriteByte('(')
	for i, c := range t.columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c.Name())
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(int(c.Width())))
		b.WriteByte(':')
		b.WriteString(strings.Join(c.Flags().Names(), "|"))
	}
	b.WriteByte(')')
	return b.String()
}

// encode turns a record into raw column values in storage order. Flag names a
// column does not declare are rejected rather than stored as off.
func (t *Table) encode(rec Record) ([]uint64, error) {
	raw := make([]uint64, len(t.columns))
	for name, v := range rec {
		i, ok := t.index[name]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownColumn, "%q in table %q", name, t.name)
		}
		if err := t.columns[i].Flags().Check(v); err != nil {
			return nil, errors.WithMessagef(err, "column %q", name)
		}
		raw[i] = t.columns[i].Encode(v)
	}
	return raw, nil
}

func (t *Table) checkRaw(raw []uint64) error {
	if len(raw) != len(t.columns) {
		return errors.Errorf("table %q has %d columns, got %d values", t.name, len(t.columns), len(raw))
	}
	for i, c := range t.columns {
		if raw[i]&^c.Flags().Bits() != 0 {
			return errors.Wrapf(ErrOutOfRange, "column %q value %d", c.Name(), raw[i])
		}
	}
	return nil
}

func (t *Table) marshalRow(raw []uint64) []byte {
	buf := make([]byte, t.rowSize)
	off := 0
	for i, c := range t.columns {
		w := c.Width()
		w.Put(buf[off:], raw[i])
		off += int(w)
	}
	return buf
}

func (t *Table) unmarshalRow(data []byte) ([]uint64, error) {
	if len(data) != t.rowSize {
		return nil, errors.Wrapf(ErrCorrupt, "row is %d bytes, table %q needs %d", len(data), t.name, t.rowSize)
	}
	raw := make([]uint64, len(t.columns))
	off := 0
	for i, c := range t.columns {
		w := c.Width()
		raw[i] = w.Uint(data[off:])
		off += int(w)
	}
	return raw, nil
}
