package flagdb

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Column is a declared flag column. Its width and bit order are fixed when it
// is created.
type Column struct {
	name  string
	flags FlagSet
}

// NewColumn declares a column holding the given flags in bit order. Too many
// flags fail here, not on first use.
func NewColumn(name string, flags ...string) (*Column, error) {
	if name == "" {
		return nil, errors.New("column name is empty")
	}
	fs, err := NewFlagSet(flags...)
	if err != nil {
		return nil, errors.Wrapf(err, "column %q", name)
	}
	log.WithFields(log.Fields{
		"column": name,
		"flags":  fs.Len(),
		"type":   fs.Width().SQLType(),
	}).Debug("declared flag column")
	return &Column{name: name, flags: fs}, nil
}

// MustColumn is NewColumn that panics on error, for package-level declarations.
func MustColumn(name string, flags ...string) *Column {
	c, err := NewColumn(name, flags...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Column) Name() string    { return c.name }
func (c *Column) Flags() FlagSet  { return c.flags }
func (c *Column) Width() Width    { return c.flags.Width() }
func (c *Column) SQLType() string { return c.flags.Width().SQLType() }

func (c *Column) Encode(v FlagValue) uint64             { return c.flags.Encode(v) }
func (c *Column) Decode(raw uint64) FlagValue           { return c.flags.Decode(raw) }
func (c *Column) Value(on ...string) (FlagValue, error) { return c.flags.Value(on...) }

// DDL renders the column definition.
func (c *Column) DDL() string {
	return Quote(c.name) + " " + c.SQLType() + " NOT NULL DEFAULT 0"
}

func (c *Column) SQL() string { return Quote(c.name) }
func (*Column) Type() Type    { return TypeInt }

func (c *Column) Eval(row Row) (uint64, error) {
	return columnValue(row, c.name)
}

func (c *Column) String() string {
	return c.name + " " + c.SQLType() + " " + c.flags.String()
}
