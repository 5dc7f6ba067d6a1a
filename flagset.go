package flagdb

import (
	"strings"

	"github.com/pkg/errors"
)

// FlagSet is the ordered, immutable list of flag names declared for a column.
// The index of a name is its bit position.
type FlagSet struct {
	names []string
	index map[string]int
	width Width
}

// NewFlagSet validates names and fixes their order. It fails when names is
// empty, holds a duplicate, or is longer than MaxFlags.
func NewFlagSet(names ...string) (FlagSet, error) {
	width, err := WidthFor(len(names))
	if err != nil {
		return FlagSet{}, err
	}
	fs := FlagSet{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
		width: width,
	}
	for i, name := range names {
		if name == "" {
			return FlagSet{}, errors.Errorf("flag %d has an empty name", i)
		}
		if _, ok := fs.index[name]; ok {
			return FlagSet{}, errors.Wrapf(ErrDuplicateFlag, "%q", name)
		}
		fs.names[i] = name
		fs.index[name] = i
	}
	return fs, nil
}

// Names returns a copy of the flag names in bit order.
func (fs FlagSet) Names() []string {
	out := make([]string, len(fs.names))
	copy(out, fs.names)
	return out
}

func (fs FlagSet) Len() int     { return len(fs.names) }
func (fs FlagSet) Width() Width { return fs.width }

// Index returns the bit position of name.
func (fs FlagSet) Index(name string) (int, bool) {
	i, ok := fs.index[name]
	return i, ok
}

func (fs FlagSet) Has(name string) bool {
	_, ok := fs.index[name]
	return ok
}

// Bits is the mask with every declared flag set.
func (fs FlagSet) Bits() uint64 {
	if len(fs.names) == MaxFlags {
		return ^uint64(0)
	}
	return Bit(len(fs.names)) - 1
}

func (fs FlagSet) String() string {
	return "[" + strings.Join(fs.names, " ") + "]"
}

// Flag is one named boolean of a FlagValue.
type Flag struct {
	Name string
	On   bool
}

// FlagValue is the decoded form of an encoded column: one entry per declared
// flag, in declaration order.
type FlagValue []Flag

// Get returns the state of name and whether name is present.
func (v FlagValue) Get(name string) (on, ok bool) {
	for _, f := range v {
		if f.Name == name {
			return f.On, true
		}
	}
	return false, false
}

// Map copies v into a plain map. Order is lost.
func (v FlagValue) Map() map[string]bool {
	m := make(map[string]bool, len(v))
	for _, f := range v {
		m[f.Name] = f.On
	}
	return m
}

// On lists the names that are set, in order.
func (v FlagValue) On() []string {
	var on []string
	for _, f := range v {
		if f.On {
			on = append(on, f.Name)
		}
	}
	return on
}

func (v FlagValue) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range v {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		if f.On {
			b.WriteString(":true")
		} else {
			b.WriteString(":false")
		}
	}
	b.WriteByte('}')
	return b.String()
}
