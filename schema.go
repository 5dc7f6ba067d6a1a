package flagdb

import (
	"io/ioutil"

	toml "github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// SchemaFile is the TOML form of a table declaration:
//
//	name = "users"
//
//	[[columns]]
//	name = "notifications"
//	flags = ["app", "newFeatures", "tips", "marketing", "newsletter"]
type SchemaFile struct {
	Name    string         `toml:"name"`
	Columns []SchemaColumn `toml:"columns"`
}

type SchemaColumn struct {
	Name  string   `toml:"name"`
	Flags []string `toml:"flags"`
}

// ParseSchema declares the table described by a TOML document.
func ParseSchema(data []byte) (*Table, error) {
	var sf SchemaFile
	if err := toml.Unmarshal(data, &sf); err != nil {
		return nil, errors.Wrap(err, "parse schema")
	}
	return sf.Table()
}

// LoadSchema reads and parses a schema file.
func LoadSchema(path string) (*Table, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read schema")
	}
	t, err := ParseSchema(data)
	if err != nil {
		return nil, errors.Wrapf(err, "schema %s", path)
	}
	return t, nil
}

// Table declares the columns of the schema.
func (sf SchemaFile) Table() (*Table, error) {
	cols := make([]*Column, 0, len(sf.Columns))
	for _, sc := range sf.Columns {
		c, err := NewColumn(sc.Name, sc.Flags...)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return NewTable(sf.Name, cols...)
}

// MarshalSchema renders t back into its TOML form.
func MarshalSchema(t *Table) ([]byte, error) {
	sf := SchemaFile{Name: t.Name()}
	for _, c := range t.Columns() {
		sf.Columns = append(sf.Columns, SchemaColumn{Name: c.Name(), Flags: c.Flags().Names()})
	}
	return toml.Marshal(sf)
}
