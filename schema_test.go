package flagdb

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	assertion "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersSchema = `
name = "users"

[[columns]]
name = "notifications"
flags = ["app", "newFeatures", "tips", "marketing", "newsletter"]

[[columns]]
name = "roles"
flags = ["admin", "editor"]
`

func TestParseSchema(t *testing.T) {
	assert := assertion.New(t)
	tbl, err := ParseSchema([]byte(usersSchema))
	require.NoError(t, err)
	assert.Equal("users", tbl.Name())
	require.Len(t, tbl.Columns(), 2)
	assert.Equal([]string{"app", "newFeatures", "tips", "marketing", "newsletter"},
		tbl.Column("notifications").Flags().Names())
	assert.Equal(Width1, tbl.Column("roles").Width())

	data, err := MarshalSchema(tbl)
	require.NoError(t, err)
	again, err := ParseSchema(data)
	require.NoError(t, err)
	assert.Equal(tbl.signature(), again.signature())
}

func TestParseSchemaErrors(t *testing.T) {
	assert := assertion.New(t)
	_, err := ParseSchema([]byte("name = "))
	assert.Error(err)

	_, err = ParseSchema([]byte(`
name = "t"
[[columns]]
name = "c"
flags = ["a", "a"]
`))
	assert.True(errors.Is(err, ErrDuplicateFlag))

	_, err = ParseSchema([]byte(`
name = "t"
[[columns]]
name = "c"
flags = []
`))
	assert.True(errors.Is(err, ErrEmptyFlagSet))
}

func TestLoadSchema(t *testing.T) {
	assert := assertion.New(t)
	path := filepath.Join(filepath.Dir(testPath(t)), "users.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(usersSchema), 0644))
	tbl, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal("users", tbl.Name())

	_, err = LoadSchema(path + ".missing")
	assert.Error(err)
}
