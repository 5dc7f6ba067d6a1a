package flagdb

import (
	"testing"

	"github.com/pkg/errors"
	assertion "github.com/stretchr/testify/assert"
)

func TestExprEval(t *testing.T) {
	assert := assertion.New(t)
	col := MustColumn("c", "a", "b", "c")
	row := RowMap{"c": 6}

	v, err := BitAnd(col, Lit(4)).Eval(row)
	assert.NoError(err)
	assert.Equal(uint64(4), v)

	for _, c := range []struct {
		e    Expr
		want bool
	}{
		{Eq(col, Lit(6)), true},
		{Ne(col, Lit(6)), false},
		{Not(Eq(col, Lit(6))), false},
		{And(), true},
		{Or(), false},
		{And(Eq(col, Lit(6)), Ne(col, Lit(0))), true},
		{Or(Eq(col, Lit(1)), Eq(col, Lit(2))), false},
	} {
		ok, err := Truth(c.e, row)
		assert.NoError(err)
		assert.Equal(c.want, ok, c.e.SQL())
	}
}

func TestExprUnknownColumn(t *testing.T) {
	assert := assertion.New(t)
	col := MustColumn("c", "a")
	e, _ := F1(col, "a")
	_, err := Truth(e, RowMap{"other": 1})
	assert.True(errors.Is(err, ErrUnknownColumn))
}

func TestExprSQL(t *testing.T) {
	assert := assertion.New(t)
	col := MustColumn("we`ird", "a")
	assert.Equal("`we``ird`", col.SQL())
	assert.Equal("TRUE", And().SQL())
	assert.Equal("FALSE", Or().SQL())
	assert.Equal("NOT (`we``ird` = 1)", Not(Eq(col, Lit(1))).SQL())
	assert.Equal("(`we``ird` = 1 OR `we``ird` = 0)", Or(Eq(col, Lit(1)), Eq(col, Lit(0))).SQL())
	assert.Equal(TypeInt, BitAnd(col, Lit(1)).Type())
	assert.Equal("Bool", TypeBool.String())
}
