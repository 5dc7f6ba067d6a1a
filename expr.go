package flagdb

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Type tags what an expression yields.
type Type uint8

const (
	TypeInt Type = iota
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeInt:
		return "Int"
	case TypeBool:
		return "Bool"
	default:
		return "Unknown"
	}
}

// Row exposes the stored, still encoded, column values of one record.
type Row interface {
	Raw(column string) (uint64, bool)
}

// Expr is a query expression. It renders as SQL and evaluates in process
// against a Row; boolean expressions evaluate to 0 or 1.
type Expr interface {
	SQL() string
	Type() Type
	Eval(row Row) (uint64, error)
}

// ColumnRef is a flag column usable inside expressions.
type ColumnRef interface {
	Expr
	Name() string
	Flags() FlagSet
	Decode(raw uint64) FlagValue
}

// Truth evaluates e against row as a condition.
func Truth(e Expr, row Row) (bool, error) {
	v, err := e.Eval(row)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func boolInt(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Quote quotes an identifier with backticks.
func Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

type literal uint64

// Lit embeds an integer literal.
func Lit(v uint64) Expr { return literal(v) }

func (l literal) SQL() string              { return strconv.FormatUint(uint64(l), 10) }
func (literal) Type() Type                 { return TypeInt }
func (l literal) Eval(Row) (uint64, error) { return uint64(l), nil }

type binaryOp uint8

const (
	opBitAnd binaryOp = iota
	opEq
	opNe
)

type binaryExpr struct {
	op   binaryOp
	l, r Expr
}

// BitAnd is l & r.
func BitAnd(l, r Expr) Expr { return &binaryExpr{op: opBitAnd, l: l, r: r} }

// Eq is l = r.
func Eq(l, r Expr) Expr { return &binaryExpr{op: opEq, l: l, r: r} }

// Ne is l <> r.
func Ne(l, r Expr) Expr { return &binaryExpr{op: opNe, l: l, r: r} }

func (b *binaryExpr) SQL() string {
	switch b.op {
	case opBitAnd:
		return "(" + b.l.SQL() + " & " + b.r.SQL() + ")"
	case opEq:
		return b.l.SQL() + " = " + b.r.SQL()
	default:
		return b.l.SQL() + " <> " + b.r.SQL()
	}
}

func (b *binaryExpr) Type() Type {
	if b.op == opBitAnd {
		return TypeInt
	}
	return TypeBool
}

func (b *binaryExpr) Eval(row Row) (uint64, error) {
	l, err := b.l.Eval(row)
	if err != nil {
		return 0, err
	}
	r, err := b.r.Eval(row)
	if err != nil {
		return 0, err
	}
	switch b.op {
	case opBitAnd:
		return l & r, nil
	case opEq:
		return boolInt(l == r), nil
	default:
		return boolInt(l != r), nil
	}
}

type logical struct {
	and   bool
	terms []Expr
}

// And is true when every term is. An empty And is true.
func And(terms ...Expr) Expr { return &logical{and: true, terms: terms} }

// Or is true when any term is. An empty Or is false.
func Or(terms ...Expr) Expr { return &logical{terms: terms} }

func (l *logical) SQL() string {
	if len(l.terms) == 0 {
		if l.and {
			return "TRUE"
		}
		return "FALSE"
	}
	sep := " OR "
	if l.and {
		sep = " AND "
	}
	parts := make([]string, len(l.terms))
	for i, t := range l.terms {
		parts[i] = t.SQL()
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (*logical) Type() Type { return TypeBool }

func (l *logical) Eval(row Row) (uint64, error) {
	for _, t := range l.terms {
		ok, err := Truth(t, row)
		if err != nil {
			return 0, err
		}
		if ok != l.and {
			return boolInt(ok), nil
		}
	}
	return boolInt(l.and), nil
}

type not struct{ e Expr }

// Not negates a condition.
func Not(e Expr) Expr { return not{e} }

func (n not) SQL() string { return "NOT (" + n.e.SQL() + ")" }
func (not) Type() Type    { return TypeBool }

func (n not) Eval(row Row) (uint64, error) {
	ok, err := Truth(n.e, row)
	if err != nil {
		return 0, err
	}
	return boolInt(!ok), nil
}

// Named is an expression projected under its own name in a result row.
type Named struct {
	Alias string
	Expr  Expr
}

// As names e for a projection.
func As(alias string, e Expr) *Named { return &Named{Alias: alias, Expr: e} }

func (n *Named) SQL() string                  { return n.Expr.SQL() + " AS " + Quote(n.Alias) }
func (n *Named) Type() Type                   { return n.Expr.Type() }
func (n *Named) Eval(row Row) (uint64, error) { return n.Expr.Eval(row) }

// RowMap is a Row backed by a map, handy for evaluating expressions without a
// store.
type RowMap map[string]uint64

func (m RowMap) Raw(column string) (uint64, bool) {
	v, ok := m[column]
	return v, ok
}

func columnValue(row Row, name string) (uint64, error) {
	v, ok := row.Raw(name)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownColumn, "%q", name)
	}
	return v, nil
}
