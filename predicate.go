package flagdb

// Mask ORs together the bits of the named flags.
func Mask(fs FlagSet, names ...string) (uint64, error) {
	if len(names) == 0 {
		return 0, ErrNoFlags
	}
	v, err := fs.Value(names...)
	if err != nil {
		return 0, err
	}
	return fs.Encode(v), nil
}

// Predicate tests col for the named flags all being in the target state:
// (col & mask) = mask when target is true, (col & mask) = 0 when it is false.
// Mixed states take one Predicate per state joined with And.
func Predicate(col ColumnRef, target bool, names ...string) (Expr, error) {
	mask, err := Mask(col.Flags(), names...)
	if err != nil {
		return nil, err
	}
	want := Lit(0)
	if target {
		want = Lit(mask)
	}
	return Eq(BitAnd(col, Lit(mask)), want), nil
}

// F1 matches rows where every named flag of col is on.
func F1(col ColumnRef, names ...string) (Expr, error) {
	return Predicate(col, true, names...)
}

// F0 matches rows where every named flag of col is off.
func F0(col ColumnRef, names ...string) (Expr, error) {
	return Predicate(col, false, names...)
}

// Extras derives one boolean field per flag of col, in bit order, each named
// after its flag.
func Extras(col ColumnRef) []*Named {
	return ExtrasPrefixed(col, "")
}

// ExtrasPrefixed is Extras with every field name prefixed.
func ExtrasPrefixed(col ColumnRef, prefix string) []*Named {
	names := col.Flags().Names()
	extras := make([]*Named, len(names))
	for i, name := range names {
		extras[i] = As(prefix+name, Ne(BitAnd(col, Lit(Bit(i))), Lit(0)))
	}
	return extras
}
