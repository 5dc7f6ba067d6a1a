package flagdb

import "github.com/pkg/errors"

// Encode packs v into an integer: bit i is set iff the i-th declared flag is on.
// Names missing from v count as off; names v holds that are not declared are
// ignored.
func (fs FlagSet) Encode(v FlagValue) uint64 {
	var raw uint64
	for _, f := range v {
		if !f.On {
			continue
		}
		if i, ok := fs.index[f.Name]; ok {
			raw = Set(raw, Bit(i))
		}
	}
	return raw
}

// EncodeMap is Encode for a plain map.
func (fs FlagSet) EncodeMap(m map[string]bool) uint64 {
	var raw uint64
	for i, name := range fs.names {
		if m[name] {
			raw = Set(raw, Bit(i))
		}
	}
	return raw
}

// Decode unpacks raw into a total FlagValue. Bits above the declared flags are
// ignored.
func (fs FlagSet) Decode(raw uint64) FlagValue {
	v := make(FlagValue, len(fs.names))
	for i, name := range fs.names {
		v[i] = Flag{Name: name, On: Has(raw, Bit(i))}
	}
	return v
}

// Value builds the FlagValue with exactly the named flags on.
func (fs FlagSet) Value(on ...string) (FlagValue, error) {
	v := fs.Decode(0)
	for _, name := range on {
		i, ok := fs.index[name]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownFlag, "%q not in %s", name, fs)
		}
		v[i].On = true
	}
	return v, nil
}

// Check reports names in v that fs does not declare, and names v holds twice.
func (fs FlagSet) Check(v FlagValue) error {
	seen := make(map[string]struct{}, len(v))
	for _, f := range v {
		if !fs.Has(f.Name) {
			return errors.Wrapf(ErrUnknownFlag, "%q not in %s", f.Name, fs)
		}
		if _, ok := seen[f.Name]; ok {
			return errors.Wrapf(ErrDuplicateFlag, "%q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}
