package flagdb

// MaxFlags is the largest number of flags one column can hold.
const MaxFlags = 64

func Bit(i int) uint64             { return 1 << uint(i) }
func Set(b, flag uint64) uint64    { return b | flag }
func Clear(b, flag uint64) uint64  { return b &^ flag }
func Toggle(b, flag uint64) uint64 { return b ^ flag }
func Has(b, flag uint64) bool      { return b&flag != 0 }

// HasAll reports whether every bit of mask is set in b.
func HasAll(b, mask uint64) bool { return b&mask == mask }
