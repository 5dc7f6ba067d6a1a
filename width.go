package flagdb

import "github.com/pkg/errors"

// Width is the number of bytes used to store an encoded flag column.
type Width uint8

const (
	Width1 Width = 1
	Width2 Width = 2
	Width3 Width = 3
	Width4 Width = 4
	Width8 Width = 8
)

// widths is walked in ascending order; the first width that holds n bits wins.
var widths = [...]Width{Width1, Width2, Width3, Width4, Width8}

// WidthFor returns the smallest storage width with room for n flag bits.
func WidthFor(n int) (Width, error) {
	if n < 1 {
		return 0, ErrEmptyFlagSet
	}
	for _, w := range widths {
		if w.Bits() >= n {
			return w, nil
		}
	}
	return 0, errors.Wrapf(ErrOverflow, "%d flags", n)
}

func (w Width) Bits() int { return int(w) * 8 }

// Max is the largest value the width can hold.
func (w Width) Max() uint64 {
	if w >= Width8 {
		return ^uint64(0)
	}
	return Bit(w.Bits()) - 1
}

// SQLType is the unsigned integer column type matching the width.
func (w Width) SQLType() string {
	switch w {
	case Width1:
		return "TINYINT UNSIGNED"
	case Width2:
		return "SMALLINT UNSIGNED"
	case Width3:
		return "MEDIUMINT UNSIGNED"
	case Width4:
		return "INT UNSIGNED"
	case Width8:
		return "BIGINT UNSIGNED"
	default:
		return "UNKNOWN"
	}
}

func (w Width) String() string { return w.SQLType() }

// Put writes v little-endian into the first w bytes of buf.
func (w Width) Put(buf []byte, v uint64) {
	_ = buf[w-1]
	for i := 0; i < int(w); i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

// Uint reads a little-endian value of w bytes from buf.
func (w Width) Uint(buf []byte) uint64 {
	_ = buf[w-1]
	var v uint64
	for i := 0; i < int(w); i++ {
		v |= uint64(buf[i]) << (8 * uint(i))
	}
	return v
}
