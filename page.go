package flagdb

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

const (
	// flagdbMagic = "FLDB" in littleEndian
	Magic   uint32 = 0x42444c46
	Version uint16 = 1

	// magic + version + compression + checksum + schema length
	headPageFixed = 4 + 2 + 2 + 4 + 4
)

// HeadPage starts every data file. Records follow it back to back.
type HeadPage struct {
	magic       uint32
	Version     uint16
	Compression CompressAlgorithm
	// crc32 of the fixed fields before it and the schema
	Checksum uint32
	// layout signature of the table the file belongs to
	Schema string
}

func newHeadPage(t *Table, comp CompressAlgorithm) *HeadPage {
	return &HeadPage{
		magic:       Magic,
		Version:     Version,
		Compression: comp,
		Schema:      t.signature(),
	}
}

// Size is the number of bytes the head page occupies on disk.
func (h *HeadPage) Size() int { return headPageFixed + len(h.Schema) }

func (h *HeadPage) Marshal() []byte {
	buf := make([]byte, h.Size())
	binary.LittleEndian.PutUint32(buf[0:], h.magic)
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	binary.LittleEndian.PutUint16(buf[6:], uint16(h.Compression))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(h.Schema)))
	copy(buf[headPageFixed:], h.Schema)
	h.Checksum = h.sum(buf)
	binary.LittleEndian.PutUint32(buf[8:], h.Checksum)
	return buf
}

func (h *HeadPage) sum(buf []byte) uint32 {
	crc := crc32.NewIEEE()
	_, _ = crc.Write(buf[:8])
	_, _ = crc.Write(buf[12:h.Size()])
	return crc.Sum32()
}

func (h *HeadPage) Unmarshal(data []byte) error {
	if len(data) < headPageFixed {
		return errors.Wrap(ErrCorrupt, "file shorter than head page")
	}
	h.magic = binary.LittleEndian.Uint32(data[0:])
	if h.magic != Magic {
		return errors.Wrapf(ErrCorrupt, "bad magic %#x", h.magic)
	}
	h.Version = binary.LittleEndian.Uint16(data[4:])
	if h.Version != Version {
		return errors.Wrapf(ErrCorrupt, "unsupported version %d", h.Version)
	}
	h.Compression = CompressAlgorithm(binary.LittleEndian.Uint16(data[6:]))
	h.Checksum = binary.LittleEndian.Uint32(data[8:])
	n := int(binary.LittleEndian.Uint32(data[12:]))
	if len(data) < headPageFixed+n {
		return errors.Wrap(ErrCorrupt, "truncated schema")
	}
	h.Schema = string(data[headPageFixed : headPageFixed+n])
	if sum := h.sum(data); sum != h.Checksum {
		return errors.Wrapf(ErrCorrupt, "head page checksum %#x, want %#x", sum, h.Checksum)
	}
	return nil
}
