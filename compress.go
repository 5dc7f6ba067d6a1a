package flagdb

import (
	"bytes"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
)

type CompressAlgorithm uint16

const (
	CompSnappy CompressAlgorithm = iota // default
	CompNone
	CompLz4
)

func (c CompressAlgorithm) String() string {
	switch c {
	case CompSnappy:
		return "snappy"
	case CompNone:
		return "none"
	case CompLz4:
		return "lz4"
	default:
		return "unknown"
	}
}

type Compressor func([]byte) []byte
type DeCompressor func([]byte) ([]byte, error)

var (
	SnappyCompress Compressor = func(in []byte) []byte {
		return snappy.Encode(nil, in)
	}
	SnappyDeCompress DeCompressor = func(in []byte) ([]byte, error) {
		return snappy.Decode(nil, in)
	}
)

var (
	Lz4Compress Compressor = func(in []byte) []byte {
		buf := &bytes.Buffer{}
		writer := lz4.NewWriter(buf)
		writer.NoChecksum = true
		if _, err := writer.Write(in); err != nil {
			panic(err)
		}
		if err := writer.Close(); err != nil {
			panic(err)
		}
		return buf.Bytes()
	}

	Lz4DeCompress DeCompressor = func(in []byte) ([]byte, error) {
		buf := &bytes.Buffer{}
		reader := lz4.NewReader(bytes.NewReader(in))
		_, err := buf.ReadFrom(reader)
		return buf.Bytes(), err
	}
)

// codecFor returns the record compressor pair for an algorithm. CompNone
// yields nil functions.
func codecFor(c CompressAlgorithm) (Compressor, DeCompressor, error) {
	switch c {
	case CompSnappy:
		return SnappyCompress, SnappyDeCompress, nil
	case CompLz4:
		return Lz4Compress, Lz4DeCompress, nil
	case CompNone:
		return nil, nil, nil
	default:
		return nil, nil, errors.Errorf("unknown compression algorithm %d", c)
	}
}
