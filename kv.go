package flagdb

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

type KVFlag uint8

// minKVSize = flag + kLen + k + vLen = 1 + 1 + 1 + 1 = 4, a tombstone has no value
var minKVSize = 4

const (
	KVKeyPrefixed KVFlag = 1 << iota
	KVKeyCompressed
	KVValueCompressed
	// key was deleted, value is empty
	KVTombstone
)

// KVPair is one record of the data file: a row key and the packed column values.
type KVPair struct {
	Key   []byte
	Value []byte
	// Deleted marks a tombstone.
	Deleted bool
}

// Marshal encodes the pair. The key shares its prefix with prevKey, the key of
// the record written just before it.
func (kv KVPair) Marshal(prevKey []byte, compressor Compressor) []byte {
	var flag KVFlag
	prefixLen := getCommonPrefix(prevKey, kv.Key)
	if prefixLen > 0 {
		flag |= KVKeyPrefixed
	}
	if kv.Deleted {
		flag |= KVTombstone
	}
	key := kv.Key[prefixLen:]
	value := kv.Value
	if kv.Deleted {
		value = nil
	}
	if compressor != nil {
		if keyC := compressor(key); len(keyC) < len(key) {
			key = keyC
			flag |= KVKeyCompressed
		}
		if valueC := compressor(value); len(valueC) < len(value) {
			value = valueC
			flag |= KVValueCompressed
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, 2+2*binary.MaxVarintLen64+len(key)+len(value)))
	buf.WriteByte(byte(flag))
	if prefixLen > 0 {
		buf.WriteByte(prefixLen)
	}
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(key)))
	buf.Write(lenBuf[:n])
	buf.Write(key)
	n = binary.PutUvarint(lenBuf[:], uint64(len(value)))
	buf.Write(lenBuf[:n])
	buf.Write(value)
	return buf.Bytes()
}

func (kv *KVPair) clear() {
	kv.Key = nil
	kv.Value = nil
	kv.Deleted = false
}

func (kv *KVPair) Unmarshal(data, prevKey []byte, decompressor DeCompressor) (err error) {
	if data == nil {
		return errors.New("empty KV data")
	}
	if len(data) < minKVSize {
		return errors.Errorf("KV data less than min data size %d, flag + keyLen + key + valueLen", minKVSize)
	}
	reader := bytes.NewReader(data)
	var prefix, key, val []byte
	_flag, _ := reader.ReadByte()
	flag := KVFlag(_flag)
	if flag&KVKeyPrefixed != 0 {
		_prefixedLen, err := reader.ReadByte()
		if err != nil {
			return errors.Wrap(err, "failed to read prefix length")
		}
		prefixedLen := int(_prefixedLen)
		if len(prevKey) < prefixedLen {
			return errors.New("wrong prefixed key len")
		}
		prefix = prevKey[:prefixedLen]
	}
	if decompressor == nil && (flag&KVKeyCompressed != 0 || flag&KVValueCompressed != 0) {
		return errors.New("key is compressed but decompressor is nil")
	}
	if key, err = readChunk(reader); err != nil {
		return errors.Wrap(err, "failed to read key")
	}
	if val, err = readChunk(reader); err != nil {
		return errors.Wrap(err, "failed to read value")
	}

	if flag&KVKeyCompressed != 0 {
		key, err = decompressor(key)
		if err != nil {
			return errors.Wrap(err, "failed to decompress key")
		}
	}
	if flag&KVValueCompressed != 0 {
		val, err = decompressor(val)
		if err != nil {
			return errors.Wrap(err, "failed to decompress value")
		}
	}
	kv.Key = append(append(make([]byte, 0, len(prefix)+len(key)), prefix...), key...)
	kv.Value = val
	kv.Deleted = flag&KVTombstone != 0
	return nil
}

// readChunk reads a uvarint length followed by that many bytes.
func readChunk(reader *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, err
	}
	if n > uint64(reader.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

func getCommonPrefix(a, b []byte) (length uint8) {
	if a == nil || b == nil {
		return
	}
	for i, v := range b {
		if i >= len(a) || v != a[i] {
			return
		}
		length++
		if length >= 255 {
			return
		}
	}
	return
}
