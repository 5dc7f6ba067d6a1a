package flagdb

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// IgnoreNoSync forces fsync on platforms where skipping it is unsafe.
const IgnoreNoSync = runtime.GOOS == "openbsd"

// Options represents the options that can be set when opening a database.
type Options struct {
	// Timeout is the amount of time to wait to obtain a file lock.
	// When set to zero the lock is tried once.
	Timeout time.Duration

	// Open database in read-only mode. Uses flock(..., LOCK_SH |LOCK_NB) to
	// grab a shared lock (UNIX).
	ReadOnly bool

	// Sets the DB.NoSync flag.
	NoSync bool

	// Compression applies to records of a newly created file. An existing
	// file keeps the algorithm it was created with.
	Compression CompressAlgorithm

	// Sets the DB.MmapFlags flag before memory mapping the file.
	MmapFlags int
}

var DefaultOptions = &Options{
	Timeout:     0,
	Compression: CompSnappy,
}

// DB is a single-file store for the rows of one Table. Rows are appended to
// the file as records and indexed in memory; the file is replayed on open.
type DB struct {
	// Setting the NoSync flag will cause the database to skip fsync()
	// calls after each write. If the package global IgnoreNoSync constant
	// is true, this value is ignored.
	NoSync bool

	// MmapFlags is or'ed into the flags used to map the file during replay.
	MmapFlags int

	path     string
	file     *os.File
	dataref  []byte // mmap'ed readonly while replaying
	filesz   int    // current on disk file size
	opened   bool
	readOnly bool

	rwlock sync.RWMutex

	ops struct {
		writeAt func(b []byte, off int64) (n int, err error)
	}

	table      *Table
	head       *HeadPage
	compress   Compressor
	decompress DeCompressor

	rows    map[string][]uint64
	lastKey []byte
}

// Open opens the data file at path for table, creating it when missing.
func Open(path string, mode os.FileMode, table *Table, options *Options) (*DB, error) {
	if table == nil {
		return nil, errors.New("nil table")
	}
	var db = &DB{opened: true, table: table, rows: make(map[string][]uint64)}

	// Set default options if no options are provided.
	if options == nil {
		options = DefaultOptions
	}
	db.NoSync = options.NoSync
	db.MmapFlags = options.MmapFlags

	flag := os.O_RDWR
	if options.ReadOnly {
		flag = os.O_RDONLY
		db.readOnly = true
	}

	db.path = path
	var err error
	if db.file, err = os.OpenFile(db.path, flag, mode); err != nil {
		if os.IsNotExist(err) && db.readOnly {
			_ = db.close()
			return nil, err
		}
		if db.file, err = os.OpenFile(db.path, flag|os.O_CREATE, mode); err != nil {
			_ = db.close()
			return nil, err
		}
	}

	// Lock file so that other processes using in read-write mode cannot
	// use the database at the same time. Read-only handles share the lock.
	if err := flock(db, options.Timeout); err != nil {
		_ = db.close()
		return nil, err
	}

	// Default values for test hooks
	db.ops.writeAt = db.file.WriteAt

	info, err := db.file.Stat()
	if err != nil {
		_ = db.close()
		return nil, errors.Wrap(err, "stat data file")
	}
	if info.Size() == 0 {
		if db.readOnly {
			_ = db.close()
			return nil, errors.Wrap(ErrCorrupt, "empty file opened read-only")
		}
		err = db.init(options.Compression)
	} else {
		err = db.load(int(info.Size()))
	}
	if err != nil {
		_ = db.close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"path":        path,
		"table":       table.Name(),
		"rows":        len(db.rows),
		"compression": db.head.Compression,
		"readOnly":    db.readOnly,
	}).Info("opened flag database")
	return db, nil
}

// init writes the head page of a new file.
func (db *DB) init(comp CompressAlgorithm) error {
	head := newHeadPage(db.table, comp)
	if err := db.setCodec(comp); err != nil {
		return err
	}
	buf := head.Marshal()
	if _, err := db.ops.writeAt(buf, 0); err != nil {
		return errors.Wrap(err, "write head page")
	}
	if err := db.file.Sync(); err != nil {
		return errors.Wrap(err, "sync head page")
	}
	db.head = head
	db.filesz = len(buf)
	return nil
}

func (db *DB) setCodec(comp CompressAlgorithm) (err error) {
	db.compress, db.decompress, err = codecFor(comp)
	return err
}

// load maps an existing file and replays its records.
func (db *DB) load(sz int) error {
	if err := mmap(db, sz); err != nil {
		return err
	}
	defer func() {
		if err := munmap(db); err != nil {
			log.WithError(err).Warn("munmap failed")
		}
	}()

	head := &HeadPage{}
	if err := head.Unmarshal(db.dataref); err != nil {
		return err
	}
	if want := db.table.signature(); head.Schema != want {
		return errors.Wrapf(ErrSchemaMismatch, "file has %s, table is %s", head.Schema, want)
	}
	if err := db.setCodec(head.Compression); err != nil {
		return errors.Wrap(ErrCorrupt, err.Error())
	}
	db.head = head

	end, records, err := db.replay(db.dataref[head.Size():sz])
	if err != nil {
		return err
	}
	db.filesz = head.Size() + end
	if db.filesz < sz {
		// A torn record at the tail is dropped; it was never acknowledged.
		log.WithFields(log.Fields{
			"path":    db.path,
			"dropped": sz - db.filesz,
		}).Warn("truncating incomplete record at end of file")
		if !db.readOnly {
			if err := db.file.Truncate(int64(db.filesz)); err != nil {
				return errors.Wrap(err, "truncate torn record")
			}
		}
	}
	log.WithFields(log.Fields{"path": db.path, "records": records}).Debug("replayed records")
	return nil
}

// frameHeader is the checksum pair that follows a record's uvarint length:
// the CRC32 of the record, then the CRC32 of the length and record checksum.
const frameHeader = 8

// frame wraps rec for the data file. The header checksum vouches for the
// length, so a damaged length is told apart from a record cut off by a crash.
func frame(rec []byte) []byte {
	buf := make([]byte, binary.MaxVarintLen64+frameHeader, binary.MaxVarintLen64+frameHeader+len(rec))
	n := binary.PutUvarint(buf, uint64(len(rec)))
	binary.LittleEndian.PutUint32(buf[n:], crc32.ChecksumIEEE(rec))
	binary.LittleEndian.PutUint32(buf[n+4:], crc32.ChecksumIEEE(buf[:n+4]))
	return append(buf[:n+frameHeader], rec...)
}

// replay applies records in data to the index. It returns the length of the
// complete records it consumed. Only the last frame may be incomplete; any
// other damage is ErrCorrupt.
func (db *DB) replay(data []byte) (end, records int, err error) {
	var kv KVPair
	for end < len(data) {
		off := db.head.Size() + end
		n, k := binary.Uvarint(data[end:])
		if k < 0 {
			return end, records, errors.Wrapf(ErrCorrupt, "record length at offset %d overflows", off)
		}
		if k == 0 || len(data)-end < k+frameHeader {
			// length or checksums cut off by the end of the file
			return end, records, nil
		}
		hdr := data[end : end+k+frameHeader]
		if crc32.ChecksumIEEE(hdr[:k+4]) != binary.LittleEndian.Uint32(hdr[k+4:]) {
			return end, records, errors.Wrapf(ErrCorrupt, "record header at offset %d", off)
		}
		start := end + k + frameHeader
		if uint64(len(data)-start) < n {
			return end, records, nil
		}
		rec := data[start : start+int(n)]
		if crc32.ChecksumIEEE(rec) != binary.LittleEndian.Uint32(hdr[k:]) {
			if start+int(n) == len(data) {
				return end, records, nil
			}
			return end, records, errors.Wrapf(ErrCorrupt, "record checksum at offset %d", off)
		}
		kv.clear()
		if err := kv.Unmarshal(rec, db.lastKey, db.decompress); err != nil {
			return end, records, errors.Wrapf(ErrCorrupt, "record at offset %d: %v", off, err)
		}
		if kv.Deleted {
			delete(db.rows, string(kv.Key))
		} else {
			raw, err := db.table.unmarshalRow(kv.Value)
			if err != nil {
				return end, records, err
			}
			db.rows[string(kv.Key)] = raw
		}
		db.lastKey = kv.Key
		end = start + int(n)
		records++
	}
	return end, records, nil
}

// Close releases the file lock and closes the data file.
func (db *DB) Close() error {
	db.rwlock.Lock()
	defer db.rwlock.Unlock()
	return db.close()
}

func (db *DB) close() error {
	if !db.opened {
		return nil
	}

	db.opened = false

	// Clear ops.
	db.ops.writeAt = nil

	if err := munmap(db); err != nil {
		return err
	}

	// Close file handles.
	if db.file != nil {
		if err := funlock(db); err != nil {
			log.WithError(err).WithField("path", db.path).Warn("funlock error")
		}

		// Close the file descriptor.
		if err := db.file.Close(); err != nil {
			return errors.Wrap(err, "db file closed")
		}
		db.file = nil
	}

	db.path = ""
	db.rows = nil
	return nil
}

func (db *DB) Path() string  { return db.path }
func (db *DB) Table() *Table { return db.table }

// Len returns the number of live rows.
func (db *DB) Len() int {
	db.rwlock.RLock()
	defer db.rwlock.RUnlock()
	return len(db.rows)
}

// Put stores rec under key, replacing any previous row.
func (db *DB) Put(key []byte, rec Record) error {
	raw, err := db.table.encode(rec)
	if err != nil {
		return err
	}
	return db.write(key, raw, false)
}

// PutRaw stores already encoded column values, one per column in table order.
func (db *DB) PutRaw(key []byte, raw ...uint64) error {
	if err := db.table.checkRaw(raw); err != nil {
		return err
	}
	return db.write(key, append([]uint64(nil), raw...), false)
}

// Delete removes the row stored under key.
func (db *DB) Delete(key []byte) error {
	return db.write(key, nil, true)
}

func (db *DB) write(key []byte, raw []uint64, deleted bool) error {
	if len(key) == 0 {
		return errors.New("empty key")
	}
	db.rwlock.Lock()
	defer db.rwlock.Unlock()
	if !db.opened {
		return ErrDatabaseClosed
	}
	if db.readOnly {
		return ErrDatabaseReadOnly
	}
	if deleted {
		if _, ok := db.rows[string(key)]; !ok {
			return errors.Wrapf(ErrNotFound, "%q", key)
		}
	}

	kv := KVPair{Key: key, Deleted: deleted}
	if !deleted {
		kv.Value = db.table.marshalRow(raw)
	}
	buf := frame(kv.Marshal(db.lastKey, db.compress))
	if _, err := db.ops.writeAt(buf, int64(db.filesz)); err != nil {
		db.rollback()
		return errors.Wrap(err, "append record")
	}
	if !db.NoSync || IgnoreNoSync {
		if err := db.file.Sync(); err != nil {
			db.rollback()
			return errors.Wrap(err, "sync record")
		}
	}
	db.filesz += len(buf)
	db.lastKey = append([]byte(nil), key...)
	if deleted {
		delete(db.rows, string(key))
	} else {
		db.rows[string(key)] = raw
	}
	return nil
}

// rollback drops whatever part of a failed append reached the file.
func (db *DB) rollback() {
	if err := db.file.Truncate(int64(db.filesz)); err != nil {
		log.WithError(err).WithField("path", db.path).Error("truncate after failed append")
	}
}

// Get returns the row stored under key.
func (db *DB) Get(key []byte) (*Result, error) {
	db.rwlock.RLock()
	defer db.rwlock.RUnlock()
	if !db.opened {
		return nil, ErrDatabaseClosed
	}
	raw, ok := db.rows[string(key)]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q", key)
	}
	return newResult(db.table, append([]byte(nil), key...), raw, nil)
}
