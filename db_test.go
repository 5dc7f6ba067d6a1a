package flagdb

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	assertion "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	notifications := MustColumn("notifications", "app", "newFeatures", "tips", "marketing", "newsletter")
	roles := MustColumn("roles", names(20)...)
	tbl, err := NewTable("users", notifications, roles)
	require.NoError(t, err)
	return tbl
}

func testPath(t *testing.T) string {
	dir, err := ioutil.TempDir("", "flagdb")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "test.fdb")
}

func TestNewTable(t *testing.T) {
	assert := assertion.New(t)
	tbl := testTable(t)
	assert.Equal(1+3, tbl.RowSize())
	assert.NotNil(tbl.Column("roles"))
	assert.Nil(tbl.Column("nope"))
	assert.Equal("users(notifications:1:app|newFeatures|tips|marketing|newsletter,roles:3:"+
		"f0|f1|f2|f3|f4|f5|f6|f7|f8|f9|f10|f11|f12|f13|f14|f15|f16|f17|f18|f19)", tbl.signature())

	_, err := NewTable("t")
	assert.Error(err)
	_, err = NewTable("t", MustColumn("a", "x"), MustColumn("a", "y"))
	assert.True(errors.Is(err, ErrDuplicateColumn))
}

func TestTableDDL(t *testing.T) {
	tbl := testTable(t)
	assertion.Equal(t, "CREATE TABLE `users` (\n"+
		"  `key` VARBINARY(255) NOT NULL PRIMARY KEY,\n"+
		"  `notifications` TINYINT UNSIGNED NOT NULL DEFAULT 0,\n"+
		"  `roles` MEDIUMINT UNSIGNED NOT NULL DEFAULT 0\n"+
		")", tbl.DDL())
}

func TestRowMarshal(t *testing.T) {
	assert := assertion.New(t)
	tbl := testTable(t)
	buf := tbl.marshalRow([]uint64{7, 0xabcdef})
	assert.Equal([]byte{0x07, 0xef, 0xcd, 0xab}, buf)
	raw, err := tbl.unmarshalRow(buf)
	assert.NoError(err)
	assert.Equal([]uint64{7, 0xabcdef}, raw)

	_, err = tbl.unmarshalRow(buf[:3])
	assert.True(errors.Is(err, ErrCorrupt))
}

func TestHeadPage(t *testing.T) {
	assert := assertion.New(t)
	tbl := testTable(t)
	h := newHeadPage(tbl, CompLz4)
	buf := h.Marshal()
	assert.Equal(h.Size(), len(buf))
	assert.Equal([]byte("FLDB"), buf[:4])

	h2 := &HeadPage{}
	assert.NoError(h2.Unmarshal(buf))
	assert.Equal(CompLz4, h2.Compression)
	assert.Equal(tbl.signature(), h2.Schema)

	buf[len(buf)-1] ^= 0xff
	assert.True(errors.Is(h2.Unmarshal(buf), ErrCorrupt))
	assert.True(errors.Is(h2.Unmarshal([]byte("nope")), ErrCorrupt))
}

func TestOpen(t *testing.T) {
	assert := assertion.New(t)
	testDB := testPath(t)
	tbl := testTable(t)

	// open un-exist with readonly
	db, err := Open(testDB, 0755, tbl, &Options{ReadOnly: true})
	assert.Nil(db)
	assert.Error(err)
	assert.True(os.IsNotExist(err))

	// open with create
	db, err = Open(testDB, 0755, tbl, nil)
	require.NoError(t, err)
	assert.Equal(CompSnappy, db.head.Compression)
	assert.Equal(db.head.Size(), db.filesz)
	assert.Equal(Magic, db.head.magic)

	// concurrent open with write and readonly
	dbr, err := Open(testDB, 0755, tbl, &Options{ReadOnly: true})
	assert.Nil(dbr)
	assert.Error(err)
	assert.True(errors.Is(err, ErrWriteByOther))

	assert.NoError(db.Close())

	// reopen with readonly
	db, err = Open(testDB, 0755, tbl, &Options{ReadOnly: true})
	require.NoError(t, err)
	assert.Equal(CompSnappy, db.head.Compression)
	assert.Equal(Magic, db.head.magic)

	// concurrent open with 2 readonly
	dbr, err = Open(testDB, 0755, tbl, &Options{ReadOnly: true})
	require.NoError(t, err)
	assert.Equal(0, dbr.Len())

	assert.True(errors.Is(db.Put([]byte("k"), nil), ErrDatabaseReadOnly))

	assert.NoError(db.Close())
	assert.NoError(dbr.Close())
	assert.NoError(db.Close())
}

func TestOpenSchemaMismatch(t *testing.T) {
	path := testPath(t)
	db, err := Open(path, 0644, testTable(t), nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	other, err := NewTable("users", MustColumn("notifications", "app", "tips"))
	require.NoError(t, err)
	_, err = Open(path, 0644, other, nil)
	assertion.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestPutGetReplay(t *testing.T) {
	for _, comp := range []CompressAlgorithm{CompSnappy, CompNone, CompLz4} {
		t.Run(comp.String(), func(t *testing.T) {
			assert := assertion.New(t)
			path := testPath(t)
			tbl := testTable(t)
			notifications := tbl.Column("notifications")

			db, err := Open(path, 0644, tbl, &Options{Compression: comp, NoSync: true})
			require.NoError(t, err)

			v, err := notifications.Value("app", "newFeatures", "tips")
			require.NoError(t, err)
			assert.NoError(db.Put([]byte("user:1"), Record{"notifications": v}))
			assert.NoError(db.PutRaw([]byte("user:2"), 16, 1<<19))
			assert.NoError(db.PutRaw([]byte("user:3"), 1, 0))
			assert.NoError(db.Delete([]byte("user:3")))
			assert.NoError(db.PutRaw([]byte("user:2"), 17, 1<<19))

			r, err := db.Get([]byte("user:1"))
			require.NoError(t, err)
			raw, ok := r.Raw("notifications")
			assert.True(ok)
			assert.Equal(uint64(7), raw)
			got, err := r.Flags("notifications")
			assert.NoError(err)
			assert.Equal(v, got)
			raw, _ = r.Raw("roles")
			assert.Equal(uint64(0), raw)
			assert.NoError(db.Close())

			db, err = Open(path, 0644, tbl, nil)
			require.NoError(t, err)
			defer db.Close()
			assert.Equal(comp, db.head.Compression)
			assert.Equal(2, db.Len())

			r, err = db.Get([]byte("user:1"))
			require.NoError(t, err)
			got, _ = r.Flags("notifications")
			assert.Equal(v, got)

			r, err = db.Get([]byte("user:2"))
			require.NoError(t, err)
			raw, _ = r.Raw("notifications")
			assert.Equal(uint64(17), raw)
			raw, _ = r.Raw("roles")
			assert.Equal(uint64(1<<19), raw)

			_, err = db.Get([]byte("user:3"))
			assert.True(errors.Is(err, ErrNotFound))
		})
	}
}

func TestPutErrors(t *testing.T) {
	assert := assertion.New(t)
	db, err := Open(testPath(t), 0644, testTable(t), &Options{NoSync: true})
	require.NoError(t, err)

	assert.True(errors.Is(db.Put([]byte("k"), Record{"nope": nil}), ErrUnknownColumn))
	assert.True(errors.Is(db.Put([]byte("k"), Record{"notifications": {{"tipz", true}}}), ErrUnknownFlag))
	assert.True(errors.Is(db.Put([]byte("k"), Record{"notifications": {{"tips", true}, {"tips", false}}}), ErrDuplicateFlag))
	assert.Equal(0, db.Len())
	assert.True(errors.Is(db.PutRaw([]byte("k"), 32, 0), ErrOutOfRange))
	assert.Error(db.PutRaw([]byte("k"), 1))
	assert.Error(db.Put(nil, Record{}))
	assert.True(errors.Is(db.Delete([]byte("missing")), ErrNotFound))

	assert.NoError(db.Close())
	assert.True(errors.Is(db.Put([]byte("k"), Record{}), ErrDatabaseClosed))
	_, err = db.Get([]byte("k"))
	assert.True(errors.Is(err, ErrDatabaseClosed))
}

func TestReplayDropsTornRecord(t *testing.T) {
	assert := assertion.New(t)
	path := testPath(t)
	tbl := testTable(t)
	db, err := Open(path, 0644, tbl, &Options{NoSync: true})
	require.NoError(t, err)
	require.NoError(t, db.PutRaw([]byte("a"), 1, 2))
	require.NoError(t, db.PutRaw([]byte("b"), 3, 4))
	good := db.filesz
	require.NoError(t, db.Close())

	// a record whose length promises more bytes than were written
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{40, 0, 1})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	db, err = Open(path, 0644, tbl, nil)
	require.NoError(t, err)
	assert.Equal(2, db.Len())
	assert.Equal(good, db.filesz)
	require.NoError(t, db.PutRaw([]byte("c"), 5, 6))
	require.NoError(t, db.Close())

	db, err = Open(path, 0644, tbl, nil)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(3, db.Len())
	r, err := db.Get([]byte("c"))
	require.NoError(t, err)
	raw, _ := r.Raw("roles")
	assert.Equal(uint64(6), raw)
}

func TestReplayCorruptRecord(t *testing.T) {
	path := testPath(t)
	tbl := testTable(t)
	db, err := Open(path, 0644, tbl, &Options{NoSync: true})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// checksums match but the record is too short to decode
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write(frame([]byte{0, 0}))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path, 0644, tbl, nil)
	assertion.True(t, errors.Is(err, ErrCorrupt))
}

func TestReplayCorruptMiddleRecord(t *testing.T) {
	assert := assertion.New(t)
	path := testPath(t)
	tbl := testTable(t)
	db, err := Open(path, 0644, tbl, &Options{Compression: CompNone, NoSync: true})
	require.NoError(t, err)
	var offsets []int
	for i, key := range []string{"a", "b", "c", "d"} {
		offsets = append(offsets, db.filesz)
		require.NoError(t, db.PutRaw([]byte(key), uint64(i), 0))
	}
	size := db.filesz
	require.NoError(t, db.Close())

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	corrupt := append([]byte(nil), data...)
	corrupt[offsets[1]] = 0x7f
	require.NoError(t, ioutil.WriteFile(path, corrupt, 0644))

	_, err = Open(path, 0644, tbl, nil)
	assert.True(errors.Is(err, ErrCorrupt))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(int64(size), info.Size())

	// a damaged body is also corrupt unless it is the last record
	corrupt = append([]byte(nil), data...)
	corrupt[offsets[2]-1] ^= 0xff
	require.NoError(t, ioutil.WriteFile(path, corrupt, 0644))
	_, err = Open(path, 0644, tbl, nil)
	assert.True(errors.Is(err, ErrCorrupt))

	corrupt = append([]byte(nil), data...)
	corrupt[len(corrupt)-1] ^= 0xff
	require.NoError(t, ioutil.WriteFile(path, corrupt, 0644))
	db, err = Open(path, 0644, tbl, nil)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(3, db.Len())
	assert.Equal(offsets[3], db.filesz)
}

func TestWriteFailureTruncates(t *testing.T) {
	assert := assertion.New(t)
	path := testPath(t)
	tbl := testTable(t)
	db, err := Open(path, 0644, tbl, &Options{NoSync: true})
	require.NoError(t, err)
	require.NoError(t, db.PutRaw([]byte("a"), 1, 2))
	good := db.filesz

	writeAt := db.ops.writeAt
	db.ops.writeAt = func(b []byte, off int64) (int, error) {
		n, _ := writeAt(b[:len(b)/2], off)
		return n, errors.New("disk full")
	}
	assert.Error(db.PutRaw([]byte("b-with-a-longer-key"), 3, 4))
	assert.Equal(good, db.filesz)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(int64(good), info.Size())
	_, err = db.Get([]byte("b-with-a-longer-key"))
	assert.True(errors.Is(err, ErrNotFound))

	db.ops.writeAt = writeAt
	require.NoError(t, db.PutRaw([]byte("c"), 5, 6))
	require.NoError(t, db.Close())

	db, err = Open(path, 0644, tbl, nil)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(2, db.Len())
}

func TestConcurrentAccess(t *testing.T) {
	tbl := testTable(t)
	notifications := tbl.Column("notifications")
	db, err := Open(testPath(t), 0644, tbl, &Options{NoSync: true})
	require.NoError(t, err)
	defer db.Close()
	on, err := F1(notifications, "app")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 3*4)
	for w := 0; w < 4; w++ {
		wg.Add(3)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := db.PutRaw([]byte(fmt.Sprintf("w%d:%d", w, i)), uint64(i%32), 0); err != nil {
					errs <- err
					return
				}
			}
		}(w)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := db.Get([]byte(fmt.Sprintf("w%d:%d", w, i))); err != nil && !errors.Is(err, ErrNotFound) {
					errs <- err
					return
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := db.Query().Where(on).Select(Extras(notifications)...).Rows(); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assertion.NoError(t, err)
	}

	assertion.Equal(t, 4*50, db.Len())
	rows, err := db.Query().Where(on).Rows()
	require.NoError(t, err)
	assertion.Len(t, rows, 4*25)
}
