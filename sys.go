package flagdb

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var ErrWriteByOther = errors.New("db opened with write mode by another process")

// tryflock acquires an advisory lock on the data file without blocking.
func tryflock(db *DB) error {
	flag := unix.LOCK_SH
	if !db.readOnly {
		flag = unix.LOCK_EX
	}
	err := unix.Flock(int(db.file.Fd()), flag|unix.LOCK_NB)
	if err == nil {
		return nil
	} else if err == unix.EWOULDBLOCK || err == unix.EAGAIN { // linux & unix
		return ErrWriteByOther
	}
	return errors.Wrap(err, "flock failed: unknown error")
}

// flock waits up to timeout for the lock. A zero timeout fails at once when
// the file is held.
func flock(db *DB, timeout time.Duration) error {
	start := time.Now()
	for {
		err := tryflock(db)
		if !errors.Is(err, ErrWriteByOther) {
			return err
		}
		if timeout <= 0 || time.Since(start) > timeout {
			return err
		}
		// Wait for a bit and try again.
		time.Sleep(50 * time.Millisecond)
	}
}

// funlock releases an advisory lock on a file descriptor.
func funlock(db *DB) error {
	return unix.Flock(int(db.file.Fd()), unix.LOCK_UN)
}

// mmap maps the first sz bytes of the data file read-only.
func mmap(db *DB, sz int) error {
	b, err := unix.Mmap(int(db.file.Fd()), 0, sz, unix.PROT_READ, unix.MAP_SHARED|db.MmapFlags)
	if err != nil {
		return errors.Wrap(err, "mmap failed")
	}
	// Records are replayed front to back once.
	if err := unix.Madvise(b, unix.MADV_SEQUENTIAL); err != nil && err != unix.EINVAL {
		_ = unix.Munmap(b)
		return errors.Wrap(err, "madvise error")
	}
	db.dataref = b
	return nil
}

// munmap unmaps the data file from memory.
func munmap(db *DB) error {
	// Ignore the unmap if we have no mapped data.
	if db.dataref == nil {
		return nil
	}
	err := unix.Munmap(db.dataref)
	db.dataref = nil
	return err
}
