package flagdb

import "github.com/pkg/errors"

var (
	// ErrOverflow is returned when a flag set does not fit the widest storage width.
	ErrOverflow      = errors.New("too many flags: no storage width holds more than 64 bits")
	ErrEmptyFlagSet  = errors.New("flag set needs at least one flag")
	ErrDuplicateFlag = errors.New("duplicate flag name")
	ErrUnknownFlag   = errors.New("unknown flag name")
	ErrNoFlags       = errors.New("no flags selected")

	ErrUnknownColumn    = errors.New("unknown column")
	ErrDuplicateColumn  = errors.New("duplicate column name")
	ErrOutOfRange       = errors.New("value has bits beyond the column's flags")
	ErrNotFound         = errors.New("key not found")
	ErrDatabaseReadOnly = errors.New("database is in read-only mode")
	ErrDatabaseClosed   = errors.New("database not open")
	ErrSchemaMismatch   = errors.New("file was created for a different table layout")
	ErrCorrupt          = errors.New("corrupt database file")
)
