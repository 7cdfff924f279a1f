// Package store defines the boundary between the stratum handle layer and the
// underlying storage engine. Backends translate these calls into their native
// operations; the handle layer never touches engine objects directly.
package store

// Well-known database identifiers. Identifier 0 always refers to the engine's
// internal bookkeeping database (catalog and reclaimable-space records) and
// needs no open call. Identifier 1 is the default, unnamed database.
const (
	MetaDBI    uint32 = 0
	DefaultDBI uint32 = 1
)

// Database flag bits understood by every backend.
const (
	FlagCreate  uint32 = 1 << 0
	FlagDupSort uint32 = 1 << 1
)

// Write flag bits.
const (
	WriteNoOverwrite uint32 = 1 << 0
	WriteNoDupData   uint32 = 1 << 1
	WriteAppend      uint32 = 1 << 2
)

type Store interface {
	// Begin starts an engine transaction. Backends must support any number
	// of concurrent read transactions; write transaction concurrency is
	// whatever the engine provides.
	Begin(update bool) (Txn, error)
	Close() error
}

// Txn is a single engine transaction. Callers are responsible for
// serializing access to it; implementations may assume at most one call is
// in flight at a time.
type Txn interface {
	// OpenDBI resolves name to a database identifier, creating the database
	// when flags carries FlagCreate and update is true. The empty name
	// resolves to DefaultDBI.
	OpenDBI(name string, flags uint32, update bool) (uint32, error)

	// DBIFlags returns the flags the database was created with.
	DBIFlags(dbi uint32) (uint32, error)

	// Stat returns a statistics snapshot for the database.
	Stat(dbi uint32) (Stat, error)

	Get(dbi uint32, key []byte) ([]byte, error)
	Put(dbi uint32, key, val []byte, flags uint32) error

	// Reserve allocates an n-byte value slot for key and returns a buffer
	// the caller must fill before the transaction commits. The buffer stays
	// live for the remainder of the transaction.
	Reserve(dbi uint32, key []byte, n int, flags uint32) ([]byte, error)

	// Del removes entries for key. A nil val removes every entry; a non-nil
	// val removes only the entry whose value matches exactly.
	Del(dbi uint32, key, val []byte) error

	// Drop empties the database; when del is true the database definition
	// itself is removed from the catalog.
	Drop(dbi uint32, del bool) error

	OpenCursor(dbi uint32) (Cursor, error)

	Commit() error
	Rollback() error
}

type Cursor interface {
	// Seek positions the cursor at the first item with key >= the given key.
	// A nil key positions at the first item of the database.
	Seek(key []byte) error
	Next()
	Valid() bool
	Item() (Item, error)
	Close() error
}

type Item struct {
	Key, Value []byte
}

// Stat mirrors the statistics record engines keep per database. Backends
// without a page-oriented layout leave the page fields zero.
type Stat struct {
	PageSize      int
	Depth         int
	BranchPages   int
	LeafPages     int
	OverflowPages int
	Entries       int
}
