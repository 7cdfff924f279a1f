package stratum

import (
	"sync/atomic"

	"github.com/stratumdb/stratum/store"
)

// Database is a read-capable handle to one database inside a transaction.
// It holds the identifier the engine assigned on open and a shared reference
// to the transaction's guard; any number of handles may share one guard.
// A handle must not be used after its transaction ends: operations then
// return ErrTxnDone.
type Database struct {
	dbi   uint32
	guard *txnGuard

	// dropped is atomic because handles may be shared across goroutines
	// while Drop runs on one of them.
	dropped atomic.Bool
}

func (db *Database) execute(fn func(store.Txn) error) error {
	if db.dropped.Load() {
		return ErrDatabaseDropped
	}
	return db.guard.execute(fn)
}

// DBI returns the identifier the engine assigned to this database. The
// identifier must not be used beyond the handle's own lifetime.
func (db *Database) DBI() uint32 {
	return db.dbi
}

// Flags returns the flags the database was created with, as currently
// stored by the engine.
func (db *Database) Flags() (DatabaseFlags, error) {
	var flags uint32
	err := db.execute(func(txn store.Txn) error {
		var err error
		flags, err = txn.DBIFlags(db.dbi)
		return err
	})
	if err != nil {
		return 0, wrapErr(err)
	}
	return DatabaseFlags(flags), nil
}

// Stat returns a statistics snapshot for the database.
func (db *Database) Stat() (*Stat, error) {
	var s store.Stat
	err := db.execute(func(txn store.Txn) error {
		var err error
		s, err = txn.Stat(db.dbi)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return statFromStore(s), nil
}

// Get returns the value stored for key, or ErrNotFound. On a DupSort
// database the first duplicate in value order is returned.
func (db *Database) Get(key []byte) ([]byte, error) {
	var val []byte
	err := db.execute(func(txn store.Txn) error {
		var err error
		val, err = txn.Get(db.dbi, key)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return val, nil
}

// Cursor opens a cursor on the database. The cursor shares the handle's
// guard and capability and is valid for the remainder of the transaction.
func (db *Database) Cursor() (*Cursor, error) {
	return newCursor(db)
}

// RWDatabase is a write-capable handle. It is only constructible from an
// RWTxn, so mutating operations cannot be reached through a read-only
// transaction.
type RWDatabase struct {
	Database
}

// Put stores a value for key.
func (db *RWDatabase) Put(key, val []byte, flags WriteFlags) error {
	return wrapErr(db.execute(func(txn store.Txn) error {
		return txn.Put(db.dbi, key, val, uint32(flags))
	}))
}

// Reserve allocates, but does not fill, a value slot of exactly n bytes for
// key and returns a buffer backed by the pending entry. The buffer stays
// valid until the transaction ends and the caller must fill it completely
// before committing; bytes never written are undefined from the engine's
// perspective. Fails with ErrIncompatible on a DupSort database.
func (db *RWDatabase) Reserve(key []byte, n int, flags WriteFlags) ([]byte, error) {
	var buf []byte
	err := db.execute(func(txn store.Txn) error {
		var err error
		buf, err = txn.Reserve(db.dbi, key, n, uint32(flags))
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return buf, nil
}

// Del removes entries for key. With a nil val every entry for the key is
// removed; with a non-nil val only the entry whose value matches exactly,
// which selects a single duplicate on a DupSort database. Returns
// ErrNotFound when nothing matched.
func (db *RWDatabase) Del(key, val []byte) error {
	return wrapErr(db.execute(func(txn store.Txn) error {
		return txn.Del(db.dbi, key, val)
	}))
}

// Clear removes every entry, leaving the database open and usable.
func (db *RWDatabase) Clear() error {
	return wrapErr(db.execute(func(txn store.Txn) error {
		return txn.Drop(db.dbi, false)
	}))
}

// Drop removes the database definition itself from the environment and
// consumes the handle: any later call on it returns ErrDatabaseDropped.
//
// The caller must ensure that every other Database and Cursor referencing
// the same identifier is out of use before calling Drop; the layer does not
// check this and violating it leaves those handles addressing a database
// that no longer exists.
func (db *RWDatabase) Drop() error {
	err := db.execute(func(txn store.Txn) error {
		return txn.Drop(db.dbi, true)
	})
	db.dropped.Store(true)
	return wrapErr(err)
}
