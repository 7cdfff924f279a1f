package stratum

import "github.com/stratumdb/stratum/store"

// DatabaseFlags configure a database at open time. The flags a database was
// created with are stored by the engine and must match on every later open.
type DatabaseFlags uint32

const (
	// Create the database if it does not exist. Requires a read-write
	// transaction.
	Create = DatabaseFlags(store.FlagCreate)

	// DupSort permits multiple values per key, kept in value order.
	DupSort = DatabaseFlags(store.FlagDupSort)
)

// WriteFlags modify a single put or reserve operation.
type WriteFlags uint32

const (
	// NoOverwrite fails with ErrKeyExist if the key is already present.
	NoOverwrite = WriteFlags(store.WriteNoOverwrite)

	// NoDupData fails with ErrKeyExist if the exact key/value pair is
	// already present in a DupSort database.
	NoDupData = WriteFlags(store.WriteNoDupData)

	// Append hints that keys arrive in sorted order. Backends are free to
	// treat it as a regular put.
	Append = WriteFlags(store.WriteAppend)
)
