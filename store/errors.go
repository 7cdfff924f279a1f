package store

import "errors"

// Status errors shared by every backend. Anything else a backend returns is
// an opaque engine failure the handle layer wraps as-is.
var (
	ErrNotFound     = errors.New("no matching key/value pair found")
	ErrKeyExist     = errors.New("key/value pair already exists")
	ErrIncompatible = errors.New("operation incompatible with database flags")
	ErrReadOnly     = errors.New("write operation in a read-only transaction")
	ErrDBsFull      = errors.New("too many open databases")
	ErrInvalid      = errors.New("invalid database identifier for operation")
	ErrKeyTooLarge  = errors.New("key or value exceeds engine size limit")
	ErrTxnDone      = errors.New("transaction has already ended")
)
