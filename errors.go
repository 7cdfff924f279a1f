package stratum

import (
	"errors"
	"fmt"

	"github.com/stratumdb/stratum/store"
)

// Engine status codes surface unchanged so callers can match them with
// errors.Is regardless of the backend in use.
var (
	ErrNotFound     = store.ErrNotFound
	ErrKeyExist     = store.ErrKeyExist
	ErrIncompatible = store.ErrIncompatible
	ErrReadOnly     = store.ErrReadOnly
	ErrDBsFull      = store.ErrDBsFull
	ErrInvalid      = store.ErrInvalid
	ErrKeyTooLarge  = store.ErrKeyTooLarge
	ErrTxnDone      = store.ErrTxnDone
)

var ErrInvalidName = errors.New("database name contains an embedded terminator")

var ErrDatabaseDropped = errors.New("database handle has been dropped")

var classified = []error{
	ErrNotFound, ErrKeyExist, ErrIncompatible, ErrReadOnly,
	ErrDBsFull, ErrInvalid, ErrKeyTooLarge, ErrTxnDone,
	ErrInvalidName, ErrDatabaseDropped,
}

// wrapErr translates an engine status into the operation's result: the
// classified codes above pass through, anything else is wrapped as an opaque
// engine failure.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range classified {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("stratum: engine: %w", err)
}
