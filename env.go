package stratum

import (
	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/store"
	"github.com/stratumdb/stratum/store/bbolt"
)

// Env owns an open storage engine and produces the transactions every
// handle hangs off. Close only after every transaction has ended.
type Env struct {
	store store.Store
}

// Open creates or opens an environment rooted at dir using the default
// bbolt-backed engine.
func Open(dir string, opts ...Option) (*Env, error) {
	cfg, err := defaultConfig().applyOptions(opts)
	if err != nil {
		return nil, err
	}
	st, err := bbolt.OpenWithConfig(dir, bbolt.Config{
		MaxDatabases: cfg.MaxDatabases,
		NoSync:       cfg.NoSync,
	})
	if err != nil {
		return nil, err
	}
	return &Env{store: st}, nil
}

// OpenWithStore wraps an already opened engine. The caller picks and
// configures the backend; the environment takes over closing it.
func OpenWithStore(st store.Store) (*Env, error) {
	return &Env{store: st}, nil
}

// Begin starts a read-only transaction.
func (e *Env) Begin() (*Txn, error) {
	st, err := e.store.Begin(false)
	if err != nil {
		return nil, wrapErr(err)
	}
	return newTxn(st), nil
}

// BeginRW starts a read-write transaction.
func (e *Env) BeginRW() (*RWTxn, error) {
	st, err := e.store.Begin(true)
	if err != nil {
		return nil, wrapErr(err)
	}
	return newRWTxn(st), nil
}

// View runs fn inside a read-only transaction and releases it afterwards.
func (e *Env) View(fn func(*Txn) error) error {
	txn, err := e.Begin()
	if err != nil {
		return err
	}
	defer txn.Abort()
	return fn(txn)
}

// Update runs fn inside a read-write transaction, committing on success and
// discarding on error.
func (e *Env) Update(fn func(*RWTxn) error) error {
	txn, err := e.BeginRW()
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		txn.Abort()
		return err
	}
	return txn.Commit()
}

// EnvInfo describes an environment: the instance ID stamped on first open
// and the on-disk format version.
type EnvInfo struct {
	UUID          string
	FormatVersion int
}

// Info reads the environment descriptor from the engine's bookkeeping
// database.
func (e *Env) Info() (*EnvInfo, error) {
	var info *EnvInfo
	err := e.View(func(txn *Txn) error {
		raw, err := txn.FreelistDBI().Get(meta.EnvInfoKey())
		if err != nil {
			return err
		}
		rec, err := meta.DecodeEnvInfo(raw)
		if err != nil {
			return err
		}
		info = &EnvInfo{UUID: rec.UUID, FormatVersion: rec.Version}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Close shuts the engine down.
func (e *Env) Close() error {
	return e.store.Close()
}
