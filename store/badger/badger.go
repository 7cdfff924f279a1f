package badger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofrs/uuid/v5"

	"github.com/stratumdb/stratum/internal/dupkey"
	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/store"
)

// DefaultMaxDatabases bounds the number of named databases in the catalog.
const DefaultMaxDatabases = 64

const (
	gcIntervalDefault     = time.Minute * 5
	gcDiscardRatioDefault = 0.5
)

type Config struct {
	MaxDatabases   int
	InMemory       bool
	GCInterval     time.Duration
	GCDiscardRatio float64
}

type badgerStore struct {
	db     *badger.DB
	maxDBs int

	chWg   sync.WaitGroup
	chQuit chan struct{}

	gcInterval     time.Duration
	gcDiscardRatio float64
}

func Open(dir string) (store.Store, error) {
	return OpenWithConfig(dir, Config{})
}

func OpenWithConfig(dir string, cfg Config) (store.Store, error) {
	opts := badger.DefaultOptions(dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	return OpenWithOptions(opts, cfg)
}

func OpenWithOptions(opts badger.Options, cfg Config) (store.Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	maxDBs := cfg.MaxDatabases
	if maxDBs <= 0 {
		maxDBs = DefaultMaxDatabases
	}
	gcInterval := cfg.GCInterval
	if gcInterval <= 0 {
		gcInterval = gcIntervalDefault
	}
	gcDiscardRatio := cfg.GCDiscardRatio
	if gcDiscardRatio <= 0 {
		gcDiscardRatio = gcDiscardRatioDefault
	}

	st := &badgerStore{
		db:             db,
		maxDBs:         maxDBs,
		chQuit:         make(chan struct{}, 1),
		gcInterval:     gcInterval,
		gcDiscardRatio: gcDiscardRatio,
	}
	if err := st.init(); err != nil {
		db.Close()
		return nil, err
	}
	st.startGC()
	return st, nil
}

func (st *badgerStore) init() error {
	return st.db.Update(func(btx *badger.Txn) error {
		item, err := btx.Get(metaKey(meta.EnvInfoKey()))
		if err == nil {
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			info, err := meta.DecodeEnvInfo(raw)
			if err != nil {
				return err
			}
			if info.Version != meta.FormatVersion {
				return fmt.Errorf("unsupported store format version %d", info.Version)
			}
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		raw, err := meta.EncodeEnvInfo(&meta.EnvInfo{
			UUID:    id.String(),
			Version: meta.FormatVersion,
		})
		if err != nil {
			return err
		}
		if err := btx.Set(metaKey(meta.EnvInfoKey()), raw); err != nil {
			return err
		}

		rec, err := meta.EncodeDBRecord(&meta.DBRecord{DBI: store.DefaultDBI})
		if err != nil {
			return err
		}
		if err := btx.Set(metaKey(meta.NameKey("")), rec); err != nil {
			return err
		}
		if err := btx.Set(metaKey(meta.DBIKey(store.DefaultDBI)), rec); err != nil {
			return err
		}
		return btx.Set(metaKey(meta.NextDBIKey()), meta.EncodeDBI(meta.FirstUserDBI))
	})
}

func (st *badgerStore) Begin(update bool) (store.Txn, error) {
	return &badgerTx{
		txn:     st.db.NewTransaction(update),
		st:      st,
		update:  update,
		records: map[uint32]*meta.DBRecord{},
	}, nil
}

func (st *badgerStore) Close() error {
	st.stopGC()
	return st.db.Close()
}

func (st *badgerStore) startGC() {
	st.chWg.Add(1)

	go func() {
		defer st.chWg.Done()

		ticker := time.NewTicker(st.gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-st.chQuit:
				return
			case <-ticker.C:
				err := st.db.RunValueLogGC(st.gcDiscardRatio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
					return
				}
			}
		}
	}()
}

func (st *badgerStore) stopGC() {
	close(st.chQuit)
	st.chWg.Wait()
}

func metaKey(k []byte) []byte {
	return append([]byte{'m'}, k...)
}

// dataPrefix returns the key prefix holding a database's entries. The meta
// keyspace doubles as the engine's bookkeeping database.
func dataPrefix(dbi uint32) []byte {
	if dbi == store.MetaDBI {
		return []byte{'m'}
	}
	b := make([]byte, 5)
	b[0] = 'd'
	binary.BigEndian.PutUint32(b[1:], dbi)
	return b
}

func dataKey(dbi uint32, k []byte) []byte {
	return append(dataPrefix(dbi), k...)
}

// maxKeySize is badger's hard key-size cap. Checked up front so oversized
// keys classify as ErrKeyTooLarge; badger's own rejection is a plain
// formatted error that cannot be matched.
const maxKeySize = 65000

func checkEngineKey(k []byte) error {
	if len(k) > maxKeySize {
		return store.ErrKeyTooLarge
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrReadOnlyTxn):
		return store.ErrReadOnly
	case errors.Is(err, badger.ErrEmptyKey):
		return store.ErrInvalid
	case errors.Is(err, badger.ErrDiscardedTxn):
		return store.ErrTxnDone
	}
	return err
}

type badgerTx struct {
	txn     *badger.Txn
	st      *badgerStore
	update  bool
	records map[uint32]*meta.DBRecord
}

// rawGet distinguishes a missing key from an empty stored value.
func (tx *badgerTx) rawGet(key []byte) ([]byte, bool, error) {
	item, err := tx.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	if val == nil {
		val = []byte{}
	}
	return val, true, nil
}

func (tx *badgerTx) record(dbi uint32) (*meta.DBRecord, error) {
	if rec, ok := tx.records[dbi]; ok {
		return rec, nil
	}
	if dbi == store.MetaDBI {
		rec := &meta.DBRecord{DBI: store.MetaDBI}
		tx.records[dbi] = rec
		return rec, nil
	}
	raw, ok, err := tx.rawGet(metaKey(meta.DBIKey(dbi)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrInvalid
	}
	rec, err := meta.DecodeDBRecord(raw)
	if err != nil {
		return nil, err
	}
	tx.records[dbi] = rec
	return rec, nil
}

func (tx *badgerTx) OpenDBI(name string, flags uint32, update bool) (uint32, error) {
	raw, ok, err := tx.rawGet(metaKey(meta.NameKey(name)))
	if err != nil {
		return 0, err
	}
	if ok {
		rec, err := meta.DecodeDBRecord(raw)
		if err != nil {
			return 0, err
		}
		if flags&^store.FlagCreate != rec.Flags {
			return 0, store.ErrIncompatible
		}
		tx.records[rec.DBI] = rec
		return rec.DBI, nil
	}

	if flags&store.FlagCreate == 0 {
		return 0, store.ErrNotFound
	}
	if !update {
		return 0, store.ErrReadOnly
	}

	rawNext, ok, err := tx.rawGet(metaKey(meta.NextDBIKey()))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, store.ErrInvalid
	}
	next := meta.DecodeDBI(rawNext)
	if int(next)-meta.FirstUserDBI >= tx.st.maxDBs {
		return 0, store.ErrDBsFull
	}

	rec := &meta.DBRecord{Name: name, DBI: next, Flags: flags &^ store.FlagCreate}
	encoded, err := meta.EncodeDBRecord(rec)
	if err != nil {
		return 0, err
	}
	if err := tx.txn.Set(metaKey(meta.NameKey(name)), encoded); err != nil {
		return 0, mapErr(err)
	}
	if err := tx.txn.Set(metaKey(meta.DBIKey(next)), encoded); err != nil {
		return 0, mapErr(err)
	}
	if err := tx.txn.Set(metaKey(meta.NextDBIKey()), meta.EncodeDBI(next+1)); err != nil {
		return 0, mapErr(err)
	}
	tx.records[next] = rec
	return next, nil
}

func (tx *badgerTx) DBIFlags(dbi uint32) (uint32, error) {
	rec, err := tx.record(dbi)
	if err != nil {
		return 0, err
	}
	return rec.Flags, nil
}

// Stat counts entries with a key-only scan. Badger has no B-tree pages, so
// the page fields stay zero.
func (tx *badgerTx) Stat(dbi uint32) (store.Stat, error) {
	if _, err := tx.record(dbi); err != nil {
		return store.Stat{}, err
	}

	prefix := dataPrefix(dbi)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := tx.txn.NewIterator(opts)
	defer it.Close()

	entries := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		entries++
	}
	return store.Stat{
		PageSize: os.Getpagesize(),
		Entries:  entries,
	}, nil
}

func (tx *badgerTx) Get(dbi uint32, key []byte) ([]byte, error) {
	rec, err := tx.record(dbi)
	if err != nil {
		return nil, err
	}

	if rec.Flags&store.FlagDupSort != 0 {
		prefix, err := dupkey.Prefix(dataPrefix(dbi), key)
		if err != nil {
			return nil, err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := tx.txn.NewIterator(opts)
		defer it.Close()

		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return nil, store.ErrNotFound
		}
		_, val, err := dupkey.Split(it.Item().Key()[len(dataPrefix(dbi)):])
		return val, err
	}

	val, ok, err := tx.rawGet(dataKey(dbi, key))
	if err != nil {
		return nil, mapErr(err)
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	return val, nil
}

func (tx *badgerTx) hasPrefix(prefix []byte) (bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := tx.txn.NewIterator(opts)
	defer it.Close()

	it.Seek(prefix)
	return it.ValidForPrefix(prefix), nil
}

func (tx *badgerTx) Put(dbi uint32, key, val []byte, flags uint32) error {
	if len(key) == 0 {
		return store.ErrInvalid
	}
	rec, err := tx.record(dbi)
	if err != nil {
		return err
	}

	if rec.Flags&store.FlagDupSort != 0 {
		if flags&store.WriteNoOverwrite != 0 {
			prefix, err := dupkey.Prefix(dataPrefix(dbi), key)
			if err != nil {
				return err
			}
			ok, err := tx.hasPrefix(prefix)
			if err != nil {
				return err
			}
			if ok {
				return store.ErrKeyExist
			}
		}
		composite, err := dupkey.Append(dataPrefix(dbi), key, val)
		if err != nil {
			return err
		}
		if err := checkEngineKey(composite); err != nil {
			return err
		}
		if flags&store.WriteNoDupData != 0 {
			if _, ok, err := tx.rawGet(composite); err != nil {
				return err
			} else if ok {
				return store.ErrKeyExist
			}
		}
		return mapErr(tx.txn.Set(composite, []byte{}))
	}

	k := dataKey(dbi, key)
	if err := checkEngineKey(k); err != nil {
		return err
	}
	if flags&store.WriteNoOverwrite != 0 {
		if _, ok, err := tx.rawGet(k); err != nil {
			return err
		} else if ok {
			return store.ErrKeyExist
		}
	}
	return mapErr(tx.txn.Set(k, val))
}

func (tx *badgerTx) Reserve(dbi uint32, key []byte, n int, flags uint32) ([]byte, error) {
	if len(key) == 0 {
		return nil, store.ErrInvalid
	}
	rec, err := tx.record(dbi)
	if err != nil {
		return nil, err
	}
	if rec.Flags&store.FlagDupSort != 0 {
		return nil, store.ErrIncompatible
	}
	k := dataKey(dbi, key)
	if err := checkEngineKey(k); err != nil {
		return nil, err
	}
	if flags&store.WriteNoOverwrite != 0 {
		if _, ok, err := tx.rawGet(k); err != nil {
			return nil, err
		} else if ok {
			return nil, store.ErrKeyExist
		}
	}

	// The pending entry references buf until the transaction commits, so
	// writes into buf after this call land in the stored value.
	buf := make([]byte, n)
	if err := tx.txn.Set(k, buf); err != nil {
		return nil, mapErr(err)
	}
	return buf, nil
}

func (tx *badgerTx) deletePrefix(prefix []byte) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	var keys [][]byte
	it := tx.txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := tx.txn.Delete(k); err != nil {
			return 0, mapErr(err)
		}
	}
	return len(keys), nil
}

func (tx *badgerTx) Del(dbi uint32, key, val []byte) error {
	rec, err := tx.record(dbi)
	if err != nil {
		return err
	}

	if rec.Flags&store.FlagDupSort != 0 {
		if val != nil {
			composite, err := dupkey.Append(dataPrefix(dbi), key, val)
			if err != nil {
				return err
			}
			if _, ok, err := tx.rawGet(composite); err != nil {
				return err
			} else if !ok {
				return store.ErrNotFound
			}
			return mapErr(tx.txn.Delete(composite))
		}

		prefix, err := dupkey.Prefix(dataPrefix(dbi), key)
		if err != nil {
			return err
		}
		n, err := tx.deletePrefix(prefix)
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	}

	stored, ok, err := tx.rawGet(dataKey(dbi, key))
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	if val != nil && !bytes.Equal(stored, val) {
		return store.ErrNotFound
	}
	return mapErr(tx.txn.Delete(dataKey(dbi, key)))
}

func (tx *badgerTx) Drop(dbi uint32, del bool) error {
	if dbi == store.MetaDBI {
		return store.ErrInvalid
	}
	if dbi == store.DefaultDBI && del {
		return store.ErrInvalid
	}
	rec, err := tx.record(dbi)
	if err != nil {
		return err
	}
	if !tx.update {
		return store.ErrReadOnly
	}

	if _, err := tx.deletePrefix(dataPrefix(dbi)); err != nil {
		return err
	}
	if !del {
		return nil
	}

	if err := tx.txn.Delete(metaKey(meta.NameKey(rec.Name))); err != nil {
		return mapErr(err)
	}
	if err := tx.txn.Delete(metaKey(meta.DBIKey(dbi))); err != nil {
		return mapErr(err)
	}
	delete(tx.records, dbi)
	return nil
}

// OpenCursor returns a prefix-bounded iterator. In a write transaction
// badger allows a single active iterator, so close the cursor before issuing
// further scans (Stat, Get on a duplicate-capable database) on the same
// transaction.
func (tx *badgerTx) OpenCursor(dbi uint32) (store.Cursor, error) {
	rec, err := tx.record(dbi)
	if err != nil {
		return nil, err
	}

	prefix := dataPrefix(dbi)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	return &badgerCursor{
		it:     tx.txn.NewIterator(opts),
		prefix: prefix,
		dup:    rec.Flags&store.FlagDupSort != 0,
	}, nil
}

func (tx *badgerTx) Commit() error {
	return mapErr(tx.txn.Commit())
}

func (tx *badgerTx) Rollback() error {
	tx.txn.Discard()
	return nil
}

type badgerCursor struct {
	it     *badger.Iterator
	prefix []byte
	dup    bool
}

func (c *badgerCursor) Seek(key []byte) error {
	if key == nil {
		c.it.Seek(c.prefix)
		return nil
	}
	if c.dup {
		target, err := dupkey.Prefix(c.prefix, key)
		if err != nil {
			return err
		}
		c.it.Seek(target)
		return nil
	}
	c.it.Seek(append(append([]byte(nil), c.prefix...), key...))
	return nil
}

func (c *badgerCursor) Next() {
	c.it.Next()
}

func (c *badgerCursor) Valid() bool {
	return c.it.ValidForPrefix(c.prefix)
}

func (c *badgerCursor) Item() (store.Item, error) {
	item := c.it.Item()
	key := item.KeyCopy(nil)[len(c.prefix):]

	if c.dup {
		k, v, err := dupkey.Split(key)
		if err != nil {
			return store.Item{}, err
		}
		return store.Item{Key: k, Value: v}, nil
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return store.Item{}, err
	}
	return store.Item{Key: key, Value: val}, nil
}

func (c *badgerCursor) Close() error {
	c.it.Close()
	return nil
}
