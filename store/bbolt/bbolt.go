package bbolt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/uuid/v5"
	"go.etcd.io/bbolt"

	"github.com/stratumdb/stratum/internal/dupkey"
	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/store"
)

const dbFileName = "stratum.db"

// DefaultMaxDatabases bounds the number of named databases in the catalog.
const DefaultMaxDatabases = 64

var metaBucketName = []byte("\x00meta")

type Config struct {
	MaxDatabases int
	NoSync       bool
}

type boltStore struct {
	db     *bbolt.DB
	maxDBs int
}

func Open(dir string) (store.Store, error) {
	return OpenWithConfig(dir, Config{})
}

func OpenWithConfig(dir string, cfg Config) (store.Store, error) {
	opts := *bbolt.DefaultOptions
	opts.NoSync = cfg.NoSync

	db, err := bbolt.Open(filepath.Join(dir, dbFileName), 0666, &opts)
	if err != nil {
		return nil, err
	}

	maxDBs := cfg.MaxDatabases
	if maxDBs <= 0 {
		maxDBs = DefaultMaxDatabases
	}

	st := &boltStore{db: db, maxDBs: maxDBs}
	if err := st.init(); err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

// init creates the meta bucket, the environment descriptor and the default
// database on first open, and validates the format version afterwards.
func (st *boltStore) init() error {
	return st.db.Update(func(btx *bbolt.Tx) error {
		mb, err := btx.CreateBucketIfNotExists(metaBucketName)
		if err != nil {
			return err
		}

		if raw := mb.Get(meta.EnvInfoKey()); raw != nil {
			info, err := meta.DecodeEnvInfo(raw)
			if err != nil {
				return err
			}
			if info.Version != meta.FormatVersion {
				return fmt.Errorf("unsupported store format version %d", info.Version)
			}
			return nil
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
		if err := mb.Put(meta.EnvInfoKey(), raw); err != nil {
			return err
		}

		rec, err := meta.EncodeDBRecord(&meta.DBRecord{DBI: store.DefaultDBI})
		if err != nil {
			return err
		}
		if err := mb.Put(meta.NameKey(""), rec); err != nil {
			return err
		}
		if err := mb.Put(meta.DBIKey(store.DefaultDBI), rec); err != nil {
			return err
		}
		if err := mb.Put(meta.NextDBIKey(), meta.EncodeDBI(meta.FirstUserDBI)); err != nil {
			return err
		}
		_, err = btx.CreateBucket(dataBucketName(store.DefaultDBI))
		return err
	})
}

func (st *boltStore) Begin(update bool) (store.Txn, error) {
	btx, err := st.db.Begin(update)
	if err != nil {
		return nil, err
	}
	return &boltTx{btx: btx, st: st, records: map[uint32]*meta.DBRecord{}}, nil
}

func (st *boltStore) Close() error {
	return st.db.Close()
}

func dataBucketName(dbi uint32) []byte {
	b := make([]byte, 5)
	b[0] = 'd'
	binary.BigEndian.PutUint32(b[1:], dbi)
	return b
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bbolt.ErrKeyTooLarge), errors.Is(err, bbolt.ErrValueTooLarge):
		return store.ErrKeyTooLarge
	case errors.Is(err, bbolt.ErrKeyRequired):
		return store.ErrInvalid
	case errors.Is(err, bbolt.ErrTxNotWritable):
		return store.ErrReadOnly
	case errors.Is(err, bbolt.ErrTxClosed):
		return store.ErrTxnDone
	}
	return err
}

type boltTx struct {
	btx     *bbolt.Tx
	st      *boltStore
	records map[uint32]*meta.DBRecord
}

func (tx *boltTx) metaBucket() *bbolt.Bucket {
	return tx.btx.Bucket(metaBucketName)
}

func (tx *boltTx) record(dbi uint32) (*meta.DBRecord, error) {
	if rec, ok := tx.records[dbi]; ok {
		return rec, nil
	}
	if dbi == store.MetaDBI {
		rec := &meta.DBRecord{DBI: store.MetaDBI}
		tx.records[dbi] = rec
		return rec, nil
	}
	raw := tx.metaBucket().Get(meta.DBIKey(dbi))
	if raw == nil {
		return nil, store.ErrInvalid
	}
	rec, err := meta.DecodeDBRecord(raw)
	if err != nil {
		return nil, err
	}
	tx.records[dbi] = rec
	return rec, nil
}

// bucket resolves a database identifier to its backing bucket. The meta
// bucket doubles as the engine's bookkeeping database.
func (tx *boltTx) bucket(dbi uint32) (*bbolt.Bucket, error) {
	if dbi == store.MetaDBI {
		return tx.metaBucket(), nil
	}
	b := tx.btx.Bucket(dataBucketName(dbi))
	if b == nil {
		return nil, store.ErrInvalid
	}
	return b, nil
}

func (tx *boltTx) OpenDBI(name string, flags uint32, update bool) (uint32, error) {
	mb := tx.metaBucket()
	raw := mb.Get(meta.NameKey(name))
	if raw != nil {
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

	next := meta.DecodeDBI(mb.Get(meta.NextDBIKey()))
	if int(next)-meta.FirstUserDBI >= tx.st.maxDBs {
		return 0, store.ErrDBsFull
	}

	rec := &meta.DBRecord{Name: name, DBI: next, Flags: flags &^ store.FlagCreate}
	encoded, err := meta.EncodeDBRecord(rec)
	if err != nil {
		return 0, err
	}
	if err := mb.Put(meta.NameKey(name), encoded); err != nil {
		return 0, mapErr(err)
	}
	if err := mb.Put(meta.DBIKey(next), encoded); err != nil {
		return 0, mapErr(err)
	}
	if err := mb.Put(meta.NextDBIKey(), meta.EncodeDBI(next+1)); err != nil {
		return 0, mapErr(err)
	}
	if _, err := tx.btx.CreateBucket(dataBucketName(next)); err != nil {
		return 0, mapErr(err)
	}
	tx.records[next] = rec
	return next, nil
}

func (tx *boltTx) DBIFlags(dbi uint32) (uint32, error) {
	rec, err := tx.record(dbi)
	if err != nil {
		return 0, err
	}
	return rec.Flags, nil
}

func (tx *boltTx) Stat(dbi uint32) (store.Stat, error) {
	b, err := tx.bucket(dbi)
	if err != nil {
		return store.Stat{}, err
	}
	s := b.Stats()
	return store.Stat{
		PageSize:      tx.btx.DB().Info().PageSize,
		Depth:         s.Depth,
		BranchPages:   s.BranchPageN,
		LeafPages:     s.LeafPageN,
		OverflowPages: s.BranchOverflowN + s.LeafOverflowN,
		Entries:       s.KeyN,
	}, nil
}

// seek returns the stored value for key, distinguishing a missing key from
// an empty stored value, which Bucket.Get cannot do.
func seek(b *bbolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if !bytes.Equal(k, key) {
		return nil, false
	}
	if v == nil {
		v = []byte{}
	}
	return v, true
}

func (tx *boltTx) Get(dbi uint32, key []byte) ([]byte, error) {
	rec, err := tx.record(dbi)
	if err != nil {
		return nil, err
	}
	b, err := tx.bucket(dbi)
	if err != nil {
		return nil, err
	}

	if rec.Flags&store.FlagDupSort != 0 {
		prefix, err := dupkey.Prefix(nil, key)
		if err != nil {
			return nil, err
		}
		k, _ := b.Cursor().Seek(prefix)
		if !bytes.HasPrefix(k, prefix) {
			return nil, store.ErrNotFound
		}
		_, val, err := dupkey.Split(k)
		return val, err
	}

	v, ok := seek(b, key)
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (tx *boltTx) Put(dbi uint32, key, val []byte, flags uint32) error {
	// The dup path stores a composite key, which is never empty, so
	// bbolt's own empty-key rejection would not fire for it.
	if len(key) == 0 {
		return store.ErrInvalid
	}
	rec, err := tx.record(dbi)
	if err != nil {
		return err
	}
	b, err := tx.bucket(dbi)
	if err != nil {
		return err
	}

	if rec.Flags&store.FlagDupSort != 0 {
		if flags&store.WriteNoOverwrite != 0 {
			prefix, err := dupkey.Prefix(nil, key)
			if err != nil {
				return err
			}
			if k, _ := b.Cursor().Seek(prefix); bytes.HasPrefix(k, prefix) {
				return store.ErrKeyExist
			}
		}
		composite, err := dupkey.Append(nil, key, val)
		if err != nil {
			return err
		}
		if flags&store.WriteNoDupData != 0 {
			if _, ok := seek(b, composite); ok {
				return store.ErrKeyExist
			}
		}
		return mapErr(b.Put(composite, []byte{}))
	}

	if flags&store.WriteNoOverwrite != 0 {
		if _, ok := seek(b, key); ok {
			return store.ErrKeyExist
		}
	}
	return mapErr(b.Put(key, val))
}

func (tx *boltTx) Reserve(dbi uint32, key []byte, n int, flags uint32) ([]byte, error) {
	rec, err := tx.record(dbi)
	if err != nil {
		return nil, err
	}
	if rec.Flags&store.FlagDupSort != 0 {
		return nil, store.ErrIncompatible
	}
	b, err := tx.bucket(dbi)
	if err != nil {
		return nil, err
	}
	if flags&store.WriteNoOverwrite != 0 {
		if _, ok := seek(b, key); ok {
			return nil, store.ErrKeyExist
		}
	}

	// bbolt keeps a reference to the value slice until the transaction
	// commits, so writes into buf after this call land in the stored value.
	buf := make([]byte, n)
	if err := b.Put(key, buf); err != nil {
		return nil, mapErr(err)
	}
	return buf, nil
}

func (tx *boltTx) Del(dbi uint32, key, val []byte) error {
	rec, err := tx.record(dbi)
	if err != nil {
		return err
	}
	b, err := tx.bucket(dbi)
	if err != nil {
		return err
	}

	if rec.Flags&store.FlagDupSort != 0 {
		if val != nil {
			composite, err := dupkey.Append(nil, key, val)
			if err != nil {
				return err
			}
			if _, ok := seek(b, composite); !ok {
				return store.ErrNotFound
			}
			return mapErr(b.Delete(composite))
		}

		prefix, err := dupkey.Prefix(nil, key)
		if err != nil {
			return err
		}
		var composites [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			composites = append(composites, append([]byte(nil), k...))
		}
		if len(composites) == 0 {
			return store.ErrNotFound
		}
		for _, k := range composites {
			if err := b.Delete(k); err != nil {
				return mapErr(err)
			}
		}
		return nil
	}

	stored, ok := seek(b, key)
	if !ok {
		return store.ErrNotFound
	}
	if val != nil && !bytes.Equal(stored, val) {
		return store.ErrNotFound
	}
	return mapErr(b.Delete(key))
}

func (tx *boltTx) Drop(dbi uint32, del bool) error {
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

	if err := tx.btx.DeleteBucket(dataBucketName(dbi)); err != nil {
		return mapErr(err)
	}
	if !del {
		_, err := tx.btx.CreateBucket(dataBucketName(dbi))
		return mapErr(err)
	}

	mb := tx.metaBucket()
	if err := mb.Delete(meta.NameKey(rec.Name)); err != nil {
		return mapErr(err)
	}
	if err := mb.Delete(meta.DBIKey(dbi)); err != nil {
		return mapErr(err)
	}
	delete(tx.records, dbi)
	return nil
}

func (tx *boltTx) OpenCursor(dbi uint32) (store.Cursor, error) {
	rec, err := tx.record(dbi)
	if err != nil {
		return nil, err
	}
	b, err := tx.bucket(dbi)
	if err != nil {
		return nil, err
	}
	return &boltCursor{
		c:   b.Cursor(),
		dup: rec.Flags&store.FlagDupSort != 0,
	}, nil
}

func (tx *boltTx) Commit() error {
	// bbolt rejects Commit on a read-only transaction; releasing the
	// snapshot is a rollback there.
	if !tx.btx.Writable() {
		return mapErr(tx.btx.Rollback())
	}
	return mapErr(tx.btx.Commit())
}

func (tx *boltTx) Rollback() error {
	return mapErr(tx.btx.Rollback())
}

type boltCursor struct {
	c   *bbolt.Cursor
	dup bool

	currItem *store.Item
	err      error
}

func (c *boltCursor) Seek(key []byte) error {
	if key == nil {
		c.set(c.c.First())
		return c.err
	}
	if c.dup {
		prefix, err := dupkey.Prefix(nil, key)
		if err != nil {
			return err
		}
		c.set(c.c.Seek(prefix))
		return c.err
	}
	c.set(c.c.Seek(key))
	return c.err
}

func (c *boltCursor) Next() {
	c.set(c.c.Next())
}

func (c *boltCursor) set(key, value []byte) {
	c.err = nil
	if key == nil {
		c.currItem = nil
		return
	}
	if c.dup {
		k, v, err := dupkey.Split(key)
		if err != nil {
			c.currItem, c.err = nil, err
			return
		}
		c.currItem = &store.Item{Key: k, Value: v}
		return
	}
	c.currItem = &store.Item{Key: key, Value: value}
}

func (c *boltCursor) Valid() bool {
	return c.currItem != nil
}

func (c *boltCursor) Item() (store.Item, error) {
	if c.err != nil {
		return store.Item{}, c.err
	}
	return *c.currItem, nil
}

func (c *boltCursor) Close() error {
	return nil
}
