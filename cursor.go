package stratum

import (
	"errors"

	"github.com/stratumdb/stratum/store"
)

// Item is one key/value pair yielded by a cursor.
type Item struct {
	Key, Value []byte
}

// Cursor iterates over one database in key order. It borrows the handle's
// guard, so positioning calls are serialized with every other operation on
// the same transaction, and it becomes unusable once the transaction ends.
type Cursor struct {
	guard *txnGuard
	c     store.Cursor
}

func newCursor(db *Database) (*Cursor, error) {
	var sc store.Cursor
	err := db.execute(func(txn store.Txn) error {
		var err error
		sc, err = txn.OpenCursor(db.dbi)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	db.guard.track(sc)
	return &Cursor{guard: db.guard, c: sc}, nil
}

// First positions the cursor at the first entry of the database.
func (c *Cursor) First() error {
	return c.Seek(nil)
}

// Seek positions the cursor at the first entry with key >= the given key; a
// nil key positions at the first entry.
func (c *Cursor) Seek(key []byte) error {
	return wrapErr(c.guard.execute(func(store.Txn) error {
		return c.c.Seek(key)
	}))
}

// Next advances the cursor to the following entry.
func (c *Cursor) Next() {
	c.guard.execute(func(store.Txn) error {
		c.c.Next()
		return nil
	})
}

// Valid reports whether the cursor is positioned on an entry.
func (c *Cursor) Valid() bool {
	valid := false
	c.guard.execute(func(store.Txn) error {
		valid = c.c.Valid()
		return nil
	})
	return valid
}

// Item returns the entry the cursor is positioned on. Only call it after
// Valid reported true.
func (c *Cursor) Item() (Item, error) {
	var item store.Item
	err := c.guard.execute(func(store.Txn) error {
		var err error
		item, err = c.c.Item()
		return err
	})
	if err != nil {
		return Item{}, wrapErr(err)
	}
	return Item{Key: item.Key, Value: item.Value}, nil
}

// Close releases the cursor's engine resources. Closing after the owning
// transaction ended is a no-op: ending a transaction closes its cursors.
func (c *Cursor) Close() error {
	err := c.guard.execute(func(store.Txn) error {
		return c.c.Close()
	})
	if errors.Is(err, ErrTxnDone) {
		return nil
	}
	c.guard.untrack(c.c)
	return wrapErr(err)
}
