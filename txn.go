package stratum

import (
	"strings"
	"sync"

	"github.com/stratumdb/stratum/store"
)

// txnGuard serializes every engine call issued against one transaction. The
// engine requires strict serialization of operations on a transaction, even
// reads, so all access routes through execute. Database and Cursor handles
// share the guard by reference; none of them owns the engine transaction.
type txnGuard struct {
	mu      sync.Mutex
	txn     store.Txn
	cursors []store.Cursor
}

// execute acquires the guard, invokes fn with the engine transaction and
// returns fn's status unchanged. Once the owning transaction has ended it
// returns ErrTxnDone without invoking fn.
func (g *txnGuard) execute(fn func(store.Txn) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.txn == nil {
		return ErrTxnDone
	}
	return fn(g.txn)
}

// track registers a cursor so end can release it; engines require cursors
// to be closed before their transaction is.
func (g *txnGuard) track(c store.Cursor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.txn != nil {
		g.cursors = append(g.cursors, c)
	}
}

func (g *txnGuard) untrack(c store.Cursor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, tracked := range g.cursors {
		if tracked == c {
			g.cursors = append(g.cursors[:i], g.cursors[i+1:]...)
			return
		}
	}
}

// end closes any cursors still open, detaches the engine transaction from
// the guard and leaves every handle derived from it unusable. Returns nil if
// the transaction already ended.
func (g *txnGuard) end() store.Txn {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.cursors {
		c.Close()
	}
	g.cursors = nil
	txn := g.txn
	g.txn = nil
	return txn
}

// Txn is a read-only transaction. Handles opened through it are valid until
// Commit or Abort; afterwards every operation on them returns ErrTxnDone.
//
// A Txn may be shared across goroutines: the guard serializes engine access.
type Txn struct {
	guard *txnGuard
}

func newTxn(st store.Txn) *Txn {
	return &Txn{guard: &txnGuard{txn: st}}
}

// OpenDBI opens a handle to the database with the given name; the empty name
// denotes the default database. The flags must match the ones the database
// was created with. Passing Create in a read-only transaction fails with
// ErrReadOnly when the database does not exist.
func (t *Txn) OpenDBI(name string, flags DatabaseFlags) (*Database, error) {
	dbi, err := openDBI(t.guard, name, flags, false)
	if err != nil {
		return nil, err
	}
	return &Database{dbi: dbi, guard: t.guard}, nil
}

// FreelistDBI returns a handle to the engine's internal bookkeeping database
// (identifier 0) without an engine round-trip. It never fails.
func (t *Txn) FreelistDBI() *Database {
	return &Database{dbi: store.MetaDBI, guard: t.guard}
}

// Commit ends the transaction, making its writes durable. For a read-only
// transaction it merely releases the engine snapshot.
func (t *Txn) Commit() error {
	txn := t.guard.end()
	if txn == nil {
		return ErrTxnDone
	}
	return wrapErr(txn.Commit())
}

// Abort ends the transaction, discarding any writes. Aborting an already
// ended transaction is a no-op.
func (t *Txn) Abort() {
	if txn := t.guard.end(); txn != nil {
		txn.Rollback()
	}
}

// RWTxn is a read-write transaction. It is the only way to obtain an
// RWDatabase, which keeps mutating operations unreachable from read-only
// transactions at compile time.
type RWTxn struct {
	Txn
}

func newRWTxn(st store.Txn) *RWTxn {
	return &RWTxn{Txn{guard: &txnGuard{txn: st}}}
}

// OpenDBI opens a write-capable handle, creating the database when flags
// carries Create.
func (t *RWTxn) OpenDBI(name string, flags DatabaseFlags) (*RWDatabase, error) {
	dbi, err := openDBI(t.guard, name, flags, true)
	if err != nil {
		return nil, err
	}
	return &RWDatabase{Database{dbi: dbi, guard: t.guard}}, nil
}

func openDBI(g *txnGuard, name string, flags DatabaseFlags, update bool) (uint32, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return 0, ErrInvalidName
	}
	var dbi uint32
	err := g.execute(func(txn store.Txn) error {
		var err error
		dbi, err = txn.OpenDBI(name, uint32(flags), update)
		return err
	})
	if err != nil {
		return 0, wrapErr(err)
	}
	return dbi, nil
}
