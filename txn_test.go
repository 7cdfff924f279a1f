package stratum

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleAfterTxnEnd(t *testing.T) {
	runStratumTest(t, func(t *testing.T, env *Env) {
		txn, err := env.BeginRW()
		require.NoError(t, err)

		db, err := txn.OpenDBI("kv", Create)
		require.NoError(t, err)
		require.NoError(t, db.Put([]byte("k"), []byte("v"), 0))
		require.NoError(t, txn.Commit())

		// Every handle derived from the transaction is now unusable.
		_, err = db.Get([]byte("k"))
		require.ErrorIs(t, err, ErrTxnDone)
		require.ErrorIs(t, db.Put([]byte("k"), []byte("v"), 0), ErrTxnDone)
		_, err = db.Stat()
		require.ErrorIs(t, err, ErrTxnDone)

		require.ErrorIs(t, txn.Commit(), ErrTxnDone)
		txn.Abort() // no-op after end
	})
}

func TestAbortDiscardsWrites(t *testing.T) {
	runStratumTest(t, func(t *testing.T, env *Env) {
		txn, err := env.BeginRW()
		require.NoError(t, err)

		db, err := txn.OpenDBI("kv", Create)
		require.NoError(t, err)
		require.NoError(t, db.Put([]byte("k"), []byte("v"), 0))
		txn.Abort()

		err = env.View(func(txn *Txn) error {
			_, err := txn.OpenDBI("kv", 0)
			require.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})
}

// Mutating operations exist only on the write-capable types; a *Database
// obtained from a read-only transaction has no way to reach them. The
// property is enforced by the compiler, this test just records it.
func TestWriteMethodsUnreachableFromReadOnlyHandle(t *testing.T) {
	roDatabase := reflect.TypeOf(&Database{})
	rwDatabase := reflect.TypeOf(&RWDatabase{})

	for _, name := range []string{"Put", "Reserve", "Del", "Clear", "Drop"} {
		_, ok := roDatabase.MethodByName(name)
		require.False(t, ok, "Database must not expose %s", name)

		_, ok = rwDatabase.MethodByName(name)
		require.True(t, ok, "RWDatabase must expose %s", name)
	}

	roTxn := reflect.TypeOf(&Txn{})
	m, ok := roTxn.MethodByName("OpenDBI")
	require.True(t, ok)
	require.Equal(t, reflect.TypeOf((*Database)(nil)), m.Type.Out(0))
}

func TestConcurrentReadsShareOneTransaction(t *testing.T) {
	runStratumTest(t, func(t *testing.T, env *Env) {
		const n = 64
		err := env.Update(func(txn *RWTxn) error {
			db, err := txn.OpenDBI("conc", Create)
			require.NoError(t, err)
			for i := 0; i < n; i++ {
				key := []byte(fmt.Sprintf("key:%03d", i))
				require.NoError(t, db.Put(key, []byte{byte(i)}, 0))
			}
			return nil
		})
		require.NoError(t, err)

		txn, err := env.Begin()
		require.NoError(t, err)
		defer txn.Abort()

		db, err := txn.OpenDBI("conc", 0)
		require.NoError(t, err)

		// All goroutines hammer the same guarded transaction; run with
		// -race to validate the execution helper's exclusivity.
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					key := []byte(fmt.Sprintf("key:%03d", (g*7+i)%n))
					v, err := db.Get(key)
					if assert.NoError(t, err) {
						assert.Len(t, v, 1)
					}
					if i%50 == 0 {
						_, err := db.Stat()
						assert.NoError(t, err)
					}
				}
			}(g)
		}
		wg.Wait()
	})
}
