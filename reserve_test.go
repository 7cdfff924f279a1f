package stratum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReserveBufferLength(t *testing.T) {
	runStratumTest(t, func(t *testing.T, env *Env) {
		err := env.Update(func(txn *RWTxn) error {
			db, err := txn.OpenDBI("kv", Create)
			require.NoError(t, err)

			buf, err := db.Reserve([]byte("slot"), 16, 0)
			require.NoError(t, err)
			require.Len(t, buf, 16)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestReserveFlags(t *testing.T) {
	runStratumTest(t, func(t *testing.T, env *Env) {
		err := env.Update(func(txn *RWTxn) error {
			db, err := txn.OpenDBI("kv", Create)
			require.NoError(t, err)
			require.NoError(t, db.Put([]byte("k"), []byte("v"), 0))

			_, err = db.Reserve([]byte("k"), 4, NoOverwrite)
			require.ErrorIs(t, err, ErrKeyExist)

			dup, err := txn.OpenDBI("dup", Create|DupSort)
			require.NoError(t, err)

			// The value participates in the sort key of a DupSort
			// database, so a reserve-then-fill slot cannot exist there.
			_, err = dup.Reserve([]byte("k"), 4, 0)
			require.ErrorIs(t, err, ErrIncompatible)
			return nil
		})
		require.NoError(t, err)
	})
}

// The end-to-end reserve scenario: allocate a slot, fill it after the fact,
// commit, and read the bytes back through a fresh transaction.
func TestReserveScenario(t *testing.T) {
	runStratumTest(t, func(t *testing.T, env *Env) {
		txn, err := env.BeginRW()
		require.NoError(t, err)

		accounts, err := txn.OpenDBI("accounts", Create)
		require.NoError(t, err)

		buf, err := accounts.Reserve([]byte("alice"), 4, 0)
		require.NoError(t, err)
		require.Len(t, buf, 4)

		copy(buf, []byte{0, 0, 0, 1})
		require.NoError(t, txn.Commit())

		err = env.View(func(txn *Txn) error {
			accounts, err := txn.OpenDBI("accounts", 0)
			require.NoError(t, err)

			stat, err := accounts.Stat()
			require.NoError(t, err)
			require.Equal(t, 1, stat.Entries)

			cur, err := accounts.Cursor()
			require.NoError(t, err)
			defer cur.Close()

			require.NoError(t, cur.First())
			require.True(t, cur.Valid())

			item, err := cur.Item()
			require.NoError(t, err)
			require.Equal(t, []byte("alice"), item.Key)
			require.Equal(t, []byte{0, 0, 0, 1}, item.Value)
			return nil
		})
		require.NoError(t, err)
	})
}
