package stratum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvInfo(t *testing.T) {
	runStratumTest(t, func(t *testing.T, env *Env) {
		info, err := env.Info()
		require.NoError(t, err)
		require.NotEmpty(t, info.UUID)
		require.Equal(t, 1, info.FormatVersion)
	})
}

func TestEnvReopen(t *testing.T) {
	dir := t.TempDir()

	env, err := Open(dir, WithNoSync(true))
	require.NoError(t, err)

	first, err := env.Info()
	require.NoError(t, err)

	err = env.Update(func(txn *RWTxn) error {
		db, err := txn.OpenDBI("persisted", Create)
		require.NoError(t, err)
		return db.Put([]byte("k"), []byte("v"), 0)
	})
	require.NoError(t, err)
	require.NoError(t, env.Close())

	env, err = Open(dir, WithNoSync(true))
	require.NoError(t, err)
	defer env.Close()

	// The instance ID is stamped once and survives reopening, as do the
	// catalog and the data.
	second, err := env.Info()
	require.NoError(t, err)
	require.Equal(t, first.UUID, second.UUID)

	err = env.View(func(txn *Txn) error {
		db, err := txn.OpenDBI("persisted", 0)
		require.NoError(t, err)

		v, err := db.Get([]byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v"), v)
		return nil
	})
	require.NoError(t, err)
}
