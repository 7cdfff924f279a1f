package bbolt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/store"
)

func openTestStore(t *testing.T) store.Store {
	st, err := OpenWithConfig(t.TempDir(), Config{NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestReservedIdentifiersAreProtected(t *testing.T) {
	st := openTestStore(t)

	txn, err := st.Begin(true)
	require.NoError(t, err)
	defer txn.Rollback()

	require.ErrorIs(t, txn.Drop(store.MetaDBI, false), store.ErrInvalid)
	require.ErrorIs(t, txn.Drop(store.MetaDBI, true), store.ErrInvalid)
	require.ErrorIs(t, txn.Drop(store.DefaultDBI, true), store.ErrInvalid)

	// Clearing the default database is allowed.
	require.NoError(t, txn.Drop(store.DefaultDBI, false))
}

func TestCatalogSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := OpenWithConfig(dir, Config{NoSync: true})
	require.NoError(t, err)

	txn, err := st.Begin(true)
	require.NoError(t, err)
	dbi, err := txn.OpenDBI("users", store.FlagCreate|store.FlagDupSort, true)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	require.NoError(t, st.Close())

	st, err = OpenWithConfig(dir, Config{NoSync: true})
	require.NoError(t, err)
	defer st.Close()

	txn, err = st.Begin(false)
	require.NoError(t, err)
	defer txn.Rollback()

	got, err := txn.OpenDBI("users", store.FlagDupSort, false)
	require.NoError(t, err)
	require.Equal(t, dbi, got)

	flags, err := txn.DBIFlags(dbi)
	require.NoError(t, err)
	require.Equal(t, store.FlagDupSort, flags)
}

func TestKeySizeLimit(t *testing.T) {
	st := openTestStore(t)

	txn, err := st.Begin(true)
	require.NoError(t, err)
	defer txn.Rollback()

	huge := bytes.Repeat([]byte{'k'}, 1<<16)
	err = txn.Put(store.DefaultDBI, huge, []byte("v"), 0)
	require.ErrorIs(t, err, store.ErrKeyTooLarge)

	err = txn.Put(store.DefaultDBI, nil, []byte("v"), 0)
	require.ErrorIs(t, err, store.ErrInvalid)

	// The duplicate path stores composite keys, so the empty-key check
	// must fire before the composite is built.
	dup, err := txn.OpenDBI("dup", store.FlagCreate|store.FlagDupSort, true)
	require.NoError(t, err)
	err = txn.Put(dup, nil, []byte("v"), 0)
	require.ErrorIs(t, err, store.ErrInvalid)
}

func TestStatReportsPages(t *testing.T) {
	st := openTestStore(t)

	txn, err := st.Begin(true)
	require.NoError(t, err)
	for i := 0; i < 32; i++ {
		require.NoError(t, txn.Put(store.DefaultDBI, []byte{byte(i)}, bytes.Repeat([]byte{byte(i)}, 128), 0))
	}
	require.NoError(t, txn.Commit())

	txn, err = st.Begin(false)
	require.NoError(t, err)
	defer txn.Rollback()

	stat, err := txn.Stat(store.DefaultDBI)
	require.NoError(t, err)
	require.Equal(t, 32, stat.Entries)
	require.NotZero(t, stat.PageSize)
	require.NotZero(t, stat.Depth)
}
