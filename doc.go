// Package stratum is a minimal-overhead, memory-safe access layer over an
// embedded, transactional key-value storage engine.
//
// An Env opens an engine (bbolt by default, any store.Store otherwise) and
// produces transactions. Within a transaction, OpenDBI resolves a named
// database to a handle; handles and the cursors opened on them share the
// transaction and are serialized against each other, so they may be used
// from multiple goroutines until the transaction ends.
//
// Read-only and read-write capability is encoded in the handle types rather
// than checked at runtime: a Txn produces Database handles, an RWTxn
// produces RWDatabase handles, and the mutating operations (Put, Reserve,
// Del, Clear, Drop) exist only on the latter. Code that tries to write
// through a read-only transaction does not compile.
//
//	env, err := stratum.Open(dir)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer env.Close()
//
//	err = env.Update(func(txn *stratum.RWTxn) error {
//		db, err := txn.OpenDBI("accounts", stratum.Create)
//		if err != nil {
//			return err
//		}
//		return db.Put([]byte("alice"), []byte{0, 0, 0, 1}, 0)
//	})
package stratum
