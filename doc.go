// Package safemdbx is a lifetime-safe binding layer over libmdbx, a
// high-performance embedded transactional key-value database.
//
// safemdbx does not implement B+ trees, page allocation or the on-disk
// format; all of that is owned by libmdbx and consumed through its C API
// (via github.com/erigontech/mdbx-go). What safemdbx adds is the part that
// is dangerous to get wrong from Go: the temporal contracts of the raw
// engine handles. A cursor dies with its transaction, a value buffer dies
// with the transaction that produced it (or with the next write in a
// read-write transaction), and the single write slot per environment must
// be released promptly. safemdbx encodes these rules as explicit
// ownership-tracked handles and enforces them at the API boundary:
// misuse fails with a typed error instead of touching freed memory.
//
// Key properties:
//   - Environment -> Transaction -> Cursor ownership with explicit
//     parent-to-children registries; terminating a transaction invalidates
//     every cursor derived from it before the native handle is released
//   - Use of a terminated transaction or an invalidated cursor fails with
//     TxnClosed/CursorInvalid errors, never reaches the engine
//   - Every key and value that escapes a call is a copy; zero-copy access
//     exists only inside the callback window of Txn.ViewRaw
//   - Single writer per environment, blocking by default, with a
//     non-blocking variant surfacing WouldBlock
//   - Nested read-write transactions, dup-sort cursors and lazy iteration
//     protocols, including flattened (key, duplicate) scans
//
// Basic usage:
//
//	env, err := safemdbx.Open("/path/to/db", safemdbx.Config{MaxDBs: 4})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	err = env.Update(func(txn *safemdbx.Txn) error {
//	    dbi, err := txn.OpenRoot(0)
//	    if err != nil {
//	        return err
//	    }
//	    return txn.Put(dbi, []byte("key"), []byte("value"), safemdbx.Upsert)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = env.View(func(txn *safemdbx.Txn) error {
//	    dbi, err := txn.OpenRoot(0)
//	    if err != nil {
//	        return err
//	    }
//	    val, err := txn.Get(dbi, []byte("key"))
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Printf("%s\n", val)
//	    return nil
//	})
package safemdbx
