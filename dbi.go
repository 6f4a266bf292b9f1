package safemdbx

import (
	mdbx "github.com/erigontech/mdbx-go/mdbx"
)

// DBI is a handle to a named database within an environment. Handles are
// environment-scoped and cached for reuse across transactions.
type DBI uint32

// lookupDBI consults the environment-scoped handle cache. Engine database
// handles are environment-scoped, not transaction-scoped, so one open is
// reused across transactions.
func (e *Env) lookupDBI(name string) (mdbx.DBI, bool) {
	e.dbiMu.Lock()
	dbi, ok := e.dbis[name]
	e.dbiMu.Unlock()
	return dbi, ok
}

func (e *Env) storeDBI(name string, dbi mdbx.DBI) {
	e.dbiMu.Lock()
	e.dbis[name] = dbi
	e.dbiMu.Unlock()
}

func (e *Env) evictDBI(name string) {
	e.dbiMu.Lock()
	delete(e.dbis, name)
	e.dbiMu.Unlock()
}

// CloseDBI drops a named database handle from the cache and closes it in
// the engine. Only needed when recycling handle slots of dropped
// databases.
func (e *Env) CloseDBI(name string) {
	e.dbiMu.Lock()
	dbi, ok := e.dbis[name]
	if ok {
		delete(e.dbis, name)
	}
	e.dbiMu.Unlock()
	if ok && !e.closed.Load() {
		e.env.CloseDBI(dbi)
	}
}

// OpenRoot opens the environment's unnamed root database.
func (txn *Txn) OpenRoot(flags uint) (DBI, error) {
	const op = "open-root"
	if err := txn.enter(op); err != nil {
		return 0, err
	}
	defer txn.leave()
	dbi, err := txn.txn.OpenRoot(flags)
	if err != nil {
		return 0, txn.env.mapErr(op, err, KindTransaction)
	}
	return DBI(dbi), nil
}

// OpenDBI opens a named database. The handle is cached on the environment
// and reused across transactions (engine contract: handles are
// environment-scoped). Opening a missing database without Create fails
// with a NotFound error.
func (txn *Txn) OpenDBI(name string, flags uint) (DBI, error) {
	const op = "open-dbi"
	if err := txn.enter(op); err != nil {
		return 0, err
	}
	defer txn.leave()
	if cached, ok := txn.env.lookupDBI(name); ok {
		return DBI(cached), nil
	}
	if flags&Create != 0 && txn.readonly {
		return 0, mkErr(KindReadOnly, op)
	}
	dbi, err := txn.txn.OpenDBI(name, flags, nil, nil)
	if err != nil {
		return 0, txn.env.mapErr(op, err, KindTransaction)
	}
	txn.env.storeDBI(name, dbi)
	if flags&Create != 0 {
		// If this transaction aborts, the database never existed and
		// the cached handle must go with it.
		txn.newDBIs = append(txn.newDBIs, name)
	}
	return DBI(dbi), nil
}

// CreateDBI opens a named database, creating it if missing. Requires a
// read-write transaction.
func (txn *Txn) CreateDBI(name string, flags uint) (DBI, error) {
	return txn.OpenDBI(name, flags|Create)
}

// Drop empties a database, or deletes it entirely when del is true.
func (txn *Txn) Drop(dbi DBI, del bool) error {
	const op = "drop"
	if err := txn.enter(op); err != nil {
		return err
	}
	defer txn.leave()
	if txn.readonly {
		return mkErr(KindReadOnly, op)
	}
	if err := txn.txn.Drop(mdbx.DBI(dbi), del); err != nil {
		return txn.env.mapErr(op, err, KindTransaction)
	}
	return nil
}

// Sequence reads, and with increment > 0 advances, the database's
// persistent sequence number. The value before the increment is returned.
func (txn *Txn) Sequence(dbi DBI, increment uint64) (uint64, error) {
	const op = "sequence"
	if err := txn.enter(op); err != nil {
		return 0, err
	}
	defer txn.leave()
	if increment > 0 && txn.readonly {
		return 0, mkErr(KindReadOnly, op)
	}
	v, err := txn.txn.Sequence(mdbx.DBI(dbi), increment)
	if err != nil {
		return 0, txn.env.mapErr(op, err, KindTransaction)
	}
	return v, nil
}

// Stat returns statistics for a database.
func (txn *Txn) Stat(dbi DBI) (*Stat, error) {
	const op = "stat"
	if err := txn.enter(op); err != nil {
		return nil, err
	}
	defer txn.leave()
	st, err := txn.txn.StatDBI(mdbx.DBI(dbi))
	if err != nil {
		return nil, txn.env.mapErr(op, err, KindTransaction)
	}
	return &Stat{
		PageSize:      uint(st.PSize),
		Depth:         uint(st.Depth),
		BranchPages:   uint64(st.BranchPages),
		LeafPages:     uint64(st.LeafPages),
		OverflowPages: uint64(st.OverflowPages),
		Entries:       uint64(st.Entries),
	}, nil
}
