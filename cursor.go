package safemdbx

import (
	"bytes"

	mdbx "github.com/erigontech/mdbx-go/mdbx"
	"go.uber.org/atomic"
)

// Cursor owns a position within one database inside one transaction.
// A cursor never outlives its transaction: when the transaction
// terminates, every cursor derived from it is invalidated first, and any
// further use fails with a CursorInvalid error. The liveness check is the
// binding's own (owner-state reference); the native handle may already be
// freed and is never consulted to detect misuse.
//
// Positioning operations return ok=false on exhaustion. "No more entries"
// is an expected terminal condition, not an error.
type Cursor struct {
	cur    *mdbx.Cursor
	txn    *Txn
	dbi    DBI
	closed atomic.Bool
}

// OpenCursor opens a cursor over dbi. Multiple cursors per transaction
// are allowed, including several over the same database with independent
// positions.
func (txn *Txn) OpenCursor(dbi DBI) (*Cursor, error) {
	const op = "open-cursor"
	if err := txn.enter(op); err != nil {
		return nil, err
	}
	defer txn.leave()
	raw, err := txn.txn.OpenCursor(mdbx.DBI(dbi))
	if err != nil {
		return nil, txn.env.mapErr(op, err, KindTransaction)
	}
	c := &Cursor{cur: raw, txn: txn, dbi: dbi}
	txn.registerCursor(c)
	return c, nil
}

// Txn returns the owning transaction.
func (c *Cursor) Txn() *Txn {
	return c.txn
}

// DBI returns the database the cursor iterates.
func (c *Cursor) DBI() DBI {
	return c.dbi
}

// Close releases the cursor. It is idempotent; cursors left open are
// closed automatically when their transaction terminates.
func (c *Cursor) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.txn.deregisterCursor(c)
	if c.txn.state.Load() == txnActive {
		c.cur.Close()
	}
}

// invalidate is called by the owning transaction on termination, before
// the native transaction handle is released.
func (c *Cursor) invalidate() {
	if c.closed.CompareAndSwap(false, true) {
		c.cur.Close()
	}
}

// enter is the cursor-operation boundary check: cursor liveness, owner
// transaction state, then the transaction's single-owner guard.
func (c *Cursor) enter(op string) error {
	if c.closed.Load() {
		return mkErr(KindCursorInvalid, op)
	}
	if err := c.txn.enter(op); err != nil {
		if IsTxnClosed(err) {
			return mkErr(KindCursorInvalid, op)
		}
		return err
	}
	if c.closed.Load() {
		c.txn.leave()
		return mkErr(KindCursorInvalid, op)
	}
	return nil
}

func (c *Cursor) leave() {
	c.txn.leave()
}

// get forwards one positioning operation, normalizing engine not-found
// into the ok=false exhaustion signal. The engine returns views into its
// page memory; both slices are cloned at the boundary so they are owned
// by the caller.
func (c *Cursor) get(op string, setKey, setVal []byte, mop uint) (key, val []byte, ok bool, err error) {
	if err := c.enter(op); err != nil {
		return nil, nil, false, err
	}
	defer c.leave()
	key, val, gerr := c.cur.Get(setKey, setVal, mop)
	if gerr != nil {
		if mdbx.IsNotFound(gerr) {
			return nil, nil, false, nil
		}
		return nil, nil, false, c.txn.env.mapErr(op, gerr, KindTransaction)
	}
	return bytes.Clone(key), bytes.Clone(val), true, nil
}

// First positions at the first key.
func (c *Cursor) First() (key, val []byte, ok bool, err error) {
	return c.get("first", nil, nil, mdbx.First)
}

// Last positions at the last key.
func (c *Cursor) Last() (key, val []byte, ok bool, err error) {
	return c.get("last", nil, nil, mdbx.Last)
}

// Next moves to the next entry. In a DupSort database this steps through
// duplicates before advancing to the next key.
func (c *Cursor) Next() (key, val []byte, ok bool, err error) {
	return c.get("next", nil, nil, mdbx.Next)
}

// Prev moves to the previous entry.
func (c *Cursor) Prev() (key, val []byte, ok bool, err error) {
	return c.get("prev", nil, nil, mdbx.Prev)
}

// Current returns the entry at the cursor's position.
func (c *Cursor) Current() (key, val []byte, ok bool, err error) {
	return c.get("current", nil, nil, mdbx.GetCurrent)
}

// Seek positions at key exactly. ok=false if the key is absent.
func (c *Cursor) Seek(key []byte) (val []byte, ok bool, err error) {
	_, val, ok, err = c.get("seek", key, nil, mdbx.SetKey)
	return val, ok, err
}

// SeekRange positions at the first key >= the given key.
func (c *Cursor) SeekRange(key []byte) (k, val []byte, ok bool, err error) {
	return c.get("seek-range", key, nil, mdbx.SetRange)
}

// FirstDup moves to the first duplicate of the current key.
func (c *Cursor) FirstDup() (val []byte, ok bool, err error) {
	_, val, ok, err = c.get("first-dup", nil, nil, mdbx.FirstDup)
	return val, ok, err
}

// LastDup moves to the last duplicate of the current key.
func (c *Cursor) LastDup() (val []byte, ok bool, err error) {
	_, val, ok, err = c.get("last-dup", nil, nil, mdbx.LastDup)
	return val, ok, err
}

// NextDup moves to the next duplicate of the current key. Exhausting the
// duplicates returns ok=false; it never falls through to the next key.
// Whole-iteration semantics live in ScanDups.
func (c *Cursor) NextDup() (key, val []byte, ok bool, err error) {
	return c.get("next-dup", nil, nil, mdbx.NextDup)
}

// PrevDup moves to the previous duplicate of the current key.
func (c *Cursor) PrevDup() (key, val []byte, ok bool, err error) {
	return c.get("prev-dup", nil, nil, mdbx.PrevDup)
}

// NextNoDup moves to the first duplicate of the next key.
func (c *Cursor) NextNoDup() (key, val []byte, ok bool, err error) {
	return c.get("next-nodup", nil, nil, mdbx.NextNoDup)
}

// PrevNoDup moves to the last entry of the previous key.
func (c *Cursor) PrevNoDup() (key, val []byte, ok bool, err error) {
	return c.get("prev-nodup", nil, nil, mdbx.PrevNoDup)
}

// SeekBoth positions at the exact key/value pair in a DupSort database.
func (c *Cursor) SeekBoth(key, val []byte) (ok bool, err error) {
	_, _, ok, err = c.get("seek-both", key, val, mdbx.GetBoth)
	return ok, err
}

// SeekBothRange positions at key and its first duplicate >= val,
// returning that duplicate.
func (c *Cursor) SeekBothRange(key, val []byte) (v []byte, ok bool, err error) {
	_, v, ok, err = c.get("seek-both-range", key, val, mdbx.GetBothRange)
	return v, ok, err
}

// CountDup returns the number of duplicates of the current key.
func (c *Cursor) CountDup() (uint64, error) {
	const op = "count-dup"
	if err := c.enter(op); err != nil {
		return 0, err
	}
	defer c.leave()
	n, err := c.cur.Count()
	if err != nil {
		return 0, c.txn.env.mapErr(op, err, KindTransaction)
	}
	return n, nil
}

// CountDupOf returns the number of duplicates stored under key.
// found=false if the key is absent.
func (c *Cursor) CountDupOf(key []byte) (count uint64, found bool, err error) {
	_, ok, err := c.Seek(key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := c.CountDup()
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Put stores key/value through the cursor and positions at the new entry.
// Same flag semantics as Txn.Put.
func (c *Cursor) Put(key, val []byte, flags uint) error {
	const op = "cursor-put"
	if err := c.enter(op); err != nil {
		return err
	}
	defer c.leave()
	if c.txn.readonly {
		return mkErr(KindReadOnly, op)
	}
	if err := c.cur.Put(key, val, flags); err != nil {
		return c.txn.env.mapErr(op, err, KindTransaction)
	}
	return nil
}

// PutCurrent replaces the value at the cursor's current position. key
// must match the current key.
func (c *Cursor) PutCurrent(key, val []byte) error {
	return c.Put(key, val, Current)
}

// Del deletes the entry at the cursor's current position.
func (c *Cursor) Del() error {
	return c.del("cursor-del", 0)
}

// DelAllDups deletes every duplicate of the current key.
func (c *Cursor) DelAllDups() error {
	return c.del("cursor-del-dups", AllDups)
}

func (c *Cursor) del(op string, flags uint) error {
	if err := c.enter(op); err != nil {
		return err
	}
	defer c.leave()
	if c.txn.readonly {
		return mkErr(KindReadOnly, op)
	}
	if err := c.cur.Del(flags); err != nil {
		return c.txn.env.mapErr(op, err, KindTransaction)
	}
	return nil
}
