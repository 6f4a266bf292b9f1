package safemdbx

import (
	"bytes"
	"errors"
	"runtime"
	"sync"

	mdbx "github.com/erigontech/mdbx-go/mdbx"
	"go.uber.org/atomic"
)

// Transaction states. The machine is active -> {committed, aborted};
// both terminal.
const (
	txnActive int32 = iota
	txnCommitted
	txnAborted
)

var errConcurrentUse = errors.New("concurrent use of one transaction from multiple goroutines")

var txnIDs atomic.Uint64

// Txn owns a native transaction handle. A Txn and everything derived from
// it (its cursors, its children) are confined to one logical owner at a
// time; concurrent driving from multiple goroutines fails fast with a
// KindTransaction error rather than corrupting engine state.
//
// Every operation checks the transaction's state before forwarding to the
// engine: once committed or aborted, operations fail with TxnClosed and
// the native handle is never touched again.
type Txn struct {
	txn      *mdbx.Txn
	env      *Env
	parent   *Txn
	id       uint64
	readonly bool

	// threadLocked records that BeginTxn pinned the goroutine to its OS
	// thread; terminate undoes it.
	threadLocked bool

	state atomic.Int32
	busy  atomic.Bool

	mu       sync.Mutex
	cursors  map[*Cursor]struct{}
	children map[*Txn]struct{}

	// newDBIs are names created by this transaction; their cached
	// handles are evicted if the transaction aborts.
	newDBIs []string
}

func newTxn(e *Env, raw *mdbx.Txn, parent *Txn, readonly, threadLocked bool) *Txn {
	return &Txn{
		txn:          raw,
		env:          e,
		parent:       parent,
		id:           txnIDs.Add(1),
		readonly:     readonly,
		threadLocked: threadLocked,
		cursors:      make(map[*Cursor]struct{}),
		children:     make(map[*Txn]struct{}),
	}
}

// enter is the per-operation boundary check: state, environment health,
// and the single-owner guard.
func (txn *Txn) enter(op string) error {
	if txn.state.Load() != txnActive {
		return mkErr(KindTxnClosed, op)
	}
	if txn.env.corrupt.Load() {
		return mkErr(KindCorrupted, op)
	}
	if !txn.busy.CompareAndSwap(false, true) {
		return &Error{Kind: KindTransaction, Op: op, Err: errConcurrentUse}
	}
	if txn.state.Load() != txnActive {
		txn.busy.Store(false)
		return mkErr(KindTxnClosed, op)
	}
	// The engine forbids using a transaction while it has a live child;
	// everything must go through the innermost transaction until it
	// resolves.
	txn.mu.Lock()
	live := len(txn.children)
	txn.mu.Unlock()
	if live > 0 {
		txn.busy.Store(false)
		return mkErr(KindNesting, op)
	}
	return nil
}

func (txn *Txn) leave() {
	txn.busy.Store(false)
}

// Env returns the owning environment.
func (txn *Txn) Env() *Env {
	return txn.env
}

// ID returns a binding-assigned transaction identifier, used in logs.
func (txn *Txn) ID() uint64 {
	return txn.id
}

// IsReadOnly reports whether the transaction is read-only.
func (txn *Txn) IsReadOnly() bool {
	return txn.readonly
}

// BeginChild begins a nested read-write transaction. The child's writes
// stay invisible outside it until the parent commits; aborting the parent
// discards them even after the child committed.
func (txn *Txn) BeginChild() (*Txn, error) {
	return txn.env.BeginTxn(txn, TxnReadWrite)
}

func (txn *Txn) addChild(child *Txn) {
	txn.mu.Lock()
	txn.children[child] = struct{}{}
	txn.mu.Unlock()
}

func (txn *Txn) removeChild(child *Txn) {
	txn.mu.Lock()
	delete(txn.children, child)
	txn.mu.Unlock()
}

func (txn *Txn) liveChildren() []*Txn {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	out := make([]*Txn, 0, len(txn.children))
	for c := range txn.children {
		out = append(out, c)
	}
	return out
}

func (txn *Txn) registerCursor(c *Cursor) {
	txn.mu.Lock()
	txn.cursors[c] = struct{}{}
	txn.mu.Unlock()
}

func (txn *Txn) deregisterCursor(c *Cursor) {
	txn.mu.Lock()
	delete(txn.cursors, c)
	txn.mu.Unlock()
}

// invalidateCursors walks the registry and closes every native cursor
// handle before the transaction handle is released. After this, cursor
// operations fail with CursorInvalid at the boundary; the engine handles
// may already be freed and are never consulted.
func (txn *Txn) invalidateCursors() {
	txn.mu.Lock()
	cursors := make([]*Cursor, 0, len(txn.cursors))
	for c := range txn.cursors {
		cursors = append(cursors, c)
	}
	txn.cursors = make(map[*Cursor]struct{})
	txn.mu.Unlock()

	for _, c := range cursors {
		c.invalidate()
	}
}

// cleanup runs after the native handle terminated.
func (txn *Txn) cleanup() {
	txn.env.deregister(txn)
	if txn.parent != nil {
		txn.parent.removeChild(txn)
	}
	if txn.threadLocked {
		txn.threadLocked = false
		runtime.UnlockOSThread()
	}
}

// Commit commits the transaction. All nested children must already be
// committed or aborted, else Commit fails with a KindNesting error and
// the transaction stays active. On engine-side commit failure (conflict,
// map-full, I/O) the transaction is aborted by the engine and the error
// carries KindCommit.
func (txn *Txn) Commit() error {
	const op = "commit"
	// enter rejects a commit while children are live with a KindNesting
	// error; they must commit or abort first.
	if err := txn.enter(op); err != nil {
		return err
	}

	txn.invalidateCursors()

	_, err := txn.txn.Commit()
	if err != nil {
		// A failed commit leaves the native transaction aborted.
		txn.state.Store(txnAborted)
		txn.evictNewDBIs()
		txn.cleanup()
		txn.leave()
		return txn.env.mapErr(op, err, KindCommit)
	}
	txn.state.Store(txnCommitted)
	txn.cleanup()
	txn.leave()
	return nil
}

// Abort aborts the transaction, discarding all uncommitted writes
// including those of committed children. It is best-effort, idempotent,
// and terminally invalidates every derived cursor and child.
//
// Abort may be called from any goroutine (Env.Close uses it to reap
// leaked transactions). The state flip turns away new operations, then
// Abort waits for any in-flight operation to drain before releasing the
// native handle: a live ViewRaw borrow or a blocking engine call must
// never have its memory pulled out from under it.
func (txn *Txn) Abort() {
	if !txn.state.CompareAndSwap(txnActive, txnAborted) {
		return
	}
	for !txn.busy.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
	for _, child := range txn.liveChildren() {
		child.Abort()
	}
	txn.invalidateCursors()
	txn.evictNewDBIs()
	txn.txn.Abort()
	txn.cleanup()
	txn.busy.Store(false)
}

func (txn *Txn) evictNewDBIs() {
	for _, name := range txn.newDBIs {
		txn.env.evictDBI(name)
	}
	txn.newDBIs = nil
}

// Get returns the value stored at key. The engine hands back a view into
// its page memory, so the value is cloned at the boundary: the returned
// slice is a copy owned by the caller and stays valid after the
// transaction ends. Absence is a NotFound error.
func (txn *Txn) Get(dbi DBI, key []byte) ([]byte, error) {
	const op = "get"
	if err := txn.enter(op); err != nil {
		return nil, err
	}
	defer txn.leave()
	val, err := txn.txn.Get(mdbx.DBI(dbi), key)
	if err != nil {
		return nil, txn.env.mapErr(op, err, KindTransaction)
	}
	return bytes.Clone(val), nil
}

// ViewRaw calls fn with a zero-copy view of the value stored at key. The
// view borrows the engine's page memory: it is valid only until fn
// returns and must not be retained or written to. For anything that
// escapes the call, use Get.
func (txn *Txn) ViewRaw(dbi DBI, key []byte, fn func(val []byte) error) error {
	const op = "view-raw"
	if err := txn.enter(op); err != nil {
		return err
	}
	defer txn.leave()

	val, err := txn.txn.Get(mdbx.DBI(dbi), key)
	if err != nil {
		return txn.env.mapErr(op, err, KindTransaction)
	}
	return fn(val)
}

// Put stores key/value. Flags: Upsert (default), NoOverwrite, NoDupData,
// Append, AppendDup. A write on a read-only transaction fails with a
// ReadOnly error at the boundary.
func (txn *Txn) Put(dbi DBI, key, val []byte, flags uint) error {
	const op = "put"
	if err := txn.enter(op); err != nil {
		return err
	}
	defer txn.leave()
	if txn.readonly {
		return mkErr(KindReadOnly, op)
	}
	if err := txn.txn.Put(mdbx.DBI(dbi), key, val, flags); err != nil {
		return txn.env.mapErr(op, err, KindTransaction)
	}
	return nil
}

// Del deletes key, or a single duplicate of key when val is non-nil
// (DupSort databases). Absence is a NotFound error.
func (txn *Txn) Del(dbi DBI, key, val []byte) error {
	const op = "del"
	if err := txn.enter(op); err != nil {
		return err
	}
	defer txn.leave()
	if txn.readonly {
		return mkErr(KindReadOnly, op)
	}
	if err := txn.txn.Del(mdbx.DBI(dbi), key, val); err != nil {
		return txn.env.mapErr(op, err, KindTransaction)
	}
	return nil
}

