package safemdbx

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	mdbx "github.com/erigontech/mdbx-go/mdbx"
	"go.uber.org/atomic"
)

// Env owns an open database environment. It is the lifecycle root: every
// transaction is derived from it and must terminate before (or be
// force-aborted by) Close.
//
// An Env is safe for concurrent use. The transactions it hands out are not;
// each transaction is confined to one logical owner at a time.
type Env struct {
	env  *mdbx.Env
	path string
	cfg  Config

	closed  atomic.Bool
	corrupt atomic.Bool

	mu   sync.Mutex
	txns map[*Txn]struct{}

	dbiMu sync.Mutex
	dbis  map[string]mdbx.DBI
}

// Open creates or opens the environment at path.
//
// Open failures (bad path, permissions, incompatible file format, version
// mismatch) surface as KindEnvironment errors. The environment is always
// opened with NoStickyThreads so read transactions are not bound to OS
// threads; goroutines migrate.
func Open(path string, cfg Config) (*Env, error) {
	raw, err := mdbx.NewEnv(mdbx.Label(cfg.label()))
	if err != nil {
		return nil, &Error{Kind: KindEnvironment, Op: "open", Err: err}
	}

	geo := cfg.Geometry
	if geo.isZero() {
		geo = Geometry{SizeUpper: 1 << 30, PageSize: DefaultPageSize}
	}
	pageSize := geo.PageSize
	if pageSize == 0 {
		pageSize = -1
	}
	if err := raw.SetGeometry(
		int(geoField(geo.SizeLower)),
		int(geoField(geo.SizeNow)),
		int(geoField(geo.SizeUpper)),
		int(geoField(geo.GrowthStep)),
		int(geoField(geo.ShrinkThreshold)),
		pageSize,
	); err != nil {
		raw.Close()
		return nil, &Error{Kind: KindEnvironment, Op: "open", Err: err}
	}
	if cfg.MaxDBs > 0 {
		if err := raw.SetOption(mdbx.OptMaxDB, cfg.MaxDBs); err != nil {
			raw.Close()
			return nil, &Error{Kind: KindEnvironment, Op: "open", Err: err}
		}
	}
	if cfg.MaxReaders > 0 {
		if err := raw.SetOption(mdbx.OptMaxReaders, cfg.MaxReaders); err != nil {
			raw.Close()
			return nil, &Error{Kind: KindEnvironment, Op: "open", Err: err}
		}
	}

	if err := raw.Open(path, cfg.Flags|NoStickyThreads, cfg.mode()); err != nil {
		raw.Close()
		return nil, mapEngineErr("open", err, KindEnvironment)
	}

	e := &Env{
		env:  raw,
		path: path,
		cfg:  cfg,
		txns: make(map[*Txn]struct{}),
		dbis: make(map[string]mdbx.DBI),
	}

	if free, ok := diskFree(path); ok && geo.SizeUpper > 0 && free < uint64(geo.SizeUpper) {
		logger.Warn("geometry upper bound exceeds filesystem free space",
			"path", path, "upper", geo.SizeUpper, "free", free)
	}
	return e, nil
}

// Path returns the path the environment was opened at.
func (e *Env) Path() string {
	return e.path
}

// MaxKeySize returns the engine's maximum key size for this environment.
func (e *Env) MaxKeySize() int {
	return e.env.MaxKeySize()
}

// usable gates every operation once the environment is closed or latched
// corrupted.
func (e *Env) usable(op string) error {
	if e.corrupt.Load() {
		return mkErr(KindCorrupted, op)
	}
	if e.closed.Load() {
		return mkErr(KindEnvironment, op)
	}
	return nil
}

// mapErr translates an engine error and latches the environment on
// corruption: after a corruption report every subsequent operation fails
// fast instead of retrying against a broken file.
func (e *Env) mapErr(op string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	mapped := mapEngineErr(op, err, fallback)
	if IsCorrupted(mapped) && e.corrupt.CompareAndSwap(false, true) {
		logger.Error("engine reported corruption; environment disabled",
			"path", e.path, "op", op, "err", err)
	}
	return mapped
}

// Close releases the environment. It is idempotent.
//
// Live transactions are force-aborted with a warning: a silently leaked
// write slot is worse than an unexpected abort.
func (e *Env) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}

	e.mu.Lock()
	var live []*Txn
	for txn := range e.txns {
		if txn.parent == nil {
			live = append(live, txn)
		}
	}
	e.mu.Unlock()

	for _, txn := range live {
		logger.Warn("force-aborting live transaction on environment close",
			"path", e.path, "txn", txn.ID(), "readonly", txn.IsReadOnly())
		txn.Abort()
	}

	e.env.Close()
}

func (e *Env) register(txn *Txn) {
	e.mu.Lock()
	e.txns[txn] = struct{}{}
	e.mu.Unlock()
}

func (e *Env) deregister(txn *Txn) {
	e.mu.Lock()
	delete(e.txns, txn)
	e.mu.Unlock()
}

// BeginTxn begins a transaction. flags is TxnReadOnly or TxnReadWrite,
// optionally with TxnTry, TxnNoSync or TxnNoMetaSync. parent nests a
// read-write transaction inside another read-write transaction.
//
// A read-write begin blocks while another read-write transaction holds the
// environment's write slot (the engine's native serialization); with
// TxnTry it fails immediately with a WouldBlock error instead. The calling
// goroutine of a top-level read-write transaction is locked to its OS
// thread until the transaction terminates, as the engine requires.
func (e *Env) BeginTxn(parent *Txn, flags uint) (*Txn, error) {
	const op = "begin"
	if err := e.usable(op); err != nil {
		return nil, err
	}

	readonly := flags&TxnReadOnly != 0
	var parentRaw *mdbx.Txn
	if parent != nil {
		if readonly {
			return nil, mkErr(KindNesting, op)
		}
		if err := parent.enter(op); err != nil {
			if IsTxnClosed(err) {
				return nil, mkErr(KindNesting, op)
			}
			return nil, err
		}
		defer parent.leave()
		if parent.readonly {
			return nil, mkErr(KindNesting, op)
		}
		parentRaw = parent.txn
	}

	locked := false
	if !readonly && parent == nil {
		// The engine requires a write transaction to stay on one OS
		// thread for its whole lifetime.
		runtime.LockOSThread()
		locked = true
	}

	raw, err := e.env.BeginTxn(parentRaw, flags)
	if err != nil {
		if locked {
			runtime.UnlockOSThread()
		}
		if flags&TxnTry != 0 {
			if code, ok := engineErrno(err); ok && code == engineBusy {
				return nil, &Error{Kind: KindWouldBlock, Op: op, Err: err}
			}
		}
		return nil, e.mapErr(op, err, KindTransaction)
	}

	txn := newTxn(e, raw, parent, readonly, locked)
	e.register(txn)
	if parent != nil {
		parent.addChild(txn)
	}
	return txn, nil
}

// TxnOp is a scoped transaction body.
type TxnOp func(txn *Txn) error

// Update runs fn inside a read-write transaction, committing on nil and
// aborting on error or panic. The transaction is released on every exit
// path.
func (e *Env) Update(fn TxnOp) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return e.UpdateLocked(fn)
}

// UpdateLocked behaves like Update but assumes the calling goroutine is
// already locked to its OS thread.
func (e *Env) UpdateLocked(fn TxnOp) error {
	return e.run(TxnReadWrite, fn)
}

// TryUpdate behaves like Update but does not block on the write slot: if
// another read-write transaction is active it fails immediately with a
// WouldBlock error.
func (e *Env) TryUpdate(fn TxnOp) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return e.run(TxnReadWrite|TxnTry, fn)
}

// View runs fn inside a read-only transaction observing a snapshot fixed
// at begin. The transaction is aborted on every exit path.
func (e *Env) View(fn TxnOp) error {
	txn, err := e.BeginTxn(nil, TxnReadOnly)
	if err != nil {
		return err
	}
	defer txn.Abort()
	return fn(txn)
}

func (e *Env) run(flags uint, fn TxnOp) error {
	txn, err := e.BeginTxn(nil, flags)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			txn.Abort()
		}
	}()
	if err := fn(txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Sync flushes buffered data to disk. With force it syncs unconditionally;
// with nonblock it returns instead of waiting for a concurrent sync.
func (e *Env) Sync(force, nonblock bool) error {
	const op = "sync"
	if err := e.usable(op); err != nil {
		return err
	}
	if err := e.env.Sync(force, nonblock); err != nil {
		return e.mapErr(op, err, KindEnvironment)
	}
	return nil
}

// Stat describes a database tree.
type Stat struct {
	PageSize      uint
	Depth         uint
	BranchPages   uint64
	LeafPages     uint64
	OverflowPages uint64
	Entries       uint64
}

// Stat returns statistics for the environment's root database.
func (e *Env) Stat() (*Stat, error) {
	var st *Stat
	err := e.View(func(txn *Txn) error {
		dbi, err := txn.OpenRoot(0)
		if err != nil {
			return err
		}
		st, err = txn.Stat(dbi)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ReaderCheck clears stale reader slots left behind by dead processes and
// returns how many were cleared.
func (e *Env) ReaderCheck() (int, error) {
	const op = "reader-check"
	if err := e.usable(op); err != nil {
		return 0, err
	}
	n, err := e.env.ReaderCheck()
	if err != nil {
		return 0, e.mapErr(op, err, KindEnvironment)
	}
	if n > 0 {
		logger.Warn("cleared stale reader slots", "path", e.path, "cleared", n)
	}
	return n, nil
}

// Copy writes a point-in-time copy of the data file to dstPath. The copy
// is pinned by a read transaction, so pages referenced by the snapshot are
// not reused while it runs. The destination must not exist.
func (e *Env) Copy(dstPath string) error {
	const op = "copy"
	if err := e.usable(op); err != nil {
		return err
	}
	if err := e.Sync(true, false); err != nil {
		return err
	}

	// Pin the snapshot for the duration of the file copy.
	return e.View(func(*Txn) error {
		srcPath := e.path
		if e.cfg.Flags&NoSubdir == 0 {
			srcPath = filepath.Join(e.path, DataFileName)
		}
		src, err := os.Open(srcPath)
		if err != nil {
			return &Error{Kind: KindEnvironment, Op: op, Err: err}
		}
		defer src.Close()

		dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, e.cfg.mode())
		if err != nil {
			return &Error{Kind: KindEnvironment, Op: op, Err: err}
		}
		defer dst.Close()

		if _, err := io.Copy(dst, src); err != nil {
			return &Error{Kind: KindEnvironment, Op: op, Err: err}
		}
		if err := dst.Sync(); err != nil {
			return &Error{Kind: KindEnvironment, Op: op, Err: err}
		}
		return nil
	})
}
