package safemdbx

import (
	"errors"
	"fmt"

	mdbx "github.com/erigontech/mdbx-go/mdbx"
)

// Kind classifies a safemdbx error.
type Kind int

const (
	// KindEngine is an engine-reported error with no dedicated kind.
	// The raw engine error stays wrapped and inspectable.
	KindEngine Kind = iota

	// KindEnvironment covers environment open/close/config failures,
	// including invalid paths, permissions and format/version mismatches.
	KindEnvironment

	// KindTransaction covers begin failures and misuse of a transaction,
	// including concurrent driving from multiple goroutines.
	KindTransaction

	// KindCommit covers commit failures (conflict, map-full, I/O).
	KindCommit

	// KindNesting covers nested-transaction protocol violations:
	// begin on a terminated parent, commit with live children.
	KindNesting

	// KindTxnClosed is any operation on a committed or aborted transaction.
	KindTxnClosed

	// KindReadOnly is a write attempted through a read-only transaction.
	KindReadOnly

	// KindCursorInvalid is use of a cursor whose owning transaction has
	// terminated, or of an explicitly closed cursor.
	KindCursorInvalid

	// KindNotFound is the expected, non-exceptional absence of a key.
	KindNotFound

	// KindKeyExists is a no-overwrite put on a present key.
	KindKeyExists

	// KindWouldBlock is contention on a non-blocking write-slot acquisition.
	KindWouldBlock

	// KindCorrupted is fatal engine-reported corruption. The owning
	// environment is latched unusable once this is observed.
	KindCorrupted

	// KindBusy is a busy resource, e.g. closing an environment that a
	// concurrent caller still holds open state on.
	KindBusy
)

var kindNames = map[Kind]string{
	KindEngine:        "engine error",
	KindEnvironment:   "environment error",
	KindTransaction:   "transaction error",
	KindCommit:        "commit error",
	KindNesting:       "nesting error",
	KindTxnClosed:     "transaction is closed",
	KindReadOnly:      "transaction is read-only",
	KindCursorInvalid: "cursor is invalid",
	KindNotFound:      "key/data pair not found",
	KindKeyExists:     "key/data pair already exists",
	KindWouldBlock:    "write slot unavailable",
	KindCorrupted:     "database is corrupted",
	KindBusy:          "resource is busy",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown error kind %d", int(k))
}

// Error is a safemdbx error. Engine-reported failures wrap the raw
// mdbx error; boundary violations (closed transactions, invalid cursors)
// are produced by safemdbx itself and carry no engine error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("safemdbx: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("safemdbx: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality, so errors.Is(err, &Error{Kind: KindNotFound})
// works across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func mkErr(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// KindOf returns the kind of err, or KindEngine if err is not a
// safemdbx error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindEngine
}

func isKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// IsNotFound reports whether err is an expected key-absence signal.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsKeyExists reports whether err is a no-overwrite conflict.
func IsKeyExists(err error) bool { return isKind(err, KindKeyExists) }

// IsWouldBlock reports whether err is non-blocking write contention.
func IsWouldBlock(err error) bool { return isKind(err, KindWouldBlock) }

// IsCorrupted reports whether err is fatal engine corruption.
func IsCorrupted(err error) bool { return isKind(err, KindCorrupted) }

// IsTxnClosed reports whether err is use of a terminated transaction.
func IsTxnClosed(err error) bool { return isKind(err, KindTxnClosed) }

// IsCursorInvalid reports whether err is use of an invalidated cursor.
func IsCursorInvalid(err error) bool { return isKind(err, KindCursorInvalid) }

// IsReadOnly reports whether err is a write through a read-only transaction.
func IsReadOnly(err error) bool { return isKind(err, KindReadOnly) }

// IsBusy reports whether err is a busy-resource condition.
func IsBusy(err error) bool { return isKind(err, KindBusy) }

// IsMapFull reports whether err is an engine map-full commit failure.
func IsMapFull(err error) bool {
	return mdbx.IsMapFull(err)
}

// Raw engine status codes, for mapping errors the engine package does not
// expose predicates for. Values match libmdbx.
const (
	engineKeyExist        = -30799
	engineNotFound        = -30798
	enginePageNotFound    = -30797
	engineCorrupted       = -30796
	enginePanic           = -30795
	engineVersionMismatch = -30794
	engineInvalid         = -30793
	engineMapFull         = -30792
	engineDBsFull         = -30791
	engineReadersFull     = -30790
	engineTxnFull         = -30788
	engineBadTxn          = -30782
	engineBusy            = -30778
)

// engineErrno digs the raw status code out of an engine error.
func engineErrno(err error) (int, bool) {
	var en mdbx.Errno
	if errors.As(err, &en) {
		return int(en), true
	}
	var op *mdbx.OpError
	if errors.As(err, &op) {
		if en, ok := op.Errno.(mdbx.Errno); ok {
			return int(en), true
		}
	}
	return 0, false
}

// mapEngineErr translates an engine error into the safemdbx taxonomy.
// The mapping is 1:1 for known status codes; unknown codes surface as
// KindEngine with the raw error wrapped. fallback decides the kind for
// engine errors that have no dedicated status (e.g. open failures map to
// KindEnvironment, commit failures to KindCommit).
func mapEngineErr(op string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	if mdbx.IsNotFound(err) {
		return &Error{Kind: KindNotFound, Op: op, Err: err}
	}
	if mdbx.IsKeyExists(err) {
		return &Error{Kind: KindKeyExists, Op: op, Err: err}
	}
	if code, ok := engineErrno(err); ok {
		switch code {
		case engineKeyExist:
			return &Error{Kind: KindKeyExists, Op: op, Err: err}
		case engineNotFound:
			return &Error{Kind: KindNotFound, Op: op, Err: err}
		case enginePageNotFound, engineCorrupted, enginePanic:
			return &Error{Kind: KindCorrupted, Op: op, Err: err}
		case engineVersionMismatch, engineInvalid:
			return &Error{Kind: KindEnvironment, Op: op, Err: err}
		case engineMapFull, engineTxnFull:
			return &Error{Kind: KindCommit, Op: op, Err: err}
		case engineDBsFull, engineReadersFull:
			return &Error{Kind: KindEnvironment, Op: op, Err: err}
		case engineBadTxn:
			return &Error{Kind: KindTxnClosed, Op: op, Err: err}
		case engineBusy:
			return &Error{Kind: KindBusy, Op: op, Err: err}
		}
	}
	return &Error{Kind: fallback, Op: op, Err: err}
}
