package safemdbx

// Flags are untyped uint constants with the exact libmdbx bit values and
// are forwarded to the engine verbatim.

// Environment flags.
const (
	// EnvDefaults is the default (fully durable) mode.
	EnvDefaults uint = 0

	// NoSubdir means the path is a filename, not a directory.
	NoSubdir uint = 0x00004000

	// ReadOnly opens the environment in read-only mode.
	ReadOnly uint = 0x00020000

	// Exclusive opens in exclusive/monopolistic mode.
	Exclusive uint = 0x00400000

	// Accede joins an environment already opened by another process,
	// adopting its mode.
	Accede uint = 0x40000000

	// WriteMap maps data with write permission (faster, riskier).
	WriteMap uint = 0x00080000

	// NoStickyThreads unbinds read transactions from OS threads.
	// safemdbx always opens environments with this flag: goroutines
	// migrate between threads, so thread-bound reader slots are unsafe.
	NoStickyThreads uint = 0x00200000

	// NoReadAhead disables OS readahead.
	NoReadAhead uint = 0x00800000

	// NoMemInit skips zeroing malloc'd memory.
	NoMemInit uint = 0x01000000

	// LifoReclaim uses LIFO policy for GC page reclamation.
	LifoReclaim uint = 0x04000000

	// NoMetaSync skips the meta page sync after commit.
	NoMetaSync uint = 0x00040000

	// SafeNoSync defers syncs but keeps commits steady.
	SafeNoSync uint = 0x00010000

	// UtterlyNoSync skips all syncs. A crash can lose recent commits.
	UtterlyNoSync = SafeNoSync | NoMetaSync

	// Durable is an alias for EnvDefaults.
	Durable = EnvDefaults
)

// Transaction flags.
const (
	// TxnReadWrite is the default read-write transaction.
	TxnReadWrite uint = 0

	// TxnReadOnly begins a read-only transaction pinned to a snapshot.
	TxnReadOnly uint = 0x20000

	// TxnTry attempts a non-blocking read-write begin. Contention on the
	// write slot fails with a WouldBlock error instead of blocking.
	TxnTry uint = 0x10000000

	// TxnNoMetaSync skips meta sync for this transaction's commit.
	TxnNoMetaSync uint = 0x00040000

	// TxnNoSync skips sync for this transaction's commit.
	TxnNoSync uint = 0x00010000
)

// Database flags.
const (
	// DBDefaults uses default key comparison, single value per key.
	DBDefaults uint = 0

	// ReverseKey compares keys as reversed strings.
	ReverseKey uint = 0x02

	// DupSort allows multiple values per key, themselves ordered.
	DupSort uint = 0x04

	// IntegerKey uses native-byte-order uint32/uint64 keys.
	IntegerKey uint = 0x08

	// DupFixed uses fixed-size values in DupSort databases.
	DupFixed uint = 0x10

	// IntegerDup uses fixed-size integer values in DupSort databases.
	IntegerDup uint = 0x20

	// ReverseDup compares duplicate values as reversed strings.
	ReverseDup uint = 0x40

	// Create creates the database if it does not exist. Requires a
	// read-write transaction.
	Create uint = 0x40000
)

// Put flags.
const (
	// Upsert inserts or replaces; the default.
	Upsert uint = 0

	// NoOverwrite fails with a KeyExists error if the key is present.
	NoOverwrite uint = 0x10

	// NoDupData fails with a KeyExists error if the exact key/value pair
	// is present (DupSort databases).
	NoDupData uint = 0x20

	// Current replaces the value at the cursor's current position.
	Current uint = 0x40

	// AllDups operates on all duplicates of the key at once.
	AllDups uint = 0x80

	// Append asserts keys arrive in increasing order, enabling the
	// engine's fast-path append. Out-of-order keys fail with KeyExists.
	Append uint = 0x20000

	// AppendDup is Append for duplicate values of one key.
	AppendDup uint = 0x40000
)

// File names used by the engine inside an environment directory.
const (
	// DataFileName is the data file name.
	DataFileName = "mdbx.dat"

	// LockFileName is the lock file name.
	LockFileName = "mdbx.lck"

	// LockSuffix is appended to the data path when NoSubdir is used.
	LockSuffix = "-lck"
)

// DefaultPageSize is the page size used when Geometry leaves it unset.
const DefaultPageSize = 4096
