package safemdbx

import "os"

// Geometry bounds the environment's database file. Zero fields keep the
// engine's defaults (passed through as -1).
type Geometry struct {
	// SizeLower is the lower bound of the database size in bytes.
	SizeLower int64

	// SizeNow is the current/initial size in bytes.
	SizeNow int64

	// SizeUpper is the hard upper bound in bytes. Writes past it fail
	// the commit with a map-full error.
	SizeUpper int64

	// GrowthStep is the file growth granularity in bytes.
	GrowthStep int64

	// ShrinkThreshold is the shrink granularity in bytes.
	ShrinkThreshold int64

	// PageSize is the database page size. Must be a power of two.
	PageSize int
}

func (g Geometry) isZero() bool {
	return g == Geometry{}
}

func geoField(v int64) int64 {
	if v == 0 {
		return -1
	}
	return v
}

// Config configures an environment at Open.
type Config struct {
	// MaxDBs is the maximum number of named databases. Zero keeps the
	// engine default (no named databases beyond the root).
	MaxDBs uint64

	// MaxReaders is the maximum number of reader slots. Zero keeps the
	// engine default.
	MaxReaders uint64

	// Geometry bounds the database file. The zero value selects a 1 GiB
	// upper bound with the default page size.
	Geometry Geometry

	// Flags are environment flags: NoSubdir, ReadOnly, durability modes
	// (SafeNoSync, NoMetaSync, UtterlyNoSync), WriteMap, Exclusive,
	// Accede, NoReadAhead, LifoReclaim. NoStickyThreads is always added.
	Flags uint

	// Mode is the permission mode for created files. Zero means 0644.
	Mode os.FileMode

	// Label names the environment in engine diagnostics.
	Label string
}

func (c Config) mode() os.FileMode {
	if c.Mode == 0 {
		return 0644
	}
	return c.Mode
}

func (c Config) label() string {
	if c.Label == "" {
		return "safemdbx"
	}
	return c.Label
}
