package safemdbx

import "fmt"

// Version components of the safemdbx binding layer. The on-disk format is
// owned and versioned by the engine, not by this package.
const (
	VersionMajor = 0
	VersionMinor = 1
	VersionPatch = 0
)

// Version returns the binding version as a string.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}
