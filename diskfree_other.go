//go:build !linux && !darwin

package safemdbx

// diskFree is unsupported on this platform; the geometry-vs-free-space
// warning is skipped.
func diskFree(string) (uint64, bool) {
	return 0, false
}
