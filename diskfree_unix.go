//go:build linux || darwin

package safemdbx

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// diskFree reports the free bytes on the filesystem holding path, probing
// the parent directory when path does not exist yet.
func diskFree(path string) (uint64, bool) {
	probe := path
	if _, err := os.Stat(probe); err != nil {
		probe = filepath.Dir(path)
	}
	var st unix.Statfs_t
	if err := unix.Statfs(probe, &st); err != nil {
		return 0, false
	}
	return uint64(st.Bavail) * uint64(st.Bsize), true
}
