//go:build !windows

package util

import "golang.org/x/sys/unix"

// FreeSpace returns the free bytes on the filesystem holding path, or 0
// when the query fails.
func FreeSpace(path string) uint64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0
	}
	return st.Bavail * uint64(st.Bsize)
}
