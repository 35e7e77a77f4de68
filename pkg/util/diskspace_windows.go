//go:build windows

package util

import "golang.org/x/sys/windows"

// FreeSpace returns the free bytes available to the caller on the volume
// holding path, or 0 when the query fails.
func FreeSpace(path string) uint64 {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0
	}
	var avail, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &avail, &total, &free); err != nil {
		return 0
	}
	return avail
}
