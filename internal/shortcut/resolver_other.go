//go:build !windows

package shortcut

// Resolve is a no-op outside Windows; callers treat the miss as "folder
// not found", never as an error.
func Resolve(shortcutPath string) (string, bool) {
	return "", false
}

// ShortPath returns the path unchanged outside Windows.
func ShortPath(path string) string {
	return path
}
