// Package shortcut resolves Windows .lnk shortcut files to their target
// paths. Material libraries on Windows commonly share one clip pool
// between scene folders through shortcuts, so the scanner follows them
// like directories. On other platforms resolution is a no-op and callers
// treat an unresolved shortcut as a missing folder.
package shortcut
