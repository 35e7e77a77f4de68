//go:build windows

package shortcut

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	lnk "github.com/parsiya/golnk"
	"golang.org/x/sys/windows"
)

// Resolve returns the target path of a .lnk file. Strategies are tried in
// order and isolated from each other: a shell-side failure (including COM
// not being initialized on the calling thread) moves on to the binary
// parser instead of aborting.
func Resolve(shortcutPath string) (string, bool) {
	if shortcutPath == "" || !strings.EqualFold(ext(shortcutPath), ".lnk") {
		return "", false
	}
	if _, err := os.Stat(shortcutPath); err != nil {
		return "", false
	}

	if target, ok := resolveViaShell(shortcutPath); ok {
		return target, true
	}
	if target, ok := resolveViaParser(shortcutPath); ok {
		return target, true
	}
	return "", false
}

// resolveViaShell asks WScript.Shell for the target. Runs in a child
// process so COM apartment state of the worker goroutine never matters.
func resolveViaShell(shortcutPath string) (string, bool) {
	script := fmt.Sprintf(`(New-Object -ComObject WScript.Shell).CreateShortcut(%q).TargetPath`, shortcutPath)
	out, err := exec.Command("powershell", "-NoProfile", "-Command", script).Output()
	if err != nil {
		return "", false
	}
	target := strings.TrimSpace(string(out))
	if target == "" {
		return "", false
	}
	return target, true
}

// resolveViaParser reads the shell link structure directly.
func resolveViaParser(shortcutPath string) (string, bool) {
	f, err := lnk.File(shortcutPath)
	if err != nil {
		return "", false
	}
	if p := strings.TrimSpace(f.LinkInfo.LocalBasePath); p != "" {
		return p, true
	}
	if p := strings.TrimSpace(f.StringData.RelativePath); p != "" {
		return p, true
	}
	return "", false
}

// ShortPath converts a path to its 8.3 form, which keeps non-ASCII
// material paths safe to pass on an ffmpeg command line.
func ShortPath(path string) string {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return path
	}
	n, err := windows.GetShortPathName(p, nil, 0)
	if err != nil || n == 0 {
		return path
	}
	buf := make([]uint16, n)
	if _, err := windows.GetShortPathName(p, &buf[0], n); err != nil {
		return path
	}
	return windows.UTF16ToString(buf)
}

func ext(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}
