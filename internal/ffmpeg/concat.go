package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteConcatList writes a concat-demuxer list file referencing every
// input by absolute path. Backslashes become forward slashes so the same
// list works on Windows, and single quotes are escaped per the demuxer's
// quoting rules. Caller removes the returned file.
func WriteConcatList(dir string, inputs []string) (string, error) {
	if len(inputs) == 0 {
		return "", fmt.Errorf("no input files provided")
	}

	tmpFile, err := os.CreateTemp(dir, "concat_list_*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			os.Remove(tmpFile.Name())
			return "", err
		}
		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", escapeConcatPath(absPath)); err != nil {
			os.Remove(tmpFile.Name())
			return "", err
		}
	}

	return tmpFile.Name(), nil
}

// escapeConcatPath prepares a path for a single-quoted concat list entry.
func escapeConcatPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	// close quote, escaped quote, reopen quote
	return strings.ReplaceAll(path, "'", `'\''`)
}
