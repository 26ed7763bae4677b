package batchfile

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Size returns the size of path, or 0 when it cannot be stat'ed
func Size(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListFiles returns the regular files of dir sorted by name
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// DirSize sums the sizes of the regular files of dir
func DirSize(dir string) int64 {
	files, err := ListFiles(dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, f := range files {
		total += Size(f)
	}
	return total
}

// FileTimestamp extracts the creation time in milliseconds from a batch file
// name (<millis> or <millis>_<n>)
func FileTimestamp(path string) (int64, bool) {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '_'); i >= 0 {
		name = name[:i]
	}
	ts, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// DeleteContents removes everything inside dir, keeping dir itself
func DeleteContents(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var firstErr error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
