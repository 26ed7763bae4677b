package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileMover deletes and relocates batch directories
type FileMover struct {
	logger *zap.Logger
}

// NewFileMover creates a FileMover
func NewFileMover(logger *zap.Logger) *FileMover {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileMover{logger: logger}
}

// Delete removes target and everything below it
func (m *FileMover) Delete(target string) bool {
	if err := os.RemoveAll(target); err != nil {
		m.logger.Error("Failed to delete directory",
			zap.String("dir", target),
			zap.Error(err))
		return false
	}
	return true
}

// MoveFiles moves every regular file of src into dest, keeping names unless
// they collide. A missing src is not an error.
func (m *FileMover) MoveFiles(src, dest string) bool {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return true
		}
		m.logger.Error("Failed to list source directory",
			zap.String("src", src),
			zap.Error(err))
		return false
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		m.logger.Error("Failed to create destination directory",
			zap.String("dest", dest),
			zap.Error(err))
		return false
	}

	ok := true
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		from := filepath.Join(src, e.Name())
		to := freeName(dest, e.Name())
		if err := os.Rename(from, to); err != nil {
			m.logger.Error("Failed to move file",
				zap.String("from", from),
				zap.String("to", to),
				zap.Error(err))
			ok = false
		}
	}
	return ok
}

func freeName(dir, name string) string {
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d", name, i))
	}
}
