package orchestrator

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"go.uber.org/zap"
)

// FileOrchestrator decides which batch file receives writes and which one
// is handed to the uploader
type FileOrchestrator interface {
	// GetWritableFile returns the file the next event of dataSize bytes goes to
	GetWritableFile(dataSize int64) (string, bool)
	// GetReadableFile returns the oldest uploadable file not in exclude
	GetReadableFile(exclude map[string]struct{}) (string, bool)
	// GetAllFiles returns every batch file, oldest first
	GetAllFiles() []string
	// GetFlushableFiles returns every file that may be uploaded on flush
	GetFlushableFiles() []string
	// GetRootDir returns the managed directory, or "" when there is none
	GetRootDir() string
}

// Config holds batch file limits
type Config struct {
	RecentDelay      time.Duration
	MaxBatchSize     int64
	MaxItemsPerBatch int
	OldFileThreshold time.Duration
	MaxDiskSpace     int64
}

// DefaultConfig returns the default batch limits
func DefaultConfig() *Config {
	return &Config{
		RecentDelay:      5 * time.Second,
		MaxBatchSize:     4 * 1024 * 1024,
		MaxItemsPerBatch: 500,
		OldFileThreshold: 18 * time.Hour,
		MaxDiskSpace:     128 * 1024 * 1024,
	}
}

// readGraceFactor keeps the uploader away from a file that was writable a moment ago
const readGraceFactor = 1.05

// BatchFileOrchestrator manages the batch files of one directory.
// Files are named after their creation time in milliseconds.
type BatchFileOrchestrator struct {
	rootDir string
	cfg     *Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu            sync.Mutex
	writable      string
	writableItems int
}

// NewBatchFileOrchestrator creates an orchestrator for rootDir. now may be nil.
func NewBatchFileOrchestrator(rootDir string, cfg *Config, logger *zap.Logger, m *metrics.Metrics, now func() time.Time) *BatchFileOrchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &BatchFileOrchestrator{
		rootDir: rootDir,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     now,
	}
}

// GetWritableFile implements FileOrchestrator
func (o *BatchFileOrchestrator) GetWritableFile(dataSize int64) (string, bool) {
	if dataSize > o.cfg.MaxBatchSize {
		o.logger.Warn("Event larger than a batch, dropping it",
			zap.String("dir", o.rootDir),
			zap.Int64("size", dataSize),
			zap.Int64("max_batch_size", o.cfg.MaxBatchSize))
		return "", false
	}
	if !o.ensureRootDir() {
		return "", false
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	files := o.listSortedFiles()
	files = o.deleteObsoleteFiles(files)
	files = o.freeSpaceIfNeeded(files, dataSize)

	if o.canReuseWritable(files, dataSize) {
		o.writableItems++
		return o.writable, true
	}

	path, err := o.createNewFile(files)
	if err != nil {
		o.logger.Error("Failed to create batch file",
			zap.String("dir", o.rootDir),
			zap.Error(err))
		return "", false
	}
	o.writable = path
	o.writableItems = 1
	o.metrics.RecordBatchFileCreated(filepath.Base(o.rootDir))
	return path, true
}

// GetReadableFile implements FileOrchestrator
func (o *BatchFileOrchestrator) GetReadableFile(exclude map[string]struct{}) (string, bool) {
	if !o.rootDirExists() {
		return "", false
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	files := o.deleteObsoleteFiles(o.listSortedFiles())
	grace := time.Duration(math.Round(float64(o.cfg.RecentDelay) * readGraceFactor))
	cutoff := o.now().Add(-grace).UnixMilli()

	for _, f := range files {
		if _, excluded := exclude[f]; excluded {
			continue
		}
		ts, ok := batchfile.FileTimestamp(f)
		if !ok || ts >= cutoff {
			continue
		}
		if f == o.writable {
			// Past the grace period the writable file can no longer be
			// reused, so it turns readable here instead of on the next write.
			o.writable = ""
			o.writableItems = 0
		}
		return f, true
	}
	return "", false
}

// GetAllFiles implements FileOrchestrator
func (o *BatchFileOrchestrator) GetAllFiles() []string {
	if !o.rootDirExists() {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.listSortedFiles()
}

// GetFlushableFiles implements FileOrchestrator
func (o *BatchFileOrchestrator) GetFlushableFiles() []string {
	return o.GetAllFiles()
}

// GetRootDir implements FileOrchestrator
func (o *BatchFileOrchestrator) GetRootDir() string {
	return o.rootDir
}

// State reports the lifecycle state of path as seen by this orchestrator
func (o *BatchFileOrchestrator) State(path string) model.FileState {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case !batchfile.Exists(path):
		return model.FileStateDeleted
	case path == o.writable:
		return model.FileStateWritable
	default:
		return model.FileStateReadable
	}
}

func (o *BatchFileOrchestrator) ensureRootDir() bool {
	if err := os.MkdirAll(o.rootDir, 0o755); err != nil {
		o.logger.Error("Failed to create storage directory",
			zap.String("dir", o.rootDir),
			zap.Error(err))
		return false
	}
	return true
}

func (o *BatchFileOrchestrator) rootDirExists() bool {
	info, err := os.Stat(o.rootDir)
	if err != nil {
		if !os.IsNotExist(err) {
			o.logger.Error("Failed to stat storage directory",
				zap.String("dir", o.rootDir),
				zap.Error(err))
		}
		return false
	}
	return info.IsDir()
}

// listSortedFiles returns batch files ordered by creation time, then suffix
func (o *BatchFileOrchestrator) listSortedFiles() []string {
	files, err := batchfile.ListFiles(o.rootDir)
	if err != nil {
		o.logger.Error("Failed to list storage directory",
			zap.String("dir", o.rootDir),
			zap.Error(err))
		return nil
	}

	batches := files[:0]
	for _, f := range files {
		if _, ok := batchfile.FileTimestamp(f); ok {
			batches = append(batches, f)
		}
	}
	sort.SliceStable(batches, func(i, j int) bool {
		ti, _ := batchfile.FileTimestamp(batches[i])
		tj, _ := batchfile.FileTimestamp(batches[j])
		if ti != tj {
			return ti < tj
		}
		return suffixOf(batches[i]) < suffixOf(batches[j])
	})
	return batches
}

func suffixOf(path string) int {
	name := filepath.Base(path)
	i := strings.IndexByte(name, '_')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return math.MaxInt32
	}
	return n
}

func (o *BatchFileOrchestrator) deleteObsoleteFiles(files []string) []string {
	threshold := o.now().Add(-o.cfg.OldFileThreshold).UnixMilli()
	kept := make([]string, 0, len(files))
	for _, f := range files {
		ts, _ := batchfile.FileTimestamp(f)
		if ts < threshold {
			if o.deleteFile(f, "obsolete") {
				continue
			}
		}
		kept = append(kept, f)
	}
	return kept
}

// freeSpaceIfNeeded deletes the oldest files until dataSize fits in the quota
func (o *BatchFileOrchestrator) freeSpaceIfNeeded(files []string, dataSize int64) []string {
	var used int64
	for _, f := range files {
		used += batchfile.Size(f)
	}
	o.metrics.UpdateStorageBytes(filepath.Base(o.rootDir), used)

	overflow := used + dataSize - o.cfg.MaxDiskSpace
	if overflow <= 0 {
		return files
	}

	o.logger.Warn("Storage quota exceeded, deleting oldest batches",
		zap.String("dir", o.rootDir),
		zap.Int64("used_bytes", used),
		zap.Int64("overflow_bytes", overflow))

	kept := make([]string, 0, len(files))
	for _, f := range files {
		if overflow > 0 && f != o.writable {
			size := batchfile.Size(f)
			if o.deleteFile(f, "quota") {
				overflow -= size
				continue
			}
		}
		kept = append(kept, f)
	}
	return kept
}

func (o *BatchFileOrchestrator) deleteFile(path, reason string) bool {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		o.logger.Error("Failed to delete batch file",
			zap.String("file", path),
			zap.String("reason", reason),
			zap.Error(err))
		return false
	}
	if path == o.writable {
		o.writable = ""
		o.writableItems = 0
	}
	o.metrics.RecordBatchFileEvicted(filepath.Base(o.rootDir), reason)
	o.logger.Debug("Deleted batch file",
		zap.String("file", path),
		zap.String("reason", reason))
	return true
}

// canReuseWritable reports whether the in-memory writable file can take dataSize more bytes.
// A file left over from a previous process is never reused.
func (o *BatchFileOrchestrator) canReuseWritable(files []string, dataSize int64) bool {
	if o.writable == "" || len(files) == 0 || files[len(files)-1] != o.writable {
		return false
	}
	ts, ok := batchfile.FileTimestamp(o.writable)
	if !ok {
		return false
	}
	recent := o.now().UnixMilli()-ts < o.cfg.RecentDelay.Milliseconds()
	hasRoom := batchfile.Size(o.writable)+dataSize <= o.cfg.MaxBatchSize
	hasSlot := o.writableItems < o.cfg.MaxItemsPerBatch
	return recent && hasRoom && hasSlot
}

func (o *BatchFileOrchestrator) createNewFile(files []string) (string, error) {
	millis := o.now().UnixMilli()
	if n := len(files); n > 0 {
		// Keep names monotonic even if the clock went backwards.
		if last, ok := batchfile.FileTimestamp(files[n-1]); ok && last > millis {
			millis = last
		}
	}

	base := strconv.FormatInt(millis, 10)
	path := filepath.Join(o.rootDir, base)
	next := 1
	if n := len(files); n > 0 {
		if last, _ := batchfile.FileTimestamp(files[n-1]); last == millis {
			next = suffixOf(files[n-1]) + 1
		}
	}
	for batchfile.Exists(path) {
		path = filepath.Join(o.rootDir, fmt.Sprintf("%s_%d", base, next))
		next++
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	return path, f.Close()
}
