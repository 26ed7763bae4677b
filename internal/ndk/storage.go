// Package ndk recovers native crash reports left by a previous process and
// turns them into RUM errors and crash logs.
package ndk

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/consent"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/orchestrator"
	"go.uber.org/zap"
)

// Crash artifact names and folders
const (
	CrashLogFileName      = "crash_log"
	LastViewEventFileName = "last_view_event"
	UserInfoFileName      = "user_information"
	NetworkInfoFileName   = "network_information"

	CrashReportsFolderName             = "ndk_crash_reports_v2"
	CrashReportsIntermediaryFolderName = "ndk_crash_reports_intermediary_v2"
)

// GrantedDir returns the folder read at startup
func GrantedDir(storageDir string) string {
	return filepath.Join(storageDir, CrashReportsFolderName)
}

// IntermediaryDir returns the folder artifacts wait in while consent is pending
func IntermediaryDir(storageDir string) string {
	return filepath.Join(storageDir, CrashReportsIntermediaryFolderName)
}

// Storage writes the artifacts the managed side keeps for crash
// correlation, routed by tracking consent.
type Storage struct {
	grantedDir string
	pendingDir string
	consent    consent.Provider
	batchRW    batchfile.ReaderWriter
	fileRW     *batchfile.FileReaderWriter
	logger     *zap.Logger

	mu sync.Mutex
}

// NewStorage creates a Storage, applies the startup migration and follows consent changes
func NewStorage(storageDir string, provider consent.Provider, batchRW batchfile.ReaderWriter, fileRW *batchfile.FileReaderWriter, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{
		grantedDir: GrantedDir(storageDir),
		pendingDir: IntermediaryDir(storageDir),
		consent:    provider,
		batchRW:    batchRW,
		fileRW:     fileRW,
		logger:     logger,
	}
	s.migrate(nil, provider.GetConsent())
	provider.RegisterListener(s)
	return s
}

// OnConsentUpdated implements consent.Listener
func (s *Storage) OnConsentUpdated(previous, current model.ConsentState) {
	s.migrate(&previous, current)
}

// WriteLastViewEvent implements rum.LastViewEventSink
func (s *Storage) WriteLastViewEvent(data []byte) {
	s.write(LastViewEventFileName, func(path string) bool {
		return s.batchRW.WriteData(path, data, false)
	})
}

// WriteUserInfo stores the last known user
func (s *Storage) WriteUserInfo(info *model.UserInfo) {
	s.writeJSON(UserInfoFileName, info)
}

// WriteNetworkInfo stores the last known network state
func (s *Storage) WriteNetworkInfo(info *model.NetworkInfo) {
	s.writeJSON(NetworkInfoFileName, info)
}

// WriteCrashLog stores a crash report the way the native signal handler
// does: plain JSON, straight into the granted folder.
func (s *Storage) WriteCrashLog(log model.NdkCrashLog) bool {
	data, err := json.Marshal(log)
	if err != nil {
		s.logger.Error("Failed to serialize crash log", zap.Error(err))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.grantedDir, 0o700); err != nil {
		s.logger.Error("Failed to create crash report folder", zap.String("dir", s.grantedDir), zap.Error(err))
		return false
	}
	if err := os.WriteFile(filepath.Join(s.grantedDir, CrashLogFileName), data, 0o600); err != nil {
		s.logger.Error("Failed to write crash log", zap.Error(err))
		return false
	}
	return true
}

func (s *Storage) writeJSON(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to serialize crash artifact", zap.String("artifact", name), zap.Error(err))
		return
	}
	s.write(name, func(path string) bool {
		return s.fileRW.WriteData(path, data, false)
	})
}

func (s *Storage) write(name string, fn func(path string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dir string
	switch s.consent.GetConsent() {
	case model.ConsentGranted:
		dir = s.grantedDir
	case model.ConsentPending:
		dir = s.pendingDir
	default:
		return
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		s.logger.Error("Failed to create crash artifact folder", zap.String("dir", dir), zap.Error(err))
		return
	}
	if !fn(filepath.Join(dir, name)) {
		s.logger.Warn("Failed to write crash artifact", zap.String("artifact", name))
	}
}

func (s *Storage) migrate(previous *model.ConsentState, current model.ConsentState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch orchestrator.MigrationFor(previous, current) {
	case orchestrator.MigrationWipePending:
		if err := os.RemoveAll(s.pendingDir); err != nil {
			s.logger.Error("Failed to wipe pending crash artifacts", zap.Error(err))
		}
	case orchestrator.MigrationMovePending:
		s.movePending()
	}
}

// movePending replaces granted artifacts with their pending version
func (s *Storage) movePending() {
	files, err := batchfile.ListFiles(s.pendingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Failed to list pending crash artifacts", zap.Error(err))
		}
		return
	}
	if err := os.MkdirAll(s.grantedDir, 0o700); err != nil {
		s.logger.Error("Failed to create crash report folder", zap.Error(err))
		return
	}
	for _, f := range files {
		dest := filepath.Join(s.grantedDir, filepath.Base(f))
		if err := os.Rename(f, dest); err != nil {
			s.logger.Error("Failed to move crash artifact",
				zap.String("from", f),
				zap.String("to", dest),
				zap.Error(err))
		}
	}
}
