package orchestrator

import (
	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"go.uber.org/zap"
)

// DataMigrator moves or wipes stored data when consent changes
type DataMigrator interface {
	// Migrate runs the migration for a consent change. previous is nil at startup.
	Migrate(previous *model.ConsentState, current model.ConsentState)
}

// ConsentDataMigrator applies the migration rules between a pending and a granted directory
type ConsentDataMigrator struct {
	pendingDir string
	grantedDir string
	mover      *FileMover
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewConsentDataMigrator creates a migrator for one feature
func NewConsentDataMigrator(pendingDir, grantedDir string, mover *FileMover, logger *zap.Logger, m *metrics.Metrics) *ConsentDataMigrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mover == nil {
		mover = NewFileMover(logger)
	}
	return &ConsentDataMigrator{
		pendingDir: pendingDir,
		grantedDir: grantedDir,
		mover:      mover,
		logger:     logger,
		metrics:    m,
	}
}

// Migration is what a consent change does to stored data
type Migration int

const (
	MigrationNone Migration = iota
	MigrationWipePending
	MigrationMovePending
)

// MigrationFor returns what a consent change does to stored data
func MigrationFor(previous *model.ConsentState, current model.ConsentState) Migration {
	if previous == nil {
		// Pending data from a previous process cannot be attributed to a decision.
		return MigrationWipePending
	}
	switch {
	case *previous == model.ConsentPending && current == model.ConsentGranted:
		return MigrationMovePending
	case *previous == model.ConsentPending && current == model.ConsentNotGranted:
		return MigrationWipePending
	case *previous != model.ConsentPending && current == model.ConsentPending:
		return MigrationWipePending
	default:
		return MigrationNone
	}
}

// Migrate implements DataMigrator
func (m *ConsentDataMigrator) Migrate(previous *model.ConsentState, current model.ConsentState) {
	from := "none"
	if previous != nil {
		from = string(*previous)
	}

	switch MigrationFor(previous, current) {
	case MigrationWipePending:
		m.mover.Delete(m.pendingDir)
	case MigrationMovePending:
		m.mover.MoveFiles(m.pendingDir, m.grantedDir)
	default:
		return
	}

	m.metrics.RecordConsentMigration(from, string(current))
	m.logger.Debug("Consent migration applied",
		zap.String("from", from),
		zap.String("to", string(current)),
		zap.String("pending_dir", m.pendingDir))
}
