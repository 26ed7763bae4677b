package orchestrator

import (
	"context"
	"sync"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/consent"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/util/workerpool"
	"go.uber.org/zap"
)

// ConsentAwareFileOrchestrator routes writes to the pending or granted
// orchestrator depending on consent. Reads only ever see granted data.
// Consent changes are applied on the feature executor, so every write is
// routed by the consent in force when it was submitted.
type ConsentAwareFileOrchestrator struct {
	pending  FileOrchestrator
	granted  FileOrchestrator
	migrator DataMigrator
	executor *workerpool.WorkerPool
	logger   *zap.Logger

	mu       sync.RWMutex
	delegate FileOrchestrator
}

// NewConsentAwareFileOrchestrator wires the orchestrator to provider and
// schedules the startup migration
func NewConsentAwareFileOrchestrator(
	provider consent.Provider,
	pending, granted FileOrchestrator,
	migrator DataMigrator,
	executor *workerpool.WorkerPool,
	logger *zap.Logger,
) *ConsentAwareFileOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &ConsentAwareFileOrchestrator{
		pending:  pending,
		granted:  granted,
		migrator: migrator,
		executor: executor,
		logger:   logger,
	}

	initial := provider.GetConsent()
	o.delegate = o.resolve(initial)
	o.schedule(nil, initial)
	provider.RegisterListener(o)
	return o
}

// OnConsentUpdated implements consent.Listener
func (o *ConsentAwareFileOrchestrator) OnConsentUpdated(previous, current model.ConsentState) {
	prev := previous
	o.schedule(&prev, current)
}

func (o *ConsentAwareFileOrchestrator) schedule(previous *model.ConsentState, current model.ConsentState) {
	apply := func(context.Context) error {
		o.migrator.Migrate(previous, current)
		o.mu.Lock()
		o.delegate = o.resolve(current)
		o.mu.Unlock()
		return nil
	}

	err := o.executor.Submit(workerpool.Task{ID: "consent-migration", Fn: apply})
	if err != nil {
		// Route new writes by the new consent anyway; leftover pending data
		// is wiped by the next startup migration.
		o.logger.Error("Unable to schedule operation on the executor",
			zap.String("task", "consent-migration"),
			zap.Error(err))
		o.mu.Lock()
		o.delegate = o.resolve(current)
		o.mu.Unlock()
	}
}

func (o *ConsentAwareFileOrchestrator) resolve(c model.ConsentState) FileOrchestrator {
	switch c {
	case model.ConsentGranted:
		return o.granted
	case model.ConsentPending:
		return o.pending
	default:
		return nil
	}
}

// GetWritableFile implements FileOrchestrator. Writes are dropped while
// consent is not granted.
func (o *ConsentAwareFileOrchestrator) GetWritableFile(dataSize int64) (string, bool) {
	o.mu.RLock()
	delegate := o.delegate
	o.mu.RUnlock()

	if delegate == nil {
		return "", false
	}
	return delegate.GetWritableFile(dataSize)
}

// GetReadableFile implements FileOrchestrator
func (o *ConsentAwareFileOrchestrator) GetReadableFile(exclude map[string]struct{}) (string, bool) {
	return o.granted.GetReadableFile(exclude)
}

// GetAllFiles implements FileOrchestrator
func (o *ConsentAwareFileOrchestrator) GetAllFiles() []string {
	return append(o.pending.GetAllFiles(), o.granted.GetAllFiles()...)
}

// GetFlushableFiles implements FileOrchestrator
func (o *ConsentAwareFileOrchestrator) GetFlushableFiles() []string {
	return o.granted.GetFlushableFiles()
}

// GetRootDir implements FileOrchestrator. There is no single root.
func (o *ConsentAwareFileOrchestrator) GetRootDir() string {
	return ""
}
