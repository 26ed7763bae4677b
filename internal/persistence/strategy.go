// Package persistence turns typed events into framed records in batch
// files, serializing all file access on one executor per feature.
package persistence

import (
	"context"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/orchestrator"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/util/workerpool"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/validation"
	"go.uber.org/zap"
)

// Serializer turns a model into its wire bytes
type Serializer[T any] interface {
	Serialize(model T) ([]byte, error)
}

// SerializerFunc adapts a function to Serializer
type SerializerFunc[T any] func(model T) ([]byte, error)

// Serialize implements Serializer
func (f SerializerFunc[T]) Serialize(model T) ([]byte, error) {
	return f(model)
}

// DiskGuard is consulted before every write
type DiskGuard interface {
	CheckBeforeWrite(estimatedBytes uint64) error
}

// Config wires a Strategy
type Config struct {
	Feature      string
	Orchestrator orchestrator.FileOrchestrator
	ReaderWriter batchfile.ReaderWriter
	Validator    *validation.Validator
	// DiskGuard may be nil
	DiskGuard DiskGuard
	Executor  *workerpool.WorkerPool
	Encrypted bool
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Strategy persists models of type T for one feature
type Strategy[T any] struct {
	feature    string
	orch       orchestrator.FileOrchestrator
	rw         batchfile.ReaderWriter
	validator  *validation.Validator
	diskGuard  DiskGuard
	executor   *workerpool.WorkerPool
	encrypted  bool
	serializer Serializer[T]
	logger     *zap.Logger
	metrics    *metrics.Metrics

	writer *dataWriter[T]
	reader *dataReader
}

// NewStrategy creates a Strategy
func NewStrategy[T any](cfg *Config, serializer Serializer[T]) *Strategy[T] {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validator := cfg.Validator
	if validator == nil {
		validator = validation.NewValidator()
	}

	s := &Strategy[T]{
		feature:    cfg.Feature,
		orch:       cfg.Orchestrator,
		rw:         cfg.ReaderWriter,
		validator:  validator,
		diskGuard:  cfg.DiskGuard,
		executor:   cfg.Executor,
		encrypted:  cfg.Encrypted,
		serializer: serializer,
		logger:     logger.With(zap.String("feature", cfg.Feature)),
		metrics:    cfg.Metrics,
	}
	s.writer = &dataWriter[T]{strategy: s}
	s.reader = newDataReader(s.feature, s.orch, s.rw, s.executor, s.logger)
	return s
}

// Feature returns the feature name
func (s *Strategy[T]) Feature() string {
	return s.feature
}

// Writer returns the fire-and-forget writer
func (s *Strategy[T]) Writer() DataWriter[T] {
	return s.writer
}

// Reader returns the batch reader used by the uploader
func (s *Strategy[T]) Reader() DataReader {
	return s.reader
}

// Orchestrator returns the orchestrator backing this strategy
func (s *Strategy[T]) Orchestrator() orchestrator.FileOrchestrator {
	return s.orch
}

// WithBatchWriter runs fn on the feature executor with a writer bound to
// the feature's writable batch. It returns false when the task was rejected.
func (s *Strategy[T]) WithBatchWriter(fn func(w EventBatchWriter)) bool {
	err := s.executor.Submit(workerpool.Task{
		ID: "batch-writer-" + s.feature,
		Fn: func(context.Context) error {
			fn(eventBatchWriter{write: s.writeBytes})
			return nil
		},
	})
	if err != nil {
		s.logger.Error("Unable to schedule operation on the executor", zap.Error(err))
		s.metrics.RecordEventDropped(s.feature, "rejected")
		return false
	}
	return true
}

// Flush waits until every previously submitted write has reached disk
func (s *Strategy[T]) Flush(ctx context.Context) error {
	return s.executor.Flush(ctx)
}

func (s *Strategy[T]) writeModel(element T) bool {
	data, err := s.serializer.Serialize(element)
	if err != nil {
		s.logger.Error("Failed to serialize event", zap.Error(err))
		s.metrics.RecordEventDropped(s.feature, "serialization")
		return false
	}
	return s.writeBytes(data)
}

// writeBytes appends one serialized event. Must run on the executor.
func (s *Strategy[T]) writeBytes(data []byte) bool {
	if err := s.validator.ValidateEvent(data); err != nil {
		s.logger.Warn("Dropping invalid event", zap.Error(err))
		s.metrics.RecordEventDropped(s.feature, "invalid")
		return false
	}

	size := validation.EstimateWriteSize(data, s.encrypted)
	if s.diskGuard != nil {
		if err := s.diskGuard.CheckBeforeWrite(size); err != nil {
			s.logger.Warn("Dropping event, device storage is full", zap.Error(err))
			s.metrics.RecordEventDropped(s.feature, "disk")
			return false
		}
	}

	file, ok := s.orch.GetWritableFile(int64(size))
	if !ok {
		s.metrics.RecordEventDropped(s.feature, "no_writable_file")
		return false
	}

	if !s.rw.WriteData(file, data, true) {
		s.metrics.RecordEventDropped(s.feature, "write_failed")
		return false
	}

	s.metrics.RecordEventWritten(s.feature, len(data))
	return true
}
