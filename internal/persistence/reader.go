package persistence

import (
	"context"
	"os"
	"sync"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/orchestrator"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/util/workerpool"
	"go.uber.org/zap"
)

// Batch is one locked batch file and its events
type Batch struct {
	ID   string
	Data [][]byte
}

// Payload renders the batch for upload
func (b *Batch) Payload(d batchfile.PayloadDecoration) []byte {
	return d.Decorate(b.Data)
}

// DataReader hands batches to the uploader. A locked batch is invisible to
// further reads until it is released or dropped.
type DataReader interface {
	LockAndReadNext(ctx context.Context) (*Batch, bool)
	Release(batch *Batch)
	Drop(batch *Batch)
	DropAll(ctx context.Context)
}

type dataReader struct {
	feature  string
	orch     orchestrator.FileOrchestrator
	rw       batchfile.ReaderWriter
	executor *workerpool.WorkerPool
	logger   *zap.Logger

	mu     sync.Mutex
	locked map[string]struct{}
}

func newDataReader(feature string, orch orchestrator.FileOrchestrator, rw batchfile.ReaderWriter, executor *workerpool.WorkerPool, logger *zap.Logger) *dataReader {
	return &dataReader{
		feature:  feature,
		orch:     orch,
		rw:       rw,
		executor: executor,
		logger:   logger,
		locked:   make(map[string]struct{}),
	}
}

func (r *dataReader) lockedSnapshot() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[string]struct{}, len(r.locked))
	for k := range r.locked {
		snapshot[k] = struct{}{}
	}
	return snapshot
}

// LockAndReadNext implements DataReader. A read that completes after ctx is
// done leaves the file unlocked.
func (r *dataReader) LockAndReadNext(ctx context.Context) (*Batch, bool) {
	var (
		batch     *Batch
		abandoned bool
	)
	err := r.executor.SubmitAndWait(ctx, workerpool.Task{
		ID: "read-" + r.feature,
		Fn: func(context.Context) error {
			if ctx.Err() != nil {
				return nil
			}
			file, ok := r.orch.GetReadableFile(r.lockedSnapshot())
			if !ok {
				return nil
			}
			data := r.rw.ReadData(file)

			r.mu.Lock()
			defer r.mu.Unlock()
			if abandoned {
				return nil
			}
			r.locked[file] = struct{}{}
			batch = &Batch{ID: file, Data: data}
			return nil
		},
	})
	if err != nil {
		r.mu.Lock()
		abandoned = true
		if batch != nil {
			delete(r.locked, batch.ID)
			batch = nil
		}
		r.mu.Unlock()
		r.logger.Warn("Unable to read next batch", zap.Error(err))
		return nil, false
	}
	return batch, batch != nil
}

// Release implements DataReader. The batch stays on disk for a later retry.
func (r *dataReader) Release(batch *Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locked, batch.ID)
}

// Drop implements DataReader. The batch file is deleted.
func (r *dataReader) Drop(batch *Batch) {
	drop := func(context.Context) error {
		r.deleteFile(batch.ID)
		r.Release(batch)
		return nil
	}

	if err := r.executor.Submit(workerpool.Task{ID: "drop-" + r.feature, Fn: drop}); err != nil {
		// The file is locked, so no writer can be using it.
		_ = drop(context.Background())
	}
}

// DropAll implements DataReader. Every batch, including the writable one, is deleted.
func (r *dataReader) DropAll(ctx context.Context) {
	err := r.executor.SubmitAndWait(ctx, workerpool.Task{
		ID: "drop-all-" + r.feature,
		Fn: func(context.Context) error {
			for _, f := range r.orch.GetAllFiles() {
				r.deleteFile(f)
			}
			r.mu.Lock()
			r.locked = make(map[string]struct{})
			r.mu.Unlock()
			return nil
		},
	})
	if err != nil {
		r.logger.Warn("Unable to drop all batches", zap.Error(err))
	}
}

func (r *dataReader) deleteFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Error("Failed to delete batch file",
			zap.String("file", path),
			zap.Error(err))
	}
}
