// Package rum implements the RUM feature: event persistence, session
// tracking and the last view mirror used by crash recovery.
package rum

import (
	"context"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/core"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/persistence"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/util/workerpool"
	"go.uber.org/zap"
)

// WriteContextProvider snapshots the SDK state for a write
type WriteContextProvider interface {
	WriteContext() core.WriteContext
}

// Feature persists RUM events
type Feature struct {
	strategy *persistence.Strategy[any]
	executor *workerpool.WorkerPool
	writer   *DataWriter
	session  *SessionState
	context  WriteContextProvider
	logger   *zap.Logger
}

// NewFeature creates the RUM feature
func NewFeature(strategy *persistence.Strategy[any], executor *workerpool.WorkerPool, writer *DataWriter, session *SessionState, ctxProvider WriteContextProvider, logger *zap.Logger) *Feature {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feature{
		strategy: strategy,
		executor: executor,
		writer:   writer,
		session:  session,
		context:  ctxProvider,
		logger:   logger,
	}
}

// Name implements core.Feature
func (f *Feature) Name() string {
	return core.RumFeatureName
}

// DataWriter returns the writer used inside a write context
func (f *Feature) DataWriter() *DataWriter {
	return f.writer
}

// Session returns the session state
func (f *Feature) Session() *SessionState {
	return f.session
}

// Reader returns the batch reader used by the upload scheduler
func (f *Feature) Reader() persistence.DataReader {
	return f.strategy.Reader()
}

// Write persists a view or error event. Events without a session are
// attached to the current one; a view counts as user interaction.
func (f *Feature) Write(event any) {
	switch e := event.(type) {
	case *model.ViewEvent:
		if e.Session.ID == "" {
			e.Session.ID, _ = f.session.Touch(true)
			e.Session.Type = "user"
		}
	case *model.ErrorEvent:
		if e.Session.ID == "" {
			e.Session.ID, _ = f.session.Touch(false)
			e.Session.Type = "user"
		}
	}

	f.WithWriteContext(func(_ core.WriteContext, w persistence.EventBatchWriter) {
		f.writer.Write(w, event)
	})
}

// SendEvent implements core.Feature. RUM accepts no cross-feature events yet.
func (f *Feature) SendEvent(event core.FeatureEvent) {
	f.logger.Warn("RUM feature received an unsupported event", zap.Any("event", event))
}

// WithWriteContext implements core.Feature
func (f *Feature) WithWriteContext(fn func(ctx core.WriteContext, writer persistence.EventBatchWriter)) bool {
	return f.strategy.WithBatchWriter(func(w persistence.EventBatchWriter) {
		fn(f.context.WriteContext(), w)
	})
}

// Flush waits for every queued RUM write
func (f *Feature) Flush(ctx context.Context) error {
	return f.strategy.Flush(ctx)
}

// Stop implements core.Stopper
func (f *Feature) Stop(timeout time.Duration) {
	if err := f.executor.Stop(timeout); err != nil {
		f.logger.Warn("RUM executor did not stop cleanly", zap.Error(err))
	}
}
