// Package logs implements the logs feature: log persistence and crash log intake.
package logs

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

// Feature persists log events
type Feature struct {
	strategy *persistence.Strategy[model.LogEvent]
	executor *workerpool.WorkerPool
	context  WriteContextProvider
	logger   *zap.Logger
}

// NewFeature creates the logs feature on top of a persistence strategy
func NewFeature(strategy *persistence.Strategy[model.LogEvent], executor *workerpool.WorkerPool, ctxProvider WriteContextProvider, logger *zap.Logger) *Feature {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feature{
		strategy: strategy,
		executor: executor,
		context:  ctxProvider,
		logger:   logger,
	}
}

// Name implements core.Feature
func (f *Feature) Name() string {
	return core.LogsFeatureName
}

// Writer returns the fire-and-forget log writer
func (f *Feature) Writer() persistence.DataWriter[model.LogEvent] {
	return f.strategy.Writer()
}

// Reader returns the batch reader used by the upload scheduler
func (f *Feature) Reader() persistence.DataReader {
	return f.strategy.Reader()
}

// Log builds a LogEvent stamped with the current write context and writes it
func (f *Feature) Log(status, message string, attributes map[string]any, tags []string) {
	wc := f.context.WriteContext()
	f.Writer().Write(model.LogEvent{
		Status:     status,
		Service:    wc.Service,
		Message:    message,
		Date:       wc.DeviceTimeMillis + wc.ServerOffsetMillis,
		Version:    wc.Version,
		Attributes: attributes,
		Tags:       append(append([]string(nil), tags...), envTags(wc)...),
	})
}

// SendEvent implements core.Feature
func (f *Feature) SendEvent(event core.FeatureEvent) {
	switch e := event.(type) {
	case core.CrashLogEvent:
		f.sendCrashLog(e)
	default:
		f.logger.Warn("Logs feature received an unsupported event", zap.Any("event", event))
	}
}

// WithWriteContext implements core.Feature
func (f *Feature) WithWriteContext(fn func(ctx core.WriteContext, writer persistence.EventBatchWriter)) bool {
	return f.strategy.WithBatchWriter(func(w persistence.EventBatchWriter) {
		fn(f.context.WriteContext(), w)
	})
}

// Flush waits for every queued log write
func (f *Feature) Flush(ctx context.Context) error {
	return f.strategy.Flush(ctx)
}

// Stop implements core.Stopper
func (f *Feature) Stop(timeout time.Duration) {
	if err := f.executor.Stop(timeout); err != nil {
		f.logger.Warn("Logs executor did not stop cleanly", zap.Error(err))
	}
}

func (f *Feature) sendCrashLog(e core.CrashLogEvent) {
	f.WithWriteContext(func(wc core.WriteContext, w persistence.EventBatchWriter) {
		event := model.LogEvent{
			Status:      model.LogStatusError,
			Service:     wc.Service,
			Message:     e.Message,
			Date:        e.Timestamp,
			LoggerName:  e.LoggerName,
			ThreadName:  "main",
			Version:     wc.Version,
			Tags:        envTags(wc),
			Attributes:  e.Attributes,
			UserInfo:    e.UserInfo,
			NetworkInfo: e.NetworkInfo,
		}
		if stack, ok := e.Attributes[AttrErrorStack].(string); ok {
			event.ErrorStack = stack
		}

		data, err := LogEventSerializer{}.Serialize(event)
		if err != nil {
			f.logger.Error("Unable to serialize crash log", zap.Error(err))
			return
		}
		if !w.Write(data) {
			f.logger.Error("Unable to write crash log", zap.String("logger", e.LoggerName))
		}
	})
}

func envTags(wc core.WriteContext) []string {
	tags := make([]string, 0, 2)
	if wc.Env != "" {
		tags = append(tags, "env:"+wc.Env)
	}
	if wc.Version != "" {
		tags = append(tags, "version:"+wc.Version)
	}
	return tags
}
