package persistence

import (
	"context"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/util/workerpool"
	"go.uber.org/zap"
)

// DataWriter accepts models without blocking the caller
type DataWriter[T any] interface {
	Write(element T)
	WriteAll(elements []T)
}

// EventBatchWriter appends already serialized events to the current batch
type EventBatchWriter interface {
	Write(event []byte) bool
}

type eventBatchWriter struct {
	write func([]byte) bool
}

func (w eventBatchWriter) Write(event []byte) bool {
	return w.write(event)
}

type dataWriter[T any] struct {
	strategy *Strategy[T]
}

// Write implements DataWriter. A rejected submission drops the event.
func (w *dataWriter[T]) Write(element T) {
	s := w.strategy
	err := s.executor.Submit(workerpool.Task{
		ID: "write-" + s.feature,
		Fn: func(context.Context) error {
			s.writeModel(element)
			return nil
		},
	})
	if err != nil {
		s.logger.Error("Unable to schedule operation on the executor", zap.Error(err))
		s.metrics.RecordEventDropped(s.feature, "rejected")
	}
}

// WriteAll implements DataWriter
func (w *dataWriter[T]) WriteAll(elements []T) {
	for _, e := range elements {
		w.Write(e)
	}
}

// NoOpDataWriter discards everything
type NoOpDataWriter[T any] struct{}

// Write implements DataWriter
func (NoOpDataWriter[T]) Write(T) {}

// WriteAll implements DataWriter
func (NoOpDataWriter[T]) WriteAll([]T) {}
