package rum

import (
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/persistence"
	"go.uber.org/zap"
)

// LastViewEventSink keeps the latest serialized view for crash correlation
type LastViewEventSink interface {
	WriteLastViewEvent(data []byte)
}

// DataWriter writes RUM events into a batch and mirrors every view event
// into the last view event artifact.
type DataWriter struct {
	serializer EventSerializer
	sink       LastViewEventSink
	logger     *zap.Logger
}

// NewDataWriter creates a DataWriter. sink may be nil.
func NewDataWriter(sink LastViewEventSink, logger *zap.Logger) *DataWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataWriter{sink: sink, logger: logger}
}

// Write serializes event and appends it through w
func (d *DataWriter) Write(w persistence.EventBatchWriter, event any) bool {
	data, err := d.serializer.Serialize(event)
	if err != nil {
		d.logger.Error("Failed to serialize RUM event", zap.Error(err))
		return false
	}
	if !w.Write(data) {
		return false
	}

	if d.sink != nil && isView(event) {
		d.sink.WriteLastViewEvent(data)
	}
	return true
}

func isView(event any) bool {
	switch event.(type) {
	case *model.ViewEvent, model.ViewEvent:
		return true
	default:
		return false
	}
}
