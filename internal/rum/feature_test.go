package rum

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/core"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/persistence"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/orchestrator"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/util/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticContext struct{}

func (staticContext) WriteContext() core.WriteContext { return core.WriteContext{Service: "shop"} }

func TestFeature_WriteAttachesSessionAndMirrorsView(t *testing.T) {
	logger := zap.NewNop()
	now := time.UnixMilli(1_700_000_000_000)
	executor := workerpool.NewSerialExecutor("rum", 64, logger)
	orch := orchestrator.NewBatchFileOrchestrator(filepath.Join(t.TempDir(), "rum_v2"), orchestrator.DefaultConfig(), logger, nil, func() time.Time { return now })
	rw := batchfile.NewBatchFileReaderWriter(nil, logger)
	strategy := persistence.NewStrategy[any](&persistence.Config{
		Feature:      core.RumFeatureName,
		Orchestrator: orch,
		ReaderWriter: rw,
		Executor:     executor,
		Logger:       logger,
	}, EventSerializer{})

	sink := &recordingSink{}
	session := NewSessionState(func() time.Time { return now })
	f := NewFeature(strategy, executor, NewDataWriter(sink, logger), session, staticContext{}, logger)
	t.Cleanup(func() { f.Stop(time.Second) })

	view := sampleView()
	view.Session = model.RumSession{}
	f.Write(view)
	f.Write(&model.ErrorEvent{Error: model.ErrorDetails{Message: "boom", Source: "source"}})
	require.NoError(t, f.Flush(context.Background()))

	var events [][]byte
	for _, file := range orch.GetAllFiles() {
		events = append(events, rw.ReadData(file)...)
	}
	require.Len(t, events, 2)
	require.Len(t, sink.views, 1)

	written, err := DeserializeViewEvent(events[0])
	require.NoError(t, err)
	assert.Equal(t, session.SessionID(), written.Session.ID)
	assert.Equal(t, "user", written.Session.Type)
	assert.Contains(t, string(events[1]), session.SessionID())
	assert.Equal(t, "rum", f.Name())
}
