package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/orchestrator"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/util/workerpool"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/validation"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEvent struct {
	Message string `json:"message"`
}

var jsonSerializer = SerializerFunc[testEvent](func(e testEvent) ([]byte, error) {
	if e.Message == "unserializable" {
		return nil, errors.New("cannot serialize")
	}
	return json.Marshal(e)
})

type denyGuard struct{}

func (denyGuard) CheckBeforeWrite(uint64) error { return errors.New("disk full") }

type fixture struct {
	strategy *Strategy[testEvent]
	executor *workerpool.WorkerPool
	metrics  *metrics.Metrics
	now      time.Time
	dir      string
}

func setupStrategy(t *testing.T, guard DiskGuard) *fixture {
	t.Helper()
	f := &fixture{now: time.UnixMilli(1_700_000_000_000)}
	logger := zap.NewNop()
	f.dir = filepath.Join(t.TempDir(), "logs_v2")
	f.metrics = metrics.NewMetrics("test")
	f.executor = workerpool.NewSerialExecutor("logs", 64, logger)
	t.Cleanup(func() { f.executor.Stop(time.Second) })

	orch := orchestrator.NewBatchFileOrchestrator(f.dir, orchestrator.DefaultConfig(), logger, f.metrics, func() time.Time { return f.now })
	f.strategy = NewStrategy[testEvent](&Config{
		Feature:      "logs",
		Orchestrator: orch,
		ReaderWriter: batchfile.NewBatchFileReaderWriter(nil, logger),
		DiskGuard:    guard,
		Executor:     f.executor,
		Logger:       logger,
		Metrics:      f.metrics,
	}, jsonSerializer)
	return f
}

// advance moves the clock so the current writable batch becomes readable
// on the next write
func (f *fixture) advance() {
	f.executor.Submit(workerpool.Task{ID: "tick", Fn: func(context.Context) error {
		f.now = f.now.Add(10 * time.Second)
		return nil
	}})
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, f.strategy.Flush(context.Background()))
}

func (f *fixture) dropped(reason string) float64 {
	return testutil.ToFloat64(f.metrics.EventsDroppedTotal.WithLabelValues("logs", reason))
}

func TestStrategy_WriteThenRead(t *testing.T) {
	f := setupStrategy(t, nil)
	w := f.strategy.Writer()

	w.WriteAll([]testEvent{{Message: "a"}, {Message: "b"}})
	f.advance()
	w.Write(testEvent{Message: "c"})
	f.flush(t)

	r := f.strategy.Reader()
	batch, ok := r.LockAndReadNext(context.Background())
	require.True(t, ok)
	assert.Equal(t, `[{"message":"a"},{"message":"b"}]`, string(batch.Payload(batchfile.JSONArrayDecoration)))

	// The only other file is still writable.
	_, ok = r.LockAndReadNext(context.Background())
	assert.False(t, ok)

	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.EventsWrittenTotal.WithLabelValues("logs")))
}

func TestStrategy_LockedBatchIsExcludedUntilReleased(t *testing.T) {
	f := setupStrategy(t, nil)
	w := f.strategy.Writer()

	w.Write(testEvent{Message: "first"})
	f.advance()
	w.Write(testEvent{Message: "second"})
	f.advance()
	w.Write(testEvent{Message: "third"})
	f.flush(t)

	r := f.strategy.Reader()
	b1, ok := r.LockAndReadNext(context.Background())
	require.True(t, ok)
	b2, ok := r.LockAndReadNext(context.Background())
	require.True(t, ok)
	assert.NotEqual(t, b1.ID, b2.ID)

	_, ok = r.LockAndReadNext(context.Background())
	assert.False(t, ok)

	r.Release(b1)
	again, ok := r.LockAndReadNext(context.Background())
	require.True(t, ok)
	assert.Equal(t, b1.ID, again.ID)

	r.Drop(again)
	f.flush(t)
	assert.NoFileExists(t, b1.ID)
	assert.FileExists(t, b2.ID)
}

func TestStrategy_DropsBadEvents(t *testing.T) {
	f := setupStrategy(t, nil)

	f.strategy.Writer().Write(testEvent{Message: "unserializable"})
	f.strategy.WithBatchWriter(func(w EventBatchWriter) {
		assert.False(t, w.Write([]byte("not json")))
		assert.False(t, w.Write(nil))
	})
	f.flush(t)

	assert.Equal(t, 1.0, f.dropped("serialization"))
	assert.Equal(t, 2.0, f.dropped("invalid"))
	assert.Empty(t, f.strategy.Orchestrator().GetAllFiles())
}

func TestStrategy_DiskGuardRejects(t *testing.T) {
	f := setupStrategy(t, denyGuard{})

	f.strategy.Writer().Write(testEvent{Message: "a"})
	f.flush(t)

	assert.Equal(t, 1.0, f.dropped("disk"))
	assert.Empty(t, f.strategy.Orchestrator().GetAllFiles())
}

func TestStrategy_WithBatchWriter(t *testing.T) {
	f := setupStrategy(t, nil)

	done := make(chan bool, 1)
	require.True(t, f.strategy.WithBatchWriter(func(w EventBatchWriter) {
		done <- w.Write([]byte(`{"raw":true}`))
	}))
	assert.True(t, <-done)

	f.advance()
	f.strategy.Writer().Write(testEvent{Message: "roll"})
	f.flush(t)

	batch, ok := f.strategy.Reader().LockAndReadNext(context.Background())
	require.True(t, ok)
	require.Len(t, batch.Data, 1)
	assert.JSONEq(t, `{"raw":true}`, string(batch.Data[0]))
}

func TestStrategy_RejectedSubmissionNeverBlocks(t *testing.T) {
	f := setupStrategy(t, nil)
	require.NoError(t, f.executor.Stop(time.Second))

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			f.strategy.Writer().Write(testEvent{Message: fmt.Sprint(i)})
		}
		assert.False(t, f.strategy.WithBatchWriter(func(EventBatchWriter) {}))
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("writes blocked on a stopped executor")
	}
	assert.Equal(t, 11.0, f.dropped("rejected"))
}

func TestStrategy_DropAll(t *testing.T) {
	f := setupStrategy(t, nil)

	f.strategy.Writer().Write(testEvent{Message: "a"})
	f.advance()
	f.strategy.Writer().Write(testEvent{Message: "b"})
	f.flush(t)
	require.Len(t, f.strategy.Orchestrator().GetAllFiles(), 2)

	f.strategy.Reader().DropAll(context.Background())
	assert.Empty(t, f.strategy.Orchestrator().GetAllFiles())
}

func TestNoOpDataWriter(t *testing.T) {
	var w DataWriter[testEvent] = NoOpDataWriter[testEvent]{}
	assert.NotPanics(t, func() {
		w.Write(testEvent{})
		w.WriteAll([]testEvent{{}, {}})
	})
}

type recordingGuard struct{ estimates []uint64 }

func (g *recordingGuard) CheckBeforeWrite(n uint64) error {
	g.estimates = append(g.estimates, n)
	return nil
}

type recordingOrchestrator struct {
	orchestrator.FileOrchestrator
	sizes []int64
}

func (o *recordingOrchestrator) GetWritableFile(dataSize int64) (string, bool) {
	o.sizes = append(o.sizes, dataSize)
	return o.FileOrchestrator.GetWritableFile(dataSize)
}

func TestStrategy_EncryptedWriteSizeIncludesOverhead(t *testing.T) {
	logger := zap.NewNop()
	executor := workerpool.NewSerialExecutor("logs", 8, logger)
	t.Cleanup(func() { executor.Stop(time.Second) })

	guard := &recordingGuard{}
	orch := &recordingOrchestrator{
		FileOrchestrator: orchestrator.NewBatchFileOrchestrator(t.TempDir(), orchestrator.DefaultConfig(), logger, nil, nil),
	}
	strategy := NewStrategy[testEvent](&Config{
		Feature:      "logs",
		Orchestrator: orch,
		ReaderWriter: batchfile.NewBatchFileReaderWriter(nil, logger),
		DiskGuard:    guard,
		Executor:     executor,
		Encrypted:    true,
		Logger:       logger,
	}, jsonSerializer)

	strategy.Writer().Write(testEvent{Message: "secret"})
	require.NoError(t, strategy.Flush(context.Background()))

	data, _ := json.Marshal(testEvent{Message: "secret"})
	want := validation.EstimateWriteSize(data, true)
	require.Len(t, guard.estimates, 1)
	require.Len(t, orch.sizes, 1)
	assert.Equal(t, want, guard.estimates[0])
	assert.Equal(t, int64(want), orch.sizes[0])
	assert.Greater(t, orch.sizes[0], int64(len(data)+batchfile.BlockOverhead))
}

func TestStrategy_ReadAbandonedByCallerLeavesBatchUnlocked(t *testing.T) {
	f := setupStrategy(t, nil)
	f.strategy.Writer().Write(testEvent{Message: "a"})
	f.advance()
	f.strategy.Writer().Write(testEvent{Message: "b"})
	f.flush(t)

	release := make(chan struct{})
	require.NoError(t, f.executor.Submit(workerpool.Task{ID: "busy", Fn: func(context.Context) error {
		<-release
		return nil
	}}))

	r := f.strategy.Reader()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := r.LockAndReadNext(ctx)
	assert.False(t, ok)

	close(release)
	f.flush(t)

	batch, ok := r.LockAndReadNext(context.Background())
	require.True(t, ok, "the abandoned read must not keep the batch locked")
	assert.Equal(t, `[{"message":"a"}]`, string(batch.Payload(batchfile.JSONArrayDecoration)))
}
