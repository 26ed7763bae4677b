package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/config"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/ndk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAgent_IngestToUpload(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var bodies []string
	intake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer intake.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
site:
  endpoint: `+intake.URL+`
  client_token: tok
  service: shop
storage:
  data_dir: `+filepath.Join(dir, "data")+`
  recent_delay: 1ms
  max_disk_usage: 1.0
consent:
  initial: granted
`), 0o600))

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(cfg.Storage.DataDir, 0o755))

	a, err := newAgent(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Shutdown()

	rec := httptest.NewRecorder()
	a.ops.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events/logs", strings.NewReader(`{"message":"hello from ingest"}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	ctx := context.Background()
	require.NoError(t, a.logs.Flush(ctx))

	require.Eventually(t, func() bool {
		return a.schedulers[0].Drain(ctx) > 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Equal(t, "/v1/input/tok", paths[0])
	assert.Contains(t, bodies[0], "hello from ingest")
	assert.True(t, strings.HasPrefix(bodies[0], "["))
}

func TestAgent_FeaturesRegistered(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
site:
  client_token: tok
storage:
  data_dir: `+dir+`
  max_disk_usage: 1.0
`), 0o600))

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)

	a, err := newAgent(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Shutdown()

	assert.Equal(t, []string{"logs", "rum"}, a.core.FeatureNames())
	_, ok := a.core.GetFeature("logs")
	assert.True(t, ok)
}

type recordingIntake struct {
	mu     sync.Mutex
	bodies []string
}

func newRecordingIntake(t *testing.T) (*httptest.Server, *recordingIntake) {
	t.Helper()
	rec := &recordingIntake{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, string(body))
		rec.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func (r *recordingIntake) all() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.bodies, "\n")
}

func newTestAgent(t *testing.T, endpoint string) *agent {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
site:
  endpoint: `+endpoint+`
  client_token: tok
  service: shop
storage:
  data_dir: `+filepath.Join(dir, "data")+`
  recent_delay: 1ms
  max_disk_usage: 1.0
consent:
  initial: granted
`), 0o600))

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(cfg.Storage.DataDir, 0o755))

	a, err := newAgent(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a
}

func writeCrashLog(t *testing.T, dataDir string) {
	t.Helper()
	data, err := json.Marshal(model.NdkCrashLog{
		Signal:     11,
		Timestamp:  time.Now().UnixMilli(),
		SignalName: "SIGSEGV",
		Message:    "Segmentation violation",
		Stacktrace: "#00 pc 0000 libnative.so",
	})
	require.NoError(t, err)
	dir := ndk.GrantedDir(dataDir)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ndk.CrashLogFileName), data, 0o600))
}

func TestAgent_CrashContextReachesCrashLog(t *testing.T) {
	intake, received := newRecordingIntake(t)
	a := newTestAgent(t, intake.URL)
	handler := a.ops.Handler()

	for path, body := range map[string]string{
		"/v1/context/user":    `{"id":"u-42","name":"Jane"}`,
		"/v1/context/network": `{"connectivity":"network_wifi"}`,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, path, strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	crashDir := ndk.GrantedDir(a.cfg.Storage.DataDir)
	assert.FileExists(t, filepath.Join(crashDir, ndk.UserInfoFileName))
	assert.FileExists(t, filepath.Join(crashDir, ndk.NetworkInfoFileName))

	// what the native handler leaves behind when the process dies
	writeCrashLog(t, a.cfg.Storage.DataDir)

	ctx := context.Background()
	a.ndkHandler.PrepareData()
	a.ndkHandler.HandleNdkCrash(a.core, a.rum.DataWriter())
	require.NoError(t, a.ndkHandler.Wait(ctx))
	require.NoError(t, a.logs.Flush(ctx))

	require.Eventually(t, func() bool {
		return a.schedulers[0].Drain(ctx) > 0
	}, 5*time.Second, 20*time.Millisecond)

	body := received.all()
	assert.Contains(t, body, "NDK crash detected with signal: SIGSEGV")
	assert.Contains(t, body, `"usr":{`)
	assert.Contains(t, body, `"u-42"`)
	assert.Contains(t, body, `"network_wifi"`)
	assert.NoFileExists(t, filepath.Join(crashDir, ndk.UserInfoFileName))
}

func TestAgent_OpsServesAfterPreviousCrashIsRead(t *testing.T) {
	intake, _ := newRecordingIntake(t)
	a := newTestAgent(t, intake.URL)
	writeCrashLog(t, a.cfg.Storage.DataDir)
	crashLog := filepath.Join(ndk.GrantedDir(a.cfg.Storage.DataDir), ndk.CrashLogFileName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var crashLogLeft atomic.Bool
	serving := make(chan struct{})
	a.serveOps = func(ctx context.Context) error {
		_, err := os.Stat(crashLog)
		crashLogLeft.Store(err == nil)
		close(serving)
		<-ctx.Done()
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-serving:
	case <-time.After(5 * time.Second):
		t.Fatal("ops server never started")
	}
	assert.False(t, crashLogLeft.Load(), "ingest opened before the previous crash was read")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
}
