package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/config"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/health"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/diskmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newTestOpsServer(t *testing.T, dataDir string) (*OpsServer, *health.HealthChecker) {
	t.Helper()
	checker := health.NewHealthChecker(&health.HealthCheckConfig{DataDir: dataDir}, zap.NewNop())
	srv := NewOpsServer(&OpsServerConfig{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			RateLimit:       100,
			RateBurst:       100,
			ShutdownTimeout: time.Second,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		DataDir: dataDir,
	}, nil, checker, metrics.NewMetrics("test"), zap.NewNop())
	srv.stat = func(string) (diskmanager.Usage, error) {
		return diskmanager.Usage{TotalBytes: 1000, AvailableBytes: 250}, nil
	}
	return srv, checker
}

func TestOpsServer_Metrics(t *testing.T) {
	srv, _ := newTestOpsServer(t, t.TempDir())
	srv.updateSystemMetrics()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ddsdk_")
	assert.Contains(t, rec.Body.String(), `service="test"`)
}

func TestOpsServer_HealthProbes(t *testing.T) {
	srv, checker := newTestOpsServer(t, t.TempDir())
	checker.RunChecks()

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestOpsServer_GRPCServingFollowsReadiness(t *testing.T) {
	srv, checker := newTestOpsServer(t, filepath.Join(t.TempDir(), "missing"))
	ctx := context.Background()

	resp, err := srv.GRPCHealth().Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	checker.RunChecks()
	srv.updateSystemMetrics()

	resp, err = srv.GRPCHealth().Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestOpsServer_ServeAndShutdown(t *testing.T) {
	srv, checker := newTestOpsServer(t, t.TempDir())
	checker.RunChecks()

	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, httpLis, grpcLis) }()

	resp, err := http.Get("http://" + httpLis.Addr().String() + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	checkCtx, checkCancel := context.WithTimeout(ctx, 5*time.Second)
	defer checkCancel()
	hc, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.Status)
	require.NoError(t, conn.Close())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ops server did not stop")
	}
	assert.False(t, checker.IsReady())
}

func TestRecovery(t *testing.T) {
	handler := Chain(Recovery(zap.NewNop()), RequestID)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.ErrorCode)
	assert.Equal(t, "req-1", resp.RequestID)
}
