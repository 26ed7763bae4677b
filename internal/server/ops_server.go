package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/config"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/health"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/diskmanager"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SystemMetricsInterval is how often process and volume gauges are refreshed
const SystemMetricsInterval = 15 * time.Second

// OpsServer serves the local ops surface: Prometheus metrics, HTTP health
// probes, the ingest API and the gRPC health service
type OpsServer struct {
	cfg        config.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcHealth *grpchealth.Server
	checker    *health.HealthChecker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	dataDir    string
	stat       diskmanager.StatFunc
}

// OpsServerConfig holds configuration for the ops server
type OpsServerConfig struct {
	Server  config.ServerConfig
	Metrics config.MetricsConfig
	DataDir string
}

// NewOpsServer creates a new ops server. ingest may be nil, in which case
// only metrics and health are served.
func NewOpsServer(cfg *OpsServerConfig, ingest *IngestHandler, checker *health.HealthChecker, m *metrics.Metrics, logger *zap.Logger) *OpsServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &OpsServer{
		cfg:        cfg.Server,
		router:     mux.NewRouter(),
		grpcServer: grpc.NewServer(),
		grpcHealth: grpchealth.NewServer(),
		checker:    checker,
		metrics:    m,
		logger:     logger,
		dataDir:    cfg.DataDir,
		stat:       diskmanager.Statfs,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.grpcHealth)

	if cfg.Metrics.Enabled && m != nil {
		s.router.Handle(cfg.Metrics.Path, promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if checker != nil {
		s.router.HandleFunc("/health/live", checker.LivenessHandler).Methods(http.MethodGet)
		s.router.HandleFunc("/health/ready", checker.ReadinessHandler).Methods(http.MethodGet)
	}

	if ingest != nil {
		api := s.router.PathPrefix("/v1").Subrouter()
		rateLimiter := NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, logger)
		api.Use(rateLimiter.Limit)
		ingest.Register(api)
	}

	handler := Chain(
		Recovery(logger),
		RequestID,
		Logging(logger),
	)(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler with middleware applied
func (s *OpsServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// GRPCHealth returns the gRPC health service
func (s *OpsServer) GRPCHealth() healthpb.HealthServer {
	return s.grpcHealth
}

// Run serves HTTP and gRPC until ctx is done, then shuts both down
func (s *OpsServer) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	grpcAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.GRPCPort)
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve serves on the given listeners until ctx is done
func (s *OpsServer) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	s.logger.Info("Starting ops server",
		zap.String("http_addr", httpLis.Addr().String()),
		zap.String("grpc_addr", grpcLis.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.httpServer.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := s.grpcServer.Serve(grpcLis); err != nil && err != grpc.ErrServerStopped {
			return fmt.Errorf("grpc server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.collectSystemMetrics(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *OpsServer) shutdown() error {
	s.logger.Info("Stopping ops server")

	s.grpcHealth.Shutdown()
	if s.checker != nil {
		s.checker.SetReadiness(false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ops server shutdown failed: %w", err)
	}
	return nil
}

// collectSystemMetrics periodically refreshes system gauges and the gRPC
// serving status
func (s *OpsServer) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(SystemMetricsInterval)
	defer ticker.Stop()

	s.updateSystemMetrics()
	for {
		select {
		case <-ticker.C:
			s.updateSystemMetrics()
		case <-ctx.Done():
			return
		}
	}
}

// updateSystemMetrics updates system-level metrics
func (s *OpsServer) updateSystemMetrics() {
	var usagePercent float64
	var available int64
	usage, err := s.stat(s.dataDir)
	if err != nil {
		s.logger.Warn("Failed to get disk stats", zap.Error(err))
	} else if usage.TotalBytes > 0 {
		usagePercent = float64(usage.TotalBytes-usage.AvailableBytes) / float64(usage.TotalBytes) * 100
		available = int64(usage.AvailableBytes)
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.metrics.UpdateSystemStats(usagePercent, available, int64(memStats.Alloc), runtime.NumGoroutine())
	s.syncServingStatus()
}

// syncServingStatus mirrors HTTP readiness into the gRPC health service
func (s *OpsServer) syncServingStatus() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil && !s.checker.IsReady() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.grpcHealth.SetServingStatus("", status)
}
