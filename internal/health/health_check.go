package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
		"sync"
	"syscall"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/diskmanager"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/util/workerpool"
	"go.uber.org/zap"
)

// Check statuses
const (
	CheckHealthy  = "healthy"
	CheckWarning  = "warning"
	CheckCritical = "critical"
)

// DiskUsageSource reports the device volume usage
type DiskUsageSource interface {
	GetDiskUsage() diskmanager.DiskUsageStats
}

// ExecutorSource reports executor queue statistics
type ExecutorSource interface {
	Stats() workerpool.Stats
}

// BatchSource lists the batch files waiting for upload
type BatchSource interface {
	GetFlushableFiles() []string
	GetAllFiles() []string
}

// HealthChecker performs health checks for the telemetry pipeline
type HealthChecker struct {
	dataDir     string
	disk        DiskUsageSource
	executors   []ExecutorSource
	batches     []BatchSource
	interval    time.Duration
	logger      *zap.Logger
	mu          sync.RWMutex
	lastCheck   time.Time
	status      model.PipelineStatus
	checks      map[string]CheckResult
	metrics     model.HealthMetrics
	livenessOK  bool
	readinessOK bool
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string
	Status    string
	Message   string
	Timestamp time.Time
}

// HealthCheckConfig holds configuration for health checks
type HealthCheckConfig struct {
	DataDir   string
	Disk      DiskUsageSource
	Executors []ExecutorSource
	Batches   []BatchSource
	Interval  time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(cfg *HealthCheckConfig, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthChecker{
		dataDir:     cfg.DataDir,
		disk:        cfg.Disk,
		executors:   cfg.Executors,
		batches:     cfg.Batches,
		interval:    interval,
		logger:      logger,
		checks:      make(map[string]CheckResult),
		livenessOK:  true,
		readinessOK: true,
		status:      model.PipelineStatusHealthy,
	}
}

// Start runs the checks periodically until ctx is done
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.RunChecks()

	for {
		select {
		case <-ticker.C:
			h.RunChecks()
		case <-ctx.Done():
			h.logger.Info("Health checker stopped")
			return
		}
	}
}

// RunChecks runs all health checks once
func (h *HealthChecker) RunChecks() {
	checks := []func() CheckResult{
		h.checkDiskSpace,
		h.checkDataDirAccessible,
		h.checkExecutors,
		h.checkFileDescriptors,
	}

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		results = append(results, check())
	}
	metrics := h.collectMetrics()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Now()
	h.metrics = metrics

	allHealthy := true
	allReady := true
	for _, result := range results {
		h.checks[result.Name] = result
		if result.Status != CheckHealthy {
			allHealthy = false
			if result.Status == CheckCritical {
				allReady = false
			}
		}
	}

	switch {
	case allHealthy:
		h.status = model.PipelineStatusHealthy
	case allReady:
		h.status = model.PipelineStatusDegraded
	default:
		h.status = model.PipelineStatusUnhealthy
	}

	// Liveness only requires the checker to run
	h.livenessOK = true
	h.readinessOK = allReady

	h.logger.Debug("Health check completed",
		zap.String("status", string(h.status)),
		zap.Bool("liveness", h.livenessOK),
		zap.Bool("readiness", h.readinessOK))
}

func result(name, status, format string, args ...interface{}) CheckResult {
	return CheckResult{
		Name:      name,
		Status:    status,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// checkDiskSpace reports the disk manager's view of the volume
func (h *HealthChecker) checkDiskSpace() CheckResult {
	const name = "disk_space"
	if h.disk == nil {
		return result(name, CheckHealthy, "disk guard disabled")
	}

	usage := h.disk.GetDiskUsage()
	switch {
	case usage.IsCircuitBroken:
		return result(name, CheckCritical, "writes refused at %.2f%% usage", usage.UsagePercent)
	case usage.IsThrottled:
		return result(name, CheckWarning, "writes throttled at %.2f%% usage", usage.UsagePercent)
	default:
		return result(name, CheckHealthy, "%.2f%% used, %d bytes available", usage.UsagePercent, usage.AvailableBytes)
	}
}

// checkDataDirAccessible probes that new batch files can still be created
func (h *HealthChecker) checkDataDirAccessible() CheckResult {
	const name = "data_dir_accessible"
	info, err := os.Stat(h.dataDir)
	if err != nil {
		return result(name, CheckCritical, "storage dir unavailable: %v", err)
	}
	if !info.IsDir() {
		return result(name, CheckCritical, "%s is not a directory", h.dataDir)
	}

	probe, err := os.CreateTemp(h.dataDir, ".probe-*")
	if err != nil {
		return result(name, CheckCritical, "storage dir not writable: %v", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return result(name, CheckHealthy, "storage dir writable")
}

// checkExecutors flags executors whose queue is close to rejecting tasks
func (h *HealthChecker) checkExecutors() CheckResult {
	const name = "executors"
	for _, e := range h.executors {
		stats := e.Stats()
		if utilization := stats.QueueUtilization(); utilization > 90 {
			return result(name, CheckWarning, "executor %s queue at %.0f%%, %d tasks rejected",
				stats.Name, utilization, stats.RejectedTasks)
		}
	}
	return result(name, CheckHealthy, "%d executors accepting tasks", len(h.executors))
}

// checkFileDescriptors warns when open descriptors approach the soft limit.
// Every batch file access opens one.
func (h *HealthChecker) checkFileDescriptors() CheckResult {
	const name = "file_descriptors"
	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		return result(name, CheckWarning, "getrlimit failed: %v", err)
	}

	// /proc is Linux only
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil || rlimit.Cur == 0 {
		return result(name, CheckHealthy, "soft limit %d", rlimit.Cur)
	}

	open := uint64(len(entries))
	percent := float64(open) / float64(rlimit.Cur) * 100
	if percent > 90 {
		return result(name, CheckWarning, "%d/%d descriptors open", open, rlimit.Cur)
	}
	return result(name, CheckHealthy, "%d/%d descriptors open", open, rlimit.Cur)
}

func (h *HealthChecker) collectMetrics() model.HealthMetrics {
	var m model.HealthMetrics
	if h.disk != nil {
		m.DiskUsagePercent = h.disk.GetDiskUsage().UsagePercent
	}
	for _, b := range h.batches {
		m.PendingBatches += len(b.GetFlushableFiles())
		for _, f := range b.GetAllFiles() {
			m.StorageBytes += batchfile.Size(f)
		}
	}
	return m
}

// IsLive returns whether the pipeline is live (liveness probe)
func (h *HealthChecker) IsLive() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.livenessOK
}

// IsReady returns whether the pipeline accepts events (readiness probe)
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// GetStatus returns the current health status
func (h *HealthChecker) GetStatus() model.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return model.HealthStatus{
		Status:    h.status,
		Timestamp: h.lastCheck.Unix(),
		Metrics:   h.metrics,
	}
}

// GetChecks returns all check results
func (h *HealthChecker) GetChecks() map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checks := make(map[string]CheckResult, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}

	return checks
}

// SetReadiness manually sets readiness status (for graceful shutdown)
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessOK = ready
}

// LivenessHandler handles HTTP liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	live := h.IsLive()
	status := h.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	if !live {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy": live,
		"status":  status.Status,
	})
}

// ReadinessHandler handles HTTP readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()
	status := h.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":              ready,
		"status":             status.Status,
		"pending_batches":    status.Metrics.PendingBatches,
		"storage_bytes":      status.Metrics.StorageBytes,
		"disk_usage_percent": status.Metrics.DiskUsagePercent,
	})
}
