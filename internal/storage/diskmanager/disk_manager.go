package diskmanager

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/errors"
	"go.uber.org/zap"
)

// Usage is a snapshot of the storage volume
type Usage struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

// StatFunc reports usage of the volume holding dir
type StatFunc func(dir string) (Usage, error)

// Statfs is the StatFunc backed by statfs(2)
func Statfs(dir string) (Usage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return Usage{}, fmt.Errorf("failed to stat filesystem: %w", err)
	}
	return Usage{
		TotalBytes:     stat.Blocks * uint64(stat.Bsize),
		AvailableBytes: stat.Bavail * uint64(stat.Bsize),
	}, nil
}

// DiskManager watches the device volume and refuses writes when it is
// nearly full, independently of the per-feature batch quota
type DiskManager struct {
	dataDir string
	logger  *zap.Logger
	stat    StatFunc
	now     func() time.Time

	mu                   sync.Mutex
	lastCheck            time.Time
	cachedUsagePercent   float64
	cachedAvailableBytes uint64
	checkInterval        time.Duration

	warningThreshold        float64
	throttleThreshold       float64
	circuitBreakerThreshold float64

	isThrottled     bool
	isCircuitBroken bool
}

// DiskManagerConfig holds configuration for disk manager
type DiskManagerConfig struct {
	DataDir                 string
	CheckInterval           time.Duration
	WarningThreshold        float64
	ThrottleThreshold       float64
	CircuitBreakerThreshold float64
	// Stat defaults to Statfs
	Stat StatFunc
	// Now defaults to time.Now
	Now func() time.Time
}

// DefaultConfig returns default disk manager configuration. maxUsage is the
// usage ratio (0..1) at which writes stop.
func DefaultConfig(dataDir string, maxUsage float64) *DiskManagerConfig {
	breaker := maxUsage * 100
	return &DiskManagerConfig{
		DataDir:                 dataDir,
		CheckInterval:           10 * time.Second,
		WarningThreshold:        breaker - 10,
		ThrottleThreshold:       breaker - 5,
		CircuitBreakerThreshold: breaker,
	}
}

// NewDiskManager creates a new disk manager with specified thresholds
func NewDiskManager(cfg *DiskManagerConfig, logger *zap.Logger) (*DiskManager, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	stat := cfg.Stat
	if stat == nil {
		stat = Statfs
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	dm := &DiskManager{
		dataDir:                 cfg.DataDir,
		logger:                  logger,
		stat:                    stat,
		now:                     now,
		checkInterval:           cfg.CheckInterval,
		warningThreshold:        cfg.WarningThreshold,
		throttleThreshold:       cfg.ThrottleThreshold,
		circuitBreakerThreshold: cfg.CircuitBreakerThreshold,
	}

	if err := dm.checkDiskSpace(); err != nil {
		logger.Warn("Initial disk space check failed", zap.Error(err))
	}

	return dm, nil
}

// CheckBeforeWrite returns a *errors.PipelineError when a write of
// estimatedBytes should be rejected
func (dm *DiskManager) CheckBeforeWrite(estimatedBytes uint64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.now().Sub(dm.lastCheck) > dm.checkInterval {
		if err := dm.checkDiskSpace(); err != nil {
			dm.logger.Warn("Disk space check failed", zap.Error(err))
		}
	}

	if dm.isCircuitBroken {
		return errors.DiskFull(dm.cachedUsagePercent, dm.cachedAvailableBytes)
	}

	// Small writes still go through while throttled.
	if dm.isThrottled && estimatedBytes > dm.cachedAvailableBytes/10 {
		return errors.DiskThrottled(dm.cachedUsagePercent)
	}

	if estimatedBytes > dm.cachedAvailableBytes {
		return errors.DiskFull(dm.cachedUsagePercent, dm.cachedAvailableBytes).
			WithDetail("requested_bytes", estimatedBytes)
	}

	return nil
}

// checkDiskSpace refreshes the cached usage. Must be called with mu held.
func (dm *DiskManager) checkDiskSpace() error {
	usage, err := dm.stat(dm.dataDir)
	if err != nil {
		return err
	}

	var usagePercent float64
	if usage.TotalBytes > 0 {
		usagePercent = float64(usage.TotalBytes-usage.AvailableBytes) / float64(usage.TotalBytes) * 100.0
	}

	dm.cachedUsagePercent = usagePercent
	dm.cachedAvailableBytes = usage.AvailableBytes
	dm.lastCheck = dm.now()

	previouslyThrottled := dm.isThrottled
	previouslyBroken := dm.isCircuitBroken

	dm.isCircuitBroken = usagePercent >= dm.circuitBreakerThreshold
	dm.isThrottled = usagePercent >= dm.throttleThreshold && !dm.isCircuitBroken

	if dm.isCircuitBroken && !previouslyBroken {
		dm.logger.Error("Disk nearly full, event writes suspended",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", usage.AvailableBytes),
			zap.Float64("threshold", dm.circuitBreakerThreshold))
	} else if !dm.isCircuitBroken && previouslyBroken {
		dm.logger.Info("Disk space recovered, event writes resumed",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", usage.AvailableBytes))
	}

	if dm.isThrottled && !previouslyThrottled {
		dm.logger.Warn("Disk write throttling enabled",
			zap.Float64("usage_percent", usagePercent),
			zap.Float64("threshold", dm.throttleThreshold))
	} else if !dm.isThrottled && previouslyThrottled {
		dm.logger.Info("Disk write throttling disabled",
			zap.Float64("usage_percent", usagePercent))
	}

	if usagePercent >= dm.warningThreshold && !dm.isThrottled && !dm.isCircuitBroken {
		dm.logger.Warn("Disk usage warning",
			zap.Float64("usage_percent", usagePercent),
			zap.Float64("warning_threshold", dm.warningThreshold))
	}

	return nil
}

// GetDiskUsage returns current disk usage statistics
func (dm *DiskManager) GetDiskUsage() DiskUsageStats {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.now().Sub(dm.lastCheck) > dm.checkInterval {
		if err := dm.checkDiskSpace(); err != nil {
			dm.logger.Warn("Disk space check failed", zap.Error(err))
		}
	}

	return DiskUsageStats{
		UsagePercent:    dm.cachedUsagePercent,
		AvailableBytes:  dm.cachedAvailableBytes,
		IsThrottled:     dm.isThrottled,
		IsCircuitBroken: dm.isCircuitBroken,
		LastCheck:       dm.lastCheck,
	}
}

// ForceCheck forces an immediate disk space check
func (dm *DiskManager) ForceCheck() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.checkDiskSpace()
}

// DiskUsageStats contains disk usage statistics
type DiskUsageStats struct {
	UsagePercent    float64
	AvailableBytes  uint64
	IsThrottled     bool
	IsCircuitBroken bool
	LastCheck       time.Time
}
