package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the telemetry pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// Write path
	EventsWrittenTotal *prometheus.CounterVec
	EventsDroppedTotal *prometheus.CounterVec
	EventBytes         *prometheus.HistogramVec
	BatchFilesCreated  *prometheus.CounterVec
	BatchFilesEvicted  *prometheus.CounterVec
	StorageBytes       *prometheus.GaugeVec
	ConsentMigrations  *prometheus.CounterVec

	// Upload path
	UploadsTotal       *prometheus.CounterVec
	UploadDuration     *prometheus.HistogramVec
	UploadBytes        *prometheus.HistogramVec
	UploadDelaySeconds *prometheus.GaugeVec

	// Executors
	ExecutorRejectedTotal *prometheus.CounterVec
	ExecutorQueueDepth    *prometheus.GaugeVec

	// Crash recovery
	NdkCrashesTotal *prometheus.CounterVec

	// System metrics
	DiskUsagePercent   prometheus.Gauge
	DiskAvailableBytes prometheus.Gauge
	MemoryUsageBytes   prometheus.Gauge
	GoroutinesTotal    prometheus.Gauge
}

// NewMetrics creates all metrics and registers them on a dedicated registry
func NewMetrics(service string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": service}

	return &Metrics{
		Registry: reg,

		EventsWrittenTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ddsdk",
			Subsystem:   "persistence",
			Name:        "events_written_total",
			Help:        "Total number of events appended to batch files",
			ConstLabels: labels,
		}, []string{"feature"}),
		EventsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ddsdk",
			Subsystem:   "persistence",
			Name:        "events_dropped_total",
			Help:        "Total number of events dropped before reaching disk",
			ConstLabels: labels,
		}, []string{"feature", "reason"}),
		EventBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "ddsdk",
			Subsystem:   "persistence",
			Name:        "event_bytes",
			Help:        "Histogram of serialized event sizes in bytes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(64, 2, 14), // 64B to 512KB
		}, []string{"feature"}),
		BatchFilesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ddsdk",
			Subsystem:   "storage",
			Name:        "batch_files_created_total",
			Help:        "Total number of batch files created",
			ConstLabels: labels,
		}, []string{"dir"}),
		BatchFilesEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ddsdk",
			Subsystem:   "storage",
			Name:        "batch_files_evicted_total",
			Help:        "Total number of batch files deleted by the orchestrator",
			ConstLabels: labels,
		}, []string{"dir", "reason"}),
		StorageBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ddsdk",
			Subsystem:   "storage",
			Name:        "bytes",
			Help:        "Bytes currently held in a storage directory",
			ConstLabels: labels,
		}, []string{"dir"}),
		ConsentMigrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ddsdk",
			Subsystem:   "storage",
			Name:        "consent_migrations_total",
			Help:        "Total number of consent driven data migrations",
			ConstLabels: labels,
		}, []string{"from", "to"}),

		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ddsdk",
			Subsystem:   "upload",
			Name:        "requests_total",
			Help:        "Total number of batch uploads by resulting status",
			ConstLabels: labels,
		}, []string{"feature", "status"}),
		UploadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "ddsdk",
			Subsystem:   "upload",
			Name:        "duration_seconds",
			Help:        "Histogram of batch upload durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"feature"}),
		UploadBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "ddsdk",
			Subsystem:   "upload",
			Name:        "bytes",
			Help:        "Histogram of uploaded batch sizes in bytes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1024, 2, 13), // 1KB to 4MB
		}, []string{"feature"}),
		UploadDelaySeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ddsdk",
			Subsystem:   "upload",
			Name:        "delay_seconds",
			Help:        "Current delay between upload attempts",
			ConstLabels: labels,
		}, []string{"feature"}),

		ExecutorRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ddsdk",
			Subsystem:   "executor",
			Name:        "rejected_tasks_total",
			Help:        "Total number of tasks rejected by an executor",
			ConstLabels: labels,
		}, []string{"executor"}),
		ExecutorQueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ddsdk",
			Subsystem:   "executor",
			Name:        "queued_tasks",
			Help:        "Number of tasks waiting in an executor queue",
			ConstLabels: labels,
		}, []string{"executor"}),

		NdkCrashesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ddsdk",
			Subsystem:   "ndk",
			Name:        "crashes_reported_total",
			Help:        "Total number of native crashes recovered, by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),

		DiskUsagePercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ddsdk",
			Subsystem:   "system",
			Name:        "disk_usage_percent",
			Help:        "Disk usage percentage of the storage volume",
			ConstLabels: labels,
		}),
		DiskAvailableBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ddsdk",
			Subsystem:   "system",
			Name:        "disk_available_bytes",
			Help:        "Available bytes on the storage volume",
			ConstLabels: labels,
		}),
		MemoryUsageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ddsdk",
			Subsystem:   "system",
			Name:        "memory_usage_bytes",
			Help:        "Heap bytes allocated by the agent",
			ConstLabels: labels,
		}),
		GoroutinesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ddsdk",
			Subsystem:   "system",
			Name:        "goroutines",
			Help:        "Number of goroutines",
			ConstLabels: labels,
		}),
	}
}

// RecordEventWritten records an event appended to a batch
func (m *Metrics) RecordEventWritten(feature string, size int) {
	if m == nil {
		return
	}
	m.EventsWrittenTotal.WithLabelValues(feature).Inc()
	m.EventBytes.WithLabelValues(feature).Observe(float64(size))
}

// RecordEventDropped records an event that never reached disk
func (m *Metrics) RecordEventDropped(feature, reason string) {
	if m == nil {
		return
	}
	m.EventsDroppedTotal.WithLabelValues(feature, reason).Inc()
}

// RecordBatchFileCreated records a new batch file
func (m *Metrics) RecordBatchFileCreated(dir string) {
	if m == nil {
		return
	}
	m.BatchFilesCreated.WithLabelValues(dir).Inc()
}

// RecordBatchFileEvicted records a batch file deleted for age or quota
func (m *Metrics) RecordBatchFileEvicted(dir, reason string) {
	if m == nil {
		return
	}
	m.BatchFilesEvicted.WithLabelValues(dir, reason).Inc()
}

// UpdateStorageBytes updates the size gauge of a storage directory
func (m *Metrics) UpdateStorageBytes(dir string, bytes int64) {
	if m == nil {
		return
	}
	m.StorageBytes.WithLabelValues(dir).Set(float64(bytes))
}

// RecordConsentMigration records a consent driven migration
func (m *Metrics) RecordConsentMigration(from, to string) {
	if m == nil {
		return
	}
	m.ConsentMigrations.WithLabelValues(from, to).Inc()
}

// RecordUpload records one upload attempt
func (m *Metrics) RecordUpload(feature, status string, duration float64, bytes int) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(feature, status).Inc()
	m.UploadDuration.WithLabelValues(feature).Observe(duration)
	m.UploadBytes.WithLabelValues(feature).Observe(float64(bytes))
}

// UpdateUploadDelay updates the current upload delay of a feature
func (m *Metrics) UpdateUploadDelay(feature string, seconds float64) {
	if m == nil {
		return
	}
	m.UploadDelaySeconds.WithLabelValues(feature).Set(seconds)
}

// RecordExecutorRejection records a task rejected by an executor
func (m *Metrics) RecordExecutorRejection(executor string) {
	if m == nil {
		return
	}
	m.ExecutorRejectedTotal.WithLabelValues(executor).Inc()
}

// UpdateExecutorQueue updates the queue depth of an executor
func (m *Metrics) UpdateExecutorQueue(executor string, queued int) {
	if m == nil {
		return
	}
	m.ExecutorQueueDepth.WithLabelValues(executor).Set(float64(queued))
}

// RecordNdkCrash records the outcome of a native crash recovery
func (m *Metrics) RecordNdkCrash(outcome string) {
	if m == nil {
		return
	}
	m.NdkCrashesTotal.WithLabelValues(outcome).Inc()
}

// UpdateSystemStats updates system-level statistics
func (m *Metrics) UpdateSystemStats(diskUsagePercent float64, diskAvailable, memoryUsage int64, goroutines int) {
	if m == nil {
		return
	}
	m.DiskUsagePercent.Set(diskUsagePercent)
	m.DiskAvailableBytes.Set(float64(diskAvailable))
	m.MemoryUsageBytes.Set(float64(memoryUsage))
	m.GoroutinesTotal.Set(float64(goroutines))
}
