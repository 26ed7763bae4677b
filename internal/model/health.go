package model

// HealthStatus represents the health state of the telemetry pipeline
type HealthStatus struct {
	Status    PipelineStatus
	Timestamp int64
	Metrics   HealthMetrics
}

// PipelineStatus defines the operational status of the pipeline
type PipelineStatus string

const (
	PipelineStatusHealthy   PipelineStatus = "healthy"
	PipelineStatusDegraded  PipelineStatus = "degraded"
	PipelineStatusUnhealthy PipelineStatus = "unhealthy"
)

// HealthMetrics contains storage health figures
type HealthMetrics struct {
	DiskUsagePercent float64
	StorageBytes     int64
	PendingBatches   int
}
