package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncTileRequest increments the tile lookup counter ("hit", "miss", "error").
	IncTileRequest(status string)

	// ObserveTileDuration records tile lookup duration.
	ObserveTileDuration(duration time.Duration)

	// SetSourcesLoaded sets the number of registered archive sources.
	SetSourcesLoaded(count int)

	// AddExtractedBytes accumulates bytes written by region extractions.
	AddExtractedBytes(n uint64)

	// IncFetchOperations increments the system-archive fetch counter.
	IncFetchOperations(scheme string, success bool)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncTileRequest implements MetricsCollector.
func (n *NoOpMetrics) IncTileRequest(_ string) {}

// ObserveTileDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveTileDuration(_ time.Duration) {}

// SetSourcesLoaded implements MetricsCollector.
func (n *NoOpMetrics) SetSourcesLoaded(_ int) {}

// AddExtractedBytes implements MetricsCollector.
func (n *NoOpMetrics) AddExtractedBytes(_ uint64) {}

// IncFetchOperations implements MetricsCollector.
func (n *NoOpMetrics) IncFetchOperations(_ string, _ bool) {}
