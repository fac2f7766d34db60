package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncOperation increments the toolkit operation counter.
	IncOperation(operation string, success bool)

	// ObserveOperationDuration records toolkit operation duration.
	ObserveOperationDuration(operation string, duration time.Duration)

	// IncEngineCall increments the geometry engine call counter.
	IncEngineCall(engine, call string, success bool)

	// IncRepairs increments the counter of geometries repaired by the engine.
	IncRepairs(geometryType string)

	// AddSpikesRemoved adds to the removed spike vertex counter.
	AddSpikesRemoved(count int)

	// IncSourceOperations increments source operation counter.
	IncSourceOperations(operation string, success bool)

	// ObserveSourceDuration records source operation duration.
	ObserveSourceDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncOperation implements MetricsCollector.
func (n *NoOpMetrics) IncOperation(_ string, _ bool) {}

// ObserveOperationDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveOperationDuration(_ string, _ time.Duration) {}

// IncEngineCall implements MetricsCollector.
func (n *NoOpMetrics) IncEngineCall(_, _ string, _ bool) {}

// IncRepairs implements MetricsCollector.
func (n *NoOpMetrics) IncRepairs(_ string) {}

// AddSpikesRemoved implements MetricsCollector.
func (n *NoOpMetrics) AddSpikesRemoved(_ int) {}

// IncSourceOperations implements MetricsCollector.
func (n *NoOpMetrics) IncSourceOperations(_ string, _ bool) {}

// ObserveSourceDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveSourceDuration(_ string, _ time.Duration) {}
