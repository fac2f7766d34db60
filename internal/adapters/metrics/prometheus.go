// Package metrics provides Prometheus metrics collection. Metrics live in
// the collector's own registry and are exported as a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "manipulators"

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	engineCalls       *prometheus.CounterVec
	repairs           *prometheus.CounterVec
	spikesRemoved     prometheus.Counter
	sourceOperations  *prometheus.CounterVec
	sourceDuration    *prometheus.HistogramVec
}

var _ output.MetricsCollector = (*Collector)(nil)

// NewCollector creates a new Prometheus metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,

		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of toolkit operations",
			},
			[]string{"operation", "status"},
		),

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Toolkit operation duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"operation"},
		),

		engineCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_calls_total",
				Help:      "Total number of geometry engine calls",
			},
			[]string{"engine", "call", "status"},
		),

		repairs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repairs_total",
				Help:      "Total number of geometries repaired",
			},
			[]string{"type"},
		),

		spikesRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spikes_removed_total",
				Help:      "Total number of spike vertices removed",
			},
		),

		sourceOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_operations_total",
				Help:      "Total number of geometry source operations",
			},
			[]string{"operation", "status"},
		),

		sourceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_duration_seconds",
				Help:      "Geometry source operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// IncOperation increments the toolkit operation counter.
func (c *Collector) IncOperation(operation string, success bool) {
	c.operations.WithLabelValues(operation, status(success)).Inc()
}

// ObserveOperationDuration records toolkit operation duration.
func (c *Collector) ObserveOperationDuration(operation string, duration time.Duration) {
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncEngineCall increments the engine call counter.
func (c *Collector) IncEngineCall(engine, call string, success bool) {
	c.engineCalls.WithLabelValues(engine, call, status(success)).Inc()
}

// IncRepairs increments the repair counter.
func (c *Collector) IncRepairs(geometryType string) {
	c.repairs.WithLabelValues(geometryType).Inc()
}

// AddSpikesRemoved adds to the removed spike counter.
func (c *Collector) AddSpikesRemoved(count int) {
	if count > 0 {
		c.spikesRemoved.Add(float64(count))
	}
}

// IncSourceOperations increments source operation counter.
func (c *Collector) IncSourceOperations(operation string, success bool) {
	c.sourceOperations.WithLabelValues(operation, status(success)).Inc()
}

// ObserveSourceDuration records source operation duration.
func (c *Collector) ObserveSourceDuration(operation string, duration time.Duration) {
	c.sourceDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
