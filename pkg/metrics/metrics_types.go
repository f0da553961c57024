package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the journal exports. All Record* helpers are
// safe to call on a nil *Registry, which is how metrics are disabled.
type Registry struct {
	// Append path
	AppendsTotal        *prometheus.CounterVec
	AppendDuration      prometheus.Histogram
	DataObjectsTotal    *prometheus.CounterVec
	RotationsTotal      *prometheus.CounterVec
	ArenaBytes          *prometheus.GaugeVec
	CompressionBytes    *prometheus.CounterVec
	CorruptObjectsTotal prometheus.Counter

	// Read path
	SeeksTotal        *prometheus.CounterVec
	BisectionsTotal   *prometheus.CounterVec
	ChainCacheTotal   *prometheus.CounterVec
	FilesOpen         prometheus.Gauge
	FilesDroppedTotal prometheus.Counter

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initAppendMetrics()
	r.initReaderMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
