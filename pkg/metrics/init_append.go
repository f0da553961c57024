package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initAppendMetrics() {
	r.AppendsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_appends_total",
			Help: "Entries offered to the append path, by outcome",
		},
		[]string{"status"},
	)

	r.AppendDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "journal_append_duration_seconds",
			Help:    "Time spent appending one entry",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)

	r.DataObjectsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_data_objects_total",
			Help: "Field payloads interned, split into newly written and reused",
		},
		[]string{"result"},
	)

	r.RotationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_rotations_total",
			Help: "Active file rotations, by reason",
		},
		[]string{"reason"},
	)

	r.ArenaBytes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "journal_arena_bytes",
			Help: "Bytes used by objects in the active file",
		},
		[]string{"file"},
	)

	r.CompressionBytes = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_compression_bytes_total",
			Help: "Payload bytes before (in) and after (out) compression",
		},
		[]string{"codec", "direction"},
	)

	r.CorruptObjectsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "journal_corrupt_objects_total",
			Help: "Objects that failed validation when read",
		},
	)
}
