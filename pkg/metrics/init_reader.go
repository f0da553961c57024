package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReaderMetrics() {
	r.SeeksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_seeks_total",
			Help: "Seeks issued on virtual cursors, by target kind",
		},
		[]string{"kind"},
	)

	r.BisectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_bisections_total",
			Help: "Bisections over entry lists, by key",
		},
		[]string{"key"},
	)

	r.ChainCacheTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_chain_cache_total",
			Help: "Entry array chain cache lookups",
		},
		[]string{"result"},
	)

	r.FilesOpen = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "journal_files_open",
			Help: "Files currently attached to virtual cursors",
		},
	)

	r.FilesDroppedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "journal_files_dropped_total",
			Help: "Files skipped or removed from a cursor because they could not be read",
		},
	)
}
