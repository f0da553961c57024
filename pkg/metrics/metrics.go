package metrics

import (
	"runtime"
	"time"
)

var processStart = time.Now()

// RecordAppend records one append attempt
func (r *Registry) RecordAppend(status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.AppendsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		r.AppendDuration.Observe(duration.Seconds())
	}
}

// RecordDataObject records whether an interned payload was new or reused
func (r *Registry) RecordDataObject(reused bool) {
	if r == nil {
		return
	}
	if reused {
		r.DataObjectsTotal.WithLabelValues("reused").Inc()
	} else {
		r.DataObjectsTotal.WithLabelValues("new").Inc()
	}
}

func (r *Registry) RecordRotation(reason string) {
	if r == nil {
		return
	}
	r.RotationsTotal.WithLabelValues(reason).Inc()
}

func (r *Registry) SetArenaBytes(file string, n uint64) {
	if r == nil {
		return
	}
	r.ArenaBytes.WithLabelValues(file).Set(float64(n))
}

// ForgetFile drops per-file series once a file has been archived
func (r *Registry) ForgetFile(file string) {
	if r == nil {
		return
	}
	r.ArenaBytes.DeleteLabelValues(file)
}

func (r *Registry) RecordCompression(codec string, in, out int) {
	if r == nil {
		return
	}
	r.CompressionBytes.WithLabelValues(codec, "in").Add(float64(in))
	r.CompressionBytes.WithLabelValues(codec, "out").Add(float64(out))
}

func (r *Registry) RecordCorruptObject() {
	if r == nil {
		return
	}
	r.CorruptObjectsTotal.Inc()
}

func (r *Registry) RecordSeek(kind string) {
	if r == nil {
		return
	}
	r.SeeksTotal.WithLabelValues(kind).Inc()
}

func (r *Registry) RecordBisection(key string) {
	if r == nil {
		return
	}
	r.BisectionsTotal.WithLabelValues(key).Inc()
}

func (r *Registry) RecordChainCache(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.ChainCacheTotal.WithLabelValues("hit").Inc()
	} else {
		r.ChainCacheTotal.WithLabelValues("miss").Inc()
	}
}

// AddFilesOpen adjusts the open file gauge by delta
func (r *Registry) AddFilesOpen(delta int) {
	if r == nil {
		return
	}
	r.FilesOpen.Add(float64(delta))
}

func (r *Registry) RecordFileDropped() {
	if r == nil {
		return
	}
	r.FilesDroppedTotal.Inc()
}

// UpdateSystemMetrics samples the Go runtime
func (r *Registry) UpdateSystemMetrics() {
	if r == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(processStart).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
}
