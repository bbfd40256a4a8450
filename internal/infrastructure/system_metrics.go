package infrastructure

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a snapshot of the Go runtime
type RuntimeStats struct {
	Goroutines     int
	HeapAllocBytes uint64
	SysBytes       uint64
	NumGC          uint32
	LastGCPause    time.Duration
	CPUCount       int
	Uptime         time.Duration
}

// ReadRuntimeStats samples the runtime. started is the process start time.
func ReadRuntimeStats(started time.Time) RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeStats{
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: m.HeapAlloc,
		SysBytes:       m.Sys,
		NumGC:          m.NumGC,
		LastGCPause:    time.Duration(m.PauseNs[(m.NumGC+255)%256]),
		CPUCount:       runtime.NumCPU(),
		Uptime:         time.Since(started),
	}
}

// Map renders the stats for health responses
func (s RuntimeStats) Map() map[string]interface{} {
	return map[string]interface{}{
		"goroutines":       s.Goroutines,
		"heap_alloc_mb":    s.HeapAllocBytes / 1024 / 1024,
		"sys_mb":           s.SysBytes / 1024 / 1024,
		"gc_count":         s.NumGC,
		"last_gc_pause_ms": float64(s.LastGCPause.Microseconds()) / 1000,
		"cpu_count":        s.CPUCount,
		"uptime":           s.Uptime.Seconds(),
		"go_version":       runtime.Version(),
	}
}

// RegisterRuntimeMetrics exports runtime gauges through meter. They are
// sampled at collection time, so a scrape of /metrics sees current values.
func RegisterRuntimeMetrics(meter metric.Meter, started time.Time) (metric.Registration, error) {
	goroutines, err := meter.Int64ObservableGauge("marketcore_goroutines",
		metric.WithDescription("Number of live goroutines"))
	if err != nil {
		return nil, err
	}
	heap, err := meter.Int64ObservableGauge("marketcore_heap_alloc_bytes",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	gcs, err := meter.Int64ObservableCounter("marketcore_gc_cycles_total",
		metric.WithDescription("Completed garbage collection cycles"))
	if err != nil {
		return nil, err
	}
	uptime, err := meter.Float64ObservableGauge("marketcore_uptime_seconds",
		metric.WithDescription("Seconds since the process started"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := ReadRuntimeStats(started)
		o.ObserveInt64(goroutines, int64(s.Goroutines))
		o.ObserveInt64(heap, int64(s.HeapAllocBytes))
		o.ObserveInt64(gcs, int64(s.NumGC))
		o.ObserveFloat64(uptime, s.Uptime.Seconds())
		return nil
	}, goroutines, heap, gcs, uptime)
}
