// SPDX-License-Identifier: GPL-3.0-or-later

// Package monitor wires common process instrumentation onto a registry:
// runtime gauges and explicit HTTP and logging decorators applied by the
// caller at composition time.
package monitor

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/meterflow/meterflow/pkg/meter"
)

// RegisterRuntimeGauges registers process-level gauges: goroutine count,
// completed GC cycles, uptime and a memory-stats breakdown keyed by a
// "stat" tag. All carry the process pid as a tag. A nil registry means the
// package default one.
func RegisterRuntimeGauges(reg *meter.Registry) {
	if reg == nil {
		reg = meter.Default
	}

	pid := map[string]string{"pid": strconv.Itoa(os.Getpid())}
	started := time.Now()

	g := reg.Gauge("process_goroutine_count")
	_ = g.AddTags(pid)
	g.SetMeasurement(func() (float64, error) {
		return float64(runtime.NumGoroutine()), nil
	})

	g = reg.Gauge("process_gc_cycles")
	_ = g.AddTags(pid)
	g.SetMeasurement(func() (float64, error) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.NumGC), nil
	})

	g = reg.Gauge("process_uptime_seconds")
	_ = g.AddTags(pid)
	g.SetMeasurement(func() (float64, error) {
		return time.Since(started).Seconds(), nil
	})

	g = reg.Gauge("process_memory_stats")
	_ = g.AddTags(pid)
	g.SetKeyedMeasurement("stat", func() (map[string]float64, error) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return map[string]float64{
			"alloc":        float64(ms.Alloc),
			"total_alloc":  float64(ms.TotalAlloc),
			"sys":          float64(ms.Sys),
			"heap_alloc":   float64(ms.HeapAlloc),
			"heap_sys":     float64(ms.HeapSys),
			"heap_inuse":   float64(ms.HeapInuse),
			"heap_objects": float64(ms.HeapObjects),
			"stack_inuse":  float64(ms.StackInuse),
			"stack_sys":    float64(ms.StackSys),
		}, nil
	})
}
