package runtime

import (
	"runtime/metrics"
	"sync"
	"time"
)

const (
	metricCPUUser    = "/cpu/classes/user:cpu-seconds"
	metricHeapBytes  = "/memory/classes/heap/objects:bytes"
	metricGoroutines = "/sched/goroutines:goroutines"
	metricGOMAXPROCS = "/sched/gomaxprocs:threads"
)

type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

// resourceTracker samples process-wide usage from runtime/metrics. CPU is
// reported as the share of GOMAXPROCS spent in user code since the previous
// sample.
type resourceTracker struct {
	mu          sync.Mutex
	samples     []metrics.Sample
	lastCPU     float64
	lastSampled time.Time
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		samples: []metrics.Sample{
			{Name: metricCPUUser},
			{Name: metricHeapBytes},
			{Name: metricGoroutines},
			{Name: metricGOMAXPROCS},
		},
	}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics.Read(r.samples)
	now := time.Now()

	var usage ResourceUsage
	usage.MemoryBytes = uint64Value(r.samples[1])
	usage.Goroutines = int(uint64Value(r.samples[2]))

	if r.samples[0].Value.Kind() == metrics.KindFloat64 {
		cpu := r.samples[0].Value.Float64()
		procs := float64(uint64Value(r.samples[3]))
		if !r.lastSampled.IsZero() && procs > 0 {
			if wall := now.Sub(r.lastSampled).Seconds(); wall > 0 {
				usage.CPUPercent = (cpu - r.lastCPU) / wall / procs * 100
			}
		}
		r.lastCPU = cpu
	}
	r.lastSampled = now

	return usage
}

func uint64Value(s metrics.Sample) uint64 {
	if s.Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return s.Value.Uint64()
}
