package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// durationBuckets are the histogram upper bounds in seconds.
var durationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300}

// counterKey dimensions follow the scrape contract: task name, terminal
// status, and tenant.
type counterKey struct {
	Task   string
	Status string
	Tenant uuid.UUID
}

// GaugeFunc samples a gauge at scrape time.
type GaugeFunc func(ctx context.Context) float64

// histogram is a fixed-bucket duration histogram.
type histogram struct {
	counts []uint64 // one per bucket, plus overflow at the end
	sum    float64
	total  uint64
}

func newHistogram() *histogram {
	return &histogram{counts: make([]uint64, len(durationBuckets)+1)}
}

func (h *histogram) observe(seconds float64) {
	idx := sort.SearchFloat64s(durationBuckets, seconds)
	h.counts[idx]++
	h.sum += seconds
	h.total++
}

// Metrics aggregates counters by task/status/tenant, duration histograms by
// task, and registered gauges. It implements Observer so it can be plugged
// straight into a Dispatcher.
type Metrics struct {
	mu        sync.RWMutex
	counters  map[counterKey]uint64
	durations map[string]*histogram
	gauges    map[string]GaugeFunc
}

// NewMetrics creates an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		counters:  make(map[counterKey]uint64),
		durations: make(map[string]*histogram),
		gauges:    make(map[string]GaugeFunc),
	}
}

// Observe implements Observer.
func (m *Metrics) Observe(_ context.Context, e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[counterKey{Task: e.TaskName, Status: string(e.Kind), Tenant: e.TenantID}]++

	if e.Duration > 0 && (e.Kind == EventSuccess || e.Kind == EventFailure) {
		h, ok := m.durations[e.TaskName]
		if !ok {
			h = newHistogram()
			m.durations[e.TaskName] = h
		}
		h.observe(e.Duration.Seconds())
	}
}

// RegisterGauge registers a gauge sampled at every snapshot. Re-registering a
// name replaces the previous gauge.
func (m *Metrics) RegisterGauge(name string, fn GaugeFunc) {
	if name == "" || fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = fn
}

// CounterValue returns the current count for one dimension combination.
func (m *Metrics) CounterValue(taskName, status string, tenantID uuid.UUID) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[counterKey{Task: taskName, Status: status, Tenant: tenantID}]
}

// CounterSnapshot is one exported counter sample.
type CounterSnapshot struct {
	Task   string    `json:"task"`
	Status string    `json:"status"`
	Tenant uuid.UUID `json:"tenant"`
	Value  uint64    `json:"value"`
}

// HistogramSnapshot is one exported duration histogram.
type HistogramSnapshot struct {
	Task    string    `json:"task"`
	Buckets []float64 `json:"buckets"`
	Counts  []uint64  `json:"counts"`
	Sum     float64   `json:"sum_seconds"`
	Total   uint64    `json:"total"`
}

// Snapshot is the full scrape payload.
type Snapshot struct {
	TakenAt    time.Time           `json:"taken_at"`
	Counters   []CounterSnapshot   `json:"counters"`
	Histograms []HistogramSnapshot `json:"histograms"`
	Gauges     map[string]float64  `json:"gauges"`
}

// Snapshot produces a point-in-time copy of every metric, sampling gauges
// with the given context.
func (m *Metrics) Snapshot(ctx context.Context) Snapshot {
	m.mu.RLock()
	counters := make([]CounterSnapshot, 0, len(m.counters))
	for key, value := range m.counters {
		counters = append(counters, CounterSnapshot{
			Task: key.Task, Status: key.Status, Tenant: key.Tenant, Value: value,
		})
	}
	histograms := make([]HistogramSnapshot, 0, len(m.durations))
	for taskName, h := range m.durations {
		counts := make([]uint64, len(h.counts))
		copy(counts, h.counts)
		histograms = append(histograms, HistogramSnapshot{
			Task: taskName, Buckets: durationBuckets, Counts: counts, Sum: h.sum, Total: h.total,
		})
	}
	gauges := make(map[string]GaugeFunc, len(m.gauges))
	for name, fn := range m.gauges {
		gauges[name] = fn
	}
	m.mu.RUnlock()

	// Gauges are sampled outside the lock: they may call the broker.
	sampled := make(map[string]float64, len(gauges))
	for name, fn := range gauges {
		sampled[name] = fn(ctx)
	}

	sort.Slice(counters, func(i, j int) bool {
		if counters[i].Task != counters[j].Task {
			return counters[i].Task < counters[j].Task
		}
		return counters[i].Status < counters[j].Status
	})
	sort.Slice(histograms, func(i, j int) bool {
		return histograms[i].Task < histograms[j].Task
	})

	return Snapshot{
		TakenAt:    time.Now(),
		Counters:   counters,
		Histograms: histograms,
		Gauges:     sampled,
	}
}
