// Package metrics tracks pipeline latencies and outcome counters.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Well-known stage names recorded by the pipeline.
const (
	StageScan     = "scan"
	StageDispatch = "dispatch"
	StagePersist  = "persist"
	StageReview   = "llm_review"
)

// =============================================================================
// Stage Latency Tracker with Percentiles
// =============================================================================

// StageTracker tracks latencies for one pipeline stage and calculates
// percentiles over a sliding window of recent samples.
type StageTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
	sorted     bool
}

// NewStageTracker creates a tracker keeping up to windowSize samples.
func NewStageTracker(windowSize int) *StageTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &StageTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record records a latency measurement.
func (st *StageTracker) Record(d time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.samples) >= st.maxSamples {
		// Drop the oldest 10% to avoid shifting on every append.
		drop := st.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		st.samples = st.samples[drop:]
	}

	st.samples = append(st.samples, d.Microseconds())
	st.sorted = false
}

// Stats returns latency statistics including percentiles.
func (st *StageTracker) Stats() StageStats {
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.samples) == 0 {
		return StageStats{}
	}

	if !st.sorted {
		sort.Slice(st.samples, func(i, j int) bool {
			return st.samples[i] < st.samples[j]
		})
		st.sorted = true
	}

	n := len(st.samples)
	var sum int64
	for _, v := range st.samples {
		sum += v
	}

	return StageStats{
		Count:   int64(n),
		Min:     time.Duration(st.samples[0]) * time.Microsecond,
		Max:     time.Duration(st.samples[n-1]) * time.Microsecond,
		Avg:     time.Duration(sum/int64(n)) * time.Microsecond,
		P50:     time.Duration(st.percentile(0.50)) * time.Microsecond,
		P95:     time.Duration(st.percentile(0.95)) * time.Microsecond,
		P99:     time.Duration(st.percentile(0.99)) * time.Microsecond,
		Samples: n,
	}
}

// percentile requires the lock held and samples sorted.
func (st *StageTracker) percentile(p float64) int64 {
	if len(st.samples) == 0 {
		return 0
	}
	idx := int(float64(len(st.samples)-1) * p)
	return st.samples[idx]
}

// Reset clears all samples.
func (st *StageTracker) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.samples = st.samples[:0]
	st.sorted = false
}

// StageStats holds latency statistics for a stage.
type StageStats struct {
	Count   int64         `json:"count"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Avg     time.Duration `json:"avg"`
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
	Samples int           `json:"samples"`
}

// ToMap flattens the stats to millisecond values for JSON responses.
func (s StageStats) ToMap() map[string]any {
	return map[string]any{
		"count":       s.Count,
		"min_ms":      float64(s.Min.Microseconds()) / 1000,
		"max_ms":      float64(s.Max.Microseconds()) / 1000,
		"avg_ms":      float64(s.Avg.Microseconds()) / 1000,
		"p50_ms":      float64(s.P50.Microseconds()) / 1000,
		"p95_ms":      float64(s.P95.Microseconds()) / 1000,
		"p99_ms":      float64(s.P99.Microseconds()) / 1000,
		"sample_size": s.Samples,
	}
}

// =============================================================================
// Pipeline Metrics (latency registry + outcome counters)
// =============================================================================

// PipelineMetrics aggregates stage latencies and outcome counters for
// the whole detection pipeline.
type PipelineMetrics struct {
	mu       sync.RWMutex
	trackers map[string]*StageTracker
	window   int

	scansTotal     int64 // atomic
	detections     sync.Map // tier -> *int64
	alertsOpened   int64 // atomic
	deliveries     sync.Map // "channel:outcome" -> *int64
	escalations    int64 // atomic
	dedupSuppress  int64 // atomic
}

// NewPipelineMetrics creates a metrics aggregator.
func NewPipelineMetrics(windowSize int) *PipelineMetrics {
	return &PipelineMetrics{
		trackers: make(map[string]*StageTracker),
		window:   windowSize,
	}
}

// RecordLatency records a latency for the given stage.
func (m *PipelineMetrics) RecordLatency(stage string, d time.Duration) {
	m.mu.RLock()
	tracker, ok := m.trackers[stage]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		if tracker, ok = m.trackers[stage]; !ok {
			tracker = NewStageTracker(m.window)
			m.trackers[stage] = tracker
		}
		m.mu.Unlock()
	}

	tracker.Record(d)
}

// IncScans counts one scanned message.
func (m *PipelineMetrics) IncScans() {
	atomic.AddInt64(&m.scansTotal, 1)
}

// IncDetections counts one detection at the given tier.
func (m *PipelineMetrics) IncDetections(tier string) {
	m.incMap(&m.detections, tier)
}

// IncAlertsOpened counts one alert created.
func (m *PipelineMetrics) IncAlertsOpened() {
	atomic.AddInt64(&m.alertsOpened, 1)
}

// IncDelivery counts one delivery attempt outcome for a channel.
func (m *PipelineMetrics) IncDelivery(channel, outcome string) {
	m.incMap(&m.deliveries, channel+":"+outcome)
}

// IncEscalations counts one escalated alert.
func (m *PipelineMetrics) IncEscalations() {
	atomic.AddInt64(&m.escalations, 1)
}

// IncDedupSuppressed counts one alert suppressed by the cooldown window.
func (m *PipelineMetrics) IncDedupSuppressed() {
	atomic.AddInt64(&m.dedupSuppress, 1)
}

func (m *PipelineMetrics) incMap(sm *sync.Map, key string) {
	v, _ := sm.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// LatencyStats returns stats for one stage.
func (m *PipelineMetrics) LatencyStats(stage string) StageStats {
	m.mu.RLock()
	tracker, ok := m.trackers[stage]
	m.mu.RUnlock()

	if !ok {
		return StageStats{}
	}
	return tracker.Stats()
}

// Snapshot returns every counter and latency stat for the metrics endpoint.
func (m *PipelineMetrics) Snapshot() map[string]any {
	latencies := make(map[string]any)
	m.mu.RLock()
	for name, tracker := range m.trackers {
		latencies[name] = tracker.Stats().ToMap()
	}
	m.mu.RUnlock()

	detections := make(map[string]int64)
	m.detections.Range(func(k, v any) bool {
		detections[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})

	deliveries := make(map[string]int64)
	m.deliveries.Range(func(k, v any) bool {
		deliveries[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})

	return map[string]any{
		"scans_total":      atomic.LoadInt64(&m.scansTotal),
		"detections":       detections,
		"alerts_opened":    atomic.LoadInt64(&m.alertsOpened),
		"deliveries":       deliveries,
		"escalations":      atomic.LoadInt64(&m.escalations),
		"dedup_suppressed": atomic.LoadInt64(&m.dedupSuppress),
		"latency":          latencies,
	}
}

// Reset clears all counters and latency samples.
func (m *PipelineMetrics) Reset() {
	m.mu.Lock()
	for _, tracker := range m.trackers {
		tracker.Reset()
	}
	m.mu.Unlock()

	atomic.StoreInt64(&m.scansTotal, 0)
	atomic.StoreInt64(&m.alertsOpened, 0)
	atomic.StoreInt64(&m.escalations, 0)
	atomic.StoreInt64(&m.dedupSuppress, 0)
	m.detections.Range(func(k, _ any) bool { m.detections.Delete(k); return true })
	m.deliveries.Range(func(k, _ any) bool { m.deliveries.Delete(k); return true })
}

// =============================================================================
// Global Pipeline Metrics (Singleton)
// =============================================================================

var (
	globalMetrics     *PipelineMetrics
	globalMetricsOnce sync.Once
)

// Global returns the process-wide metrics aggregator.
func Global() *PipelineMetrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewPipelineMetrics(1000)
	})
	return globalMetrics
}
