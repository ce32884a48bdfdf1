// Package monitor implements the query performance monitor of spec §4.1:
// per-call duration recording, a bounded ring of recent queries, and
// percentile/slow/frequent statistics views, exported both as an
// in-process dashboard and as Prometheus metrics.
package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config mirrors QueryMonitorConfig from the source.
type Config struct {
	SlowQueryThresholdMS int
	MaxQueryHistory      int
}

// DefaultConfig matches the source's dataclass defaults.
func DefaultConfig() Config {
	return Config{SlowQueryThresholdMS: 100, MaxQueryHistory: 1000}
}

// SlowQueryError describes a query that exceeded the slow-query threshold.
// Nothing in this package returns it: Record only counts slow queries.
type SlowQueryError struct {
	QueryHash  string
	DurationMS float64
	ThresholdMS float64
}

func (e *SlowQueryError) Error() string {
	return "slow query detected: " + e.QueryHash
}

// QueryInfo records one execution, matching QueryInfo from the source.
type QueryInfo struct {
	QueryHash  string
	QueryText  string
	DurationMS float64
	Timestamp  time.Time
	Error      string
}

// IsSlow reports whether this execution exceeded the threshold.
func (q QueryInfo) IsSlow(thresholdMS float64) bool { return q.DurationMS >= thresholdMS }

// Stats aggregates query durations for one monitor: count, min/max/avg,
// percentiles, and slow/failed counts.
type Stats struct {
	TotalQueries  int
	SlowQueries   int
	FailedQueries int
	MinDurationMS float64
	MaxDurationMS float64
	AvgDurationMS float64
	P50MS         float64
	P95MS         float64
	P99MS         float64
}

// Monitor wraps data-store calls and accumulates statistics, mirroring
// QueryStats/the monitor half of query_monitor.py.
type Monitor struct {
	name      string
	cfg       Config

	mu        sync.Mutex
	total     int
	slow      int
	failed    int
	sum       float64
	min       float64
	max       float64
	durations []float64
	ring      []QueryInfo

	callsCounter   *prometheus.CounterVec
	durationHist   prometheus.Histogram
}

// New constructs a named monitor and registers its Prometheus
// collectors against reg (nil uses the default registerer).
func New(name string, cfg Config, reg prometheus.Registerer) *Monitor {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Monitor{name: name, cfg: cfg, min: -1}

	m.callsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "memstack_query_calls_total",
		Help: "Total data-store calls observed by the query monitor, by store and outcome.",
		ConstLabels: prometheus.Labels{"store": name},
	}, []string{"outcome"})
	m.durationHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "memstack_query_duration_ms",
		Help:        "Observed data-store call duration in milliseconds.",
		ConstLabels: prometheus.Labels{"store": name},
		Buckets:     []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})

	_ = reg.Register(m.callsCounter)
	_ = reg.Register(m.durationHist)
	return m
}

// HashQuery computes a stable identifier for a query string, grouping
// repeated shapes together in the frequency view.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:16]
}

// Record wraps fn, timing it and recording the result.
func (m *Monitor) Record(ctx context.Context, queryText string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	durationMS := float64(time.Since(start)) / float64(time.Millisecond)

	m.record(queryText, durationMS, err)
	return err
}

func (m *Monitor) record(queryText string, durationMS float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.callsCounter.WithLabelValues(outcome).Inc()
	m.durationHist.Observe(durationMS)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.sum += durationMS
	if m.min < 0 || durationMS < m.min {
		m.min = durationMS
	}
	if durationMS > m.max {
		m.max = durationMS
	}
	m.durations = append(m.durations, durationMS)

	errMsg := ""
	if err != nil {
		m.failed++
		errMsg = err.Error()
	}
	if durationMS >= float64(m.cfg.SlowQueryThresholdMS) {
		m.slow++
	}

	info := QueryInfo{
		QueryHash:  HashQuery(queryText),
		QueryText:  queryText,
		DurationMS: durationMS,
		Timestamp:  time.Now(),
		Error:      errMsg,
	}
	m.ring = append(m.ring, info)
	if len(m.ring) > m.cfg.MaxQueryHistory {
		m.ring = m.ring[len(m.ring)-m.cfg.MaxQueryHistory:]
	}
}

// Statistics returns the aggregated view, matching QueryStats's exposed
// properties (percentiles computed over the full retained sample, same
// as the source's sorted-list percentile calculation).
func (m *Monitor) Statistics() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		TotalQueries:  m.total,
		SlowQueries:   m.slow,
		FailedQueries: m.failed,
	}
	if m.total == 0 {
		return s
	}
	s.MinDurationMS = m.min
	s.MaxDurationMS = m.max
	s.AvgDurationMS = m.sum / float64(m.total)
	s.P50MS = percentile(m.durations, 50)
	s.P95MS = percentile(m.durations, 95)
	s.P99MS = percentile(m.durations, 99)
	return s
}

func percentile(values []float64, p int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// SlowestN returns the N slowest recorded queries, most recent history
// first by duration descending.
func (m *Monitor) SlowestN(n int) []QueryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := append([]QueryInfo(nil), m.ring...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DurationMS > sorted[j].DurationMS })
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// MostFrequentN groups retained queries by hash and returns the N most
// frequent as a hash-to-count map; the map itself carries no order.
func (m *Monitor) MostFrequentN(n int) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, q := range m.ring {
		counts[q.QueryHash]++
	}
	type kv struct {
		hash  string
		count int
	}
	list := make([]kv, 0, len(counts))
	for h, c := range counts {
		list = append(list, kv{h, c})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].count > list[j].count })
	if n > len(list) {
		n = len(list)
	}
	out := make(map[string]int, n)
	for _, e := range list[:n] {
		out[e.hash] = e.count
	}
	return out
}

// Dashboard combines statistics, slowest, and most-frequent into one
// view, matching the source's performance dashboard data aggregation.
type Dashboard struct {
	Stats         Stats
	Slowest       []QueryInfo
	MostFrequent  map[string]int
}

// DashboardView returns the combined dashboard.
func (m *Monitor) DashboardView(topN int) Dashboard {
	return Dashboard{
		Stats:        m.Statistics(),
		Slowest:      m.SlowestN(topN),
		MostFrequent: m.MostFrequentN(topN),
	}
}
