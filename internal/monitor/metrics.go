package monitor

import (
	"runtime"
	"strconv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics tracks runner activity. Counters are exported to Prometheus and
// mirrored in a snapshot for the status API.
type Metrics struct {
	TickLatency  *LatencyHistogram
	VenueLatency *LatencyHistogram
	APILatency   *LatencyHistogram

	ticks           uint64
	tickFailures    uint64
	signals         uint64
	trades          uint64
	guardRejections uint64

	registry       *prometheus.Registry
	tickTotal      prometheus.Counter
	tickFailTotal  prometheus.Counter
	tickDuration   prometheus.Histogram
	signalTotal    *prometheus.CounterVec
	tradeTotal     *prometheus.CounterVec
	guardRejectTot prometheus.Counter
	equityGauge    prometheus.Gauge
	positionsGauge prometheus.Gauge
	pausedGauge    prometheus.Gauge
	lastTickGauge  prometheus.Gauge
	httpTotal      *prometheus.CounterVec
}

// NewMetrics creates metrics registered on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		TickLatency:  NewLatencyHistogram(500),
		VenueLatency: NewLatencyHistogram(500),
		APILatency:   NewLatencyHistogram(500),
		registry:     prometheus.NewRegistry(),
		tickTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_ticks_total", Help: "Runner ticks executed.",
		}),
		tickFailTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_tick_failures_total", Help: "Runner ticks that failed.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_tick_duration_seconds",
			Help:    "Wall time of one runner tick.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		signalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_total", Help: "Entry evaluations by variant and outcome.",
		}, []string{"variant", "signal"}),
		tradeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_trades_total", Help: "Trade attempts by action and status.",
		}, []string{"action", "status"}),
		guardRejectTot: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_trade_guard_rejections_total", Help: "Trades blocked by the sliding-window guard.",
		}),
		equityGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_total_equity", Help: "Balance plus locked margin plus unrealized PnL.",
		}),
		positionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_positions", Help: "Open positions at the venue.",
		}),
		pausedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_strategy_paused", Help: "1 when strategy entries are paused.",
		}),
		lastTickGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_last_tick_timestamp_seconds", Help: "Unix time of the last tick.",
		}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_http_requests_total", Help: "Dashboard API requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.tickTotal, m.tickFailTotal, m.tickDuration, m.signalTotal, m.tradeTotal,
		m.guardRejectTot, m.equityGauge, m.positionsGauge, m.pausedGauge, m.lastTickGauge,
		m.httpTotal, collectors.NewGoCollector(),
	)
	return m
}

// Registry is the Prometheus gatherer for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveHTTP records one API request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.APILatency.RecordDuration(d)
	m.httpTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// ObserveTick records one tick.
func (m *Metrics) ObserveTick(at time.Time, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ticks, 1)
	m.tickTotal.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.TickLatency.RecordDuration(d)
	m.lastTickGauge.Set(float64(at.Unix()))
	if failed {
		atomic.AddUint64(&m.tickFailures, 1)
		m.tickFailTotal.Inc()
	}
}

// ObserveSignal counts an entry evaluation.
func (m *Metrics) ObserveSignal(variant string, signal bool) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.signals, 1)
	label := "false"
	if signal {
		label = "true"
	}
	m.signalTotal.WithLabelValues(variant, label).Inc()
}

// ObserveTrade counts a trade attempt.
func (m *Metrics) ObserveTrade(action, status string) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.trades, 1)
	m.tradeTotal.WithLabelValues(action, status).Inc()
}

// GuardRejected counts a trade blocked by the trade guard.
func (m *Metrics) GuardRejected() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.guardRejections, 1)
	m.guardRejectTot.Inc()
}

// SetAccount updates the equity and position gauges.
func (m *Metrics) SetAccount(totalEquity float64, positions int) {
	if m == nil {
		return
	}
	m.equityGauge.Set(totalEquity)
	m.positionsGauge.Set(float64(positions))
}

// SetPaused mirrors the pause flag.
func (m *Metrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.pausedGauge.Set(1)
		return
	}
	m.pausedGauge.Set(0)
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next sample.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// Snapshot is a point-in-time view for the status API.
type Snapshot struct {
	TickLatency     LatencyStats `json:"tick_latency"`
	VenueLatency    LatencyStats `json:"venue_latency"`
	APILatency      LatencyStats `json:"api_latency"`
	Ticks           uint64       `json:"ticks"`
	TickFailures    uint64       `json:"tick_failures"`
	Signals         uint64       `json:"signals"`
	Trades          uint64       `json:"trades"`
	GuardRejections uint64       `json:"guard_rejections"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	Timestamp       time.Time    `json:"timestamp"`
}

// Snapshot returns current counters and latency stats.
func (m *Metrics) Snapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Snapshot{
		TickLatency:     m.TickLatency.Stats(),
		VenueLatency:    m.VenueLatency.Stats(),
		APILatency:      m.APILatency.Stats(),
		Ticks:           atomic.LoadUint64(&m.ticks),
		TickFailures:    atomic.LoadUint64(&m.tickFailures),
		Signals:         atomic.LoadUint64(&m.signals),
		Trades:          atomic.LoadUint64(&m.trades),
		GuardRejections: atomic.LoadUint64(&m.guardRejections),
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		Timestamp:       time.Now(),
	}
}
