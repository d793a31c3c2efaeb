package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var expvarSeq uint64

// ExpvarMetricsRecorder keeps per-operation duration totals (milliseconds)
// and success/error counts, published as one expvar variable.
type ExpvarMetricsRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[AuditStatus]int64
	waitlist  int
}

// ExpvarMetricsSnapshot is the JSON document served under the expvar name.
type ExpvarMetricsSnapshot struct {
	DurationsMS    map[string]float64               `json:"durations_ms_total"`
	Results        map[string]map[AuditStatus]int64 `json:"results_total"`
	WaitlistLength int                              `json:"waitlist_length"`
	RecordedAt     time.Time                        `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name gets
// a generated one; expvar panics on duplicate names.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("transplantcore_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[AuditStatus]int64),
	}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar variable name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	results := make(map[string]map[AuditStatus]int64, len(r.results))
	for op, counts := range r.results {
		cp := make(map[AuditStatus]int64, len(counts))
		for status, n := range counts {
			cp[status] = n
		}
		results[op] = cp
	}
	return ExpvarMetricsSnapshot{
		DurationsMS:    durations,
		Results:        results,
		WaitlistLength: r.waitlist,
		RecordedAt:     time.Now().UTC(),
	}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := statusOf(success)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[operation] += float64(duration) / float64(time.Millisecond)
	if r.results[operation] == nil {
		r.results[operation] = make(map[AuditStatus]int64, 2)
	}
	r.results[operation][status]++
}

// SetWaitlistLength implements WaitlistGauge.
func (r *ExpvarMetricsRecorder) SetWaitlistLength(n int) {
	r.mu.Lock()
	r.waitlist = n
	r.mu.Unlock()
}

// PrometheusMetricsRecorder exports operation counters, a latency histogram
// and the current waitlist length.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	waitlist   prometheus.Gauge
}

// NewPrometheusMetricsRecorder registers the collectors with reg. A nil reg
// uses the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transplantcore",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "transplantcore",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
		waitlist: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transplantcore",
			Name:      "waitlist_length",
			Help:      "Patients currently waiting.",
		}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.latency, r.waitlist} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	r.operations.WithLabelValues(operation, string(statusOf(success))).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetWaitlistLength implements WaitlistGauge.
func (r *PrometheusMetricsRecorder) SetWaitlistLength(n int) {
	r.waitlist.Set(float64(n))
}

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Operation  string      `json:"operation"`
	Status     AuditStatus `json:"status"`
	DurationMS float64     `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	EndedAt    time.Time   `json:"ended_at"`
}

// JSONTraceTracer writes finished spans as JSON lines and keeps them for
// inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer returns a tracer writing to w; a nil w only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries copies the finished spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     statusOf(err == nil),
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
}

// LogAuditRecorder writes audit entries to a Logger at info level, or warn
// level for failures.
type LogAuditRecorder struct {
	logger Logger
}

// NewLogAuditRecorder wraps logger; nil discards entries.
func NewLogAuditRecorder(logger Logger) *LogAuditRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogAuditRecorder{logger: logger}
}

// Record implements AuditRecorder.
func (r *LogAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	args := []any{
		"operation", entry.Operation,
		"entity", entry.Entity,
		"action", entry.Action,
		"entity_id", entry.EntityID,
		"duration", entry.Duration,
	}
	if entry.Status == AuditStatusError {
		r.logger.Warn("audit", append(args, "error", entry.Error)...)
		return
	}
	r.logger.Info("audit", args...)
}

func statusOf(success bool) AuditStatus {
	if success {
		return AuditStatusSuccess
	}
	return AuditStatusError
}
