package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var expvarSeq atomic.Uint64

// ExpvarMetricsRecorder publishes service counters as one expvar map. Each
// operation contributes "<op>.success", "<op>.error" and "<op>.ms", the last
// being cumulative wall time in milliseconds.
type ExpvarMetricsRecorder struct {
	name string
	vars *expvar.Map
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated "lineagecore.service.N" name when name is empty. expvar names are
// process global, so a name can be published once.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("lineagecore.service.%d", expvarSeq.Add(1))
	}
	vars := new(expvar.Map).Init()
	expvar.Publish(name, vars)
	return &ExpvarMetricsRecorder{name: name, vars: vars}
}

// Name returns the expvar name the recorder is published under.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.vars.Add(operation+"."+statusLabel(success), 1)
	r.vars.AddFloat(operation+".ms", float64(duration)/float64(time.Millisecond))
}

// Count returns how many operations finished with the given outcome.
func (r *ExpvarMetricsRecorder) Count(operation string, success bool) int64 {
	v, ok := r.vars.Get(operation + "." + statusLabel(success)).(*expvar.Int)
	if !ok {
		return 0
	}
	return v.Value()
}

// Handler serves every published expvar variable, this recorder included.
func (r *ExpvarMetricsRecorder) Handler() http.Handler { return expvar.Handler() }

type teeMetricsRecorder []MetricsRecorder

func (t teeMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, rec := range t {
		rec.Observe(ctx, operation, success, duration)
	}
}

// TeeMetrics fans each observation out to every non-nil recorder.
func TeeMetrics(recorders ...MetricsRecorder) MetricsRecorder {
	out := make(teeMetricsRecorder, 0, len(recorders))
	for _, rec := range recorders {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// TraceRecord is one finished span.
type TraceRecord struct {
	Seq       uint64        `json:"seq"`
	Operation string        `json:"op"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	Start     time.Time     `json:"start"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

const traceBacklog = 256

// JSONTraceTracer writes every finished span as a JSON line and keeps the
// most recent ones in memory. Seq numbers spans in the order they end.
type JSONTraceTracer struct {
	mu      sync.Mutex
	w       io.Writer
	now     func() time.Time
	seq     uint64
	records []TraceRecord
}

// NewJSONTracer returns a tracer writing to w. A nil w only retains records.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	return &JSONTraceTracer{w: w, now: func() time.Time { return time.Now().UTC() }}
}

// Records returns the retained spans, oldest first.
func (t *JSONTraceTracer) Records() []TraceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceRecord(nil), t.records...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, rec: TraceRecord{Operation: operation, Start: t.now()}}
}

func (t *JSONTraceTracer) finish(rec TraceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	rec.Seq = t.seq
	t.records = append(t.records, rec)
	if len(t.records) > traceBacklog {
		t.records = t.records[len(t.records)-traceBacklog:]
	}
	if t.w == nil {
		return
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_, _ = t.w.Write(append(line, '\n'))
}

type jsonTraceSpan struct {
	tracer *JSONTraceTracer
	rec    TraceRecord
}

func (s *jsonTraceSpan) End(err error) {
	rec := s.rec
	rec.Elapsed = s.tracer.now().Sub(rec.Start)
	rec.OK = err == nil
	if err != nil {
		rec.Error = err.Error()
	}
	s.tracer.finish(rec)
}

// PrometheusMetricsRecorder exports operation counters and latency histograms
// on a private registry so several services can coexist in one process.
type PrometheusMetricsRecorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the lineagecore service collectors on
// a fresh registry. namespace defaults to "lineagecore".
func NewPrometheusMetricsRecorder(namespace string) *PrometheusMetricsRecorder {
	if namespace == "" {
		namespace = "lineagecore"
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &PrometheusMetricsRecorder{
		registry: registry,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
		}, []string{"operation"}),
	}
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, statusLabel(success)).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Registry exposes the private registry for scraping or test inspection.
func (r *PrometheusMetricsRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusMetricsRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func statusLabel(success bool) string {
	if success {
		return string(AuditStatusSuccess)
	}
	return string(AuditStatusError)
}
