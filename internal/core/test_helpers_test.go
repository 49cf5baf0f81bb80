package core

import (
	"context"
	"testing"
	"time"

	"lineagecore/pkg/lineage"
)

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) has(call string) bool {
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct{ calls []metricsCall }

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call == (metricsCall{op: op, success: success}) {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureAuditRecorder struct{ entries []AuditEntry }

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func daughters(a, b string) [2]lineage.CellID {
	return [2]lineage.CellID{lineage.CellID(a), lineage.CellID(b)}
}

// seedLineage creates founder "0" at t=0 and divides it into "1" and "2" at t=5.
func seedLineage(t *testing.T, svc *Service) Lineage {
	t.Helper()
	ctx := context.Background()
	created, _, err := svc.CreateLineage(ctx, "0", 0)
	if err != nil {
		t.Fatalf("create lineage: %v", err)
	}
	updated, _, err := svc.Divide(ctx, created.ID, DivisionEvent{Mother: "0", Daughters: daughters("1", "2"), Time: 5})
	if err != nil {
		t.Fatalf("divide founder: %v", err)
	}
	return updated
}
