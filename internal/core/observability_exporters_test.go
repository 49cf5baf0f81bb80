package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "lineagecore.service.") {
		t.Fatalf("unexpected generated name %s", rec.Name())
	}
	svc := NewInMemoryService(nil, WithMetricsRecorder(rec))
	seedLineage(t, svc)
	_, _ = svc.GetLineage(context.Background(), "missing")
	rec.Observe(context.Background(), "", true, time.Second)

	if rec.Count(opCreateLineage, true) != 1 || rec.Count(opDivide, true) != 1 {
		t.Fatalf("expected one create and one divide, got %d/%d", rec.Count(opCreateLineage, true), rec.Count(opDivide, true))
	}
	if rec.Count(opGetLineage, false) != 1 || rec.Count(opGetLineage, true) != 0 {
		t.Fatalf("expected one failed get")
	}
	if rec.Count("", true) != 0 {
		t.Fatalf("empty operation names must be ignored")
	}

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get vars: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var vars map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&vars); err != nil {
		t.Fatalf("decode vars: %v", err)
	}
	var mine map[string]float64
	if err := json.Unmarshal(vars[rec.Name()], &mine); err != nil {
		t.Fatalf("decode %s: %v", rec.Name(), err)
	}
	if mine[opDivide+".success"] != 1 {
		t.Fatalf("expected divide counter in /debug/vars, got %v", mine)
	}
	if _, ok := mine[opDivide+".ms"]; !ok {
		t.Fatalf("expected divide timing in /debug/vars, got %v", mine)
	}
}

func TestTeeMetricsFansOut(t *testing.T) {
	a, b := &captureMetricsRecorder{}, &captureMetricsRecorder{}
	tee := TeeMetrics(a, nil, b)
	tee.Observe(context.Background(), opLayout, false, time.Millisecond)
	if !a.has(opLayout, false) || !b.has(opLayout, false) {
		t.Fatalf("expected both recorders to observe, got %+v %+v", a.calls, b.calls)
	}
}

func TestJSONTraceTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tracer.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	svc := NewInMemoryService(nil, WithTracer(tracer))
	seedLineage(t, svc)
	_, _, _ = svc.ApplyDivision(context.Background(), DivisionEvent{Mother: "x", Daughters: daughters("a", "b"), Time: 1})

	records := tracer.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 spans, got %+v", records)
	}
	last := records[2]
	if last.Seq != 3 || last.Operation != opApplyDivision || last.OK || last.Error == "" {
		t.Fatalf("unexpected failure span %+v", last)
	}
	if last.Elapsed != time.Millisecond {
		t.Fatalf("expected elapsed from tracer clock, got %v", last.Elapsed)
	}
	dec := json.NewDecoder(&buf)
	var seqs []uint64
	for {
		var rec TraceRecord
		if err := dec.Decode(&rec); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatalf("decode: %v", err)
		}
		seqs = append(seqs, rec.Seq)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Fatalf("expected spans 1..3 on the writer, got %v", seqs)
	}
}

func TestJSONTraceTracerKeepsRecentBacklog(t *testing.T) {
	tracer := NewJSONTracer(nil)
	for i := 0; i < traceBacklog+10; i++ {
		_, span := tracer.Start(context.Background(), opContains)
		span.End(nil)
	}
	records := tracer.Records()
	if len(records) != traceBacklog {
		t.Fatalf("expected %d retained spans, got %d", traceBacklog, len(records))
	}
	if records[0].Seq != 11 || records[len(records)-1].Seq != uint64(traceBacklog+10) {
		t.Fatalf("expected the newest spans, got %d..%d", records[0].Seq, records[len(records)-1].Seq)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	rec := NewPrometheusMetricsRecorder("")
	svc := NewInMemoryService(nil, WithMetricsRecorder(rec))
	l := seedLineage(t, svc)
	_, _ = svc.Layout(context.Background(), l.ID, 10)
	_, _ = svc.Layout(context.Background(), l.ID, 1)

	if got := testutil.ToFloat64(rec.operations.WithLabelValues(opLayout, "success")); got != 1 {
		t.Fatalf("expected 1 successful layout, got %v", got)
	}
	if got := testutil.ToFloat64(rec.operations.WithLabelValues(opLayout, "error")); got != 1 {
		t.Fatalf("expected 1 failed layout, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.latency); n != 3 {
		t.Fatalf("expected latency series for 3 operations, got %d", n)
	}

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `lineagecore_service_operations_total{operation="divide",status="success"} 1`) {
		t.Fatalf("scrape missing divide counter:\n%s", body)
	}
	if rec.Registry() == nil {
		t.Fatalf("expected registry")
	}
}
