package tracer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func newTestTracer(t *testing.T, cfg Config) *Tracer {
	t.Helper()
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	tr, err := New(cfg, nil, io.Discard)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close(context.Background()) })
	return tr
}

func TestStartAndEndRecordsTrace(t *testing.T) {
	tr := newTestTracer(t, Config{})
	ctx, span := tr.Start(context.Background(), "create_task")
	_ = ctx
	span.Event("validated")
	span.End(nil)

	summary := tr.Summary("create_task")
	if summary.Count != 1 {
		t.Fatalf("expected 1 completed trace, got %d", summary.Count)
	}
	if summary.ErrorRate != 0 {
		t.Fatalf("expected zero error rate, got %f", summary.ErrorRate)
	}
}

func TestSummaryComputesErrorRate(t *testing.T) {
	tr := newTestTracer(t, Config{})

	_, ok := tr.Start(context.Background(), "op")
	ok.End(nil)
	_, bad := tr.Start(context.Background(), "op")
	bad.End(errors.New("boom"))

	summary := tr.Summary("op")
	if summary.Count != 2 {
		t.Fatalf("expected 2 traces, got %d", summary.Count)
	}
	if summary.ErrorRate != 0.5 {
		t.Fatalf("expected error rate 0.5, got %f", summary.ErrorRate)
	}
}

func TestMaxTracesEvictsOldest(t *testing.T) {
	tr := newTestTracer(t, Config{MaxTraces: 2})

	_, s1 := tr.Start(context.Background(), "op")
	s1.End(nil)
	_, s2 := tr.Start(context.Background(), "op")
	s2.End(nil)
	_, s3 := tr.Start(context.Background(), "op")
	s3.End(nil)

	if tr.Trace(s1.traceID) != nil {
		t.Fatalf("expected oldest trace to be evicted")
	}
	if tr.Trace(s3.traceID) == nil {
		t.Fatalf("expected newest trace to be retained")
	}
}

func TestMaxEventsPerTraceCapsAppends(t *testing.T) {
	tr := newTestTracer(t, Config{MaxEventsPerTrace: 2})
	_, span := tr.Start(context.Background(), "op")
	for i := 0; i < 10; i++ {
		span.Event("tick")
	}
	rec := tr.Trace(span.traceID)
	if rec == nil {
		t.Fatal("expected trace to exist")
	}
	if len(rec.Events) > 2 {
		t.Fatalf("expected events capped at 2, got %d", len(rec.Events))
	}
}

func TestEvictExpiredDropsOldTraces(t *testing.T) {
	tr := newTestTracer(t, Config{TraceRetention: time.Millisecond})
	_, span := tr.Start(context.Background(), "op")
	span.End(nil)

	time.Sleep(5 * time.Millisecond)
	tr.evictExpired()

	if tr.Trace(span.traceID) != nil {
		t.Fatalf("expected expired trace to be evicted")
	}
}
