// Package tracer implements component C13: a per-operation request
// tracer that pairs a real OpenTelemetry span (grounded on the
// `otel.Tracer`/span wiring in the teacher's internal/storage/dolt/store.go)
// with a bounded in-memory ring of trace records, so summary statistics
// (spec §4.9) are available without a collector backend.
package tracer

import (
	"context"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/taskcore/taskcore/internal/corelog"
	"github.com/taskcore/taskcore/internal/idgen"
)

// Config mirrors config.TracerConfig (spec §6 tracer).
type Config struct {
	MaxTraces         int
	MaxEventsPerTrace int
	TraceRetention    time.Duration
	CleanupInterval   time.Duration
}

// EventKind tags the phase an appended Event records.
type EventKind string

const (
	EventStart EventKind = "start"
	EventMark  EventKind = "event"
	EventEnd   EventKind = "end"
	EventError EventKind = "error"
)

// Event is one entry in a Trace's ordered log.
type Event struct {
	Kind EventKind
	Name string
	At   time.Time
}

// Trace is the retained record of one traced operation.
type Trace struct {
	ID     string
	Op     string
	Events []Event
	Start  time.Time
	End    time.Time
	Err    error
}

// Duration returns End.Sub(Start), or the zero duration if the trace
// hasn't ended yet.
func (t *Trace) Duration() time.Duration {
	if t.End.IsZero() {
		return 0
	}
	return t.End.Sub(t.Start)
}

// Summary is the aggregate statistics spec §4.9 asks for: counts, average
// duration, error rate, scoped to whatever subset Summary was computed
// over.
type Summary struct {
	Count       int
	ErrorCount  int
	AvgDuration time.Duration
	ErrorRate   float64
}

// Tracer wraps an otel/trace.Tracer with the bounded retention ring.
type Tracer struct {
	mu     sync.Mutex
	cfg    Config
	logger *corelog.Logger
	otel   oteltrace.Tracer
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider

	started metric.Int64Counter
	errored metric.Int64Counter

	traces []*Trace // ordered oldest -> newest
	byID   map[string]*Trace

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Tracer. w receives the stdout span exporter's output
// (the domain stack's default, no-collector-required exporter); pass
// io.Discard in tests or when only the in-memory ring matters.
func New(cfg Config, logger *corelog.Logger, w io.Writer) (*Tracer, error) {
	if cfg.MaxTraces <= 0 {
		cfg.MaxTraces = 1000
	}
	if cfg.MaxEventsPerTrace <= 0 {
		cfg.MaxEventsPerTrace = 100
	}
	if cfg.TraceRetention <= 0 {
		cfg.TraceRetention = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if logger == nil {
		logger = corelog.Nop()
	}
	if w == nil {
		w = io.Discard
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))

	mexp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(cfg.CleanupInterval))))
	meter := mp.Meter("github.com/taskcore/taskcore/internal/tracer")

	started, _ := meter.Int64Counter("tracer.traces_started")
	errored, _ := meter.Int64Counter("tracer.traces_errored")

	t := &Tracer{
		cfg:     cfg,
		logger:  logger,
		otel:    tp.Tracer("github.com/taskcore/taskcore/internal/tracer"),
		tp:      tp,
		mp:      mp,
		started: started,
		errored: errored,
		byID:    make(map[string]*Trace),
		stop:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.cleanupLoop()
	return t, nil
}

// Span is the handle returned by Start, used to append events and close
// out a trace.
type Span struct {
	t       *Tracer
	ctx     context.Context
	otel    oteltrace.Span
	traceID string
}

// Start opens a trace for op, minting an id and recording a start event.
func (t *Tracer) Start(ctx context.Context, op string) (context.Context, *Span) {
	ctx, span := t.otel.Start(ctx, op)

	id := idgen.New(idgen.PrefixTrace)
	now := time.Now()
	rec := &Trace{
		ID:     id,
		Op:     op,
		Start:  now,
		Events: []Event{{Kind: EventStart, Name: op, At: now}},
	}

	t.mu.Lock()
	t.traces = append(t.traces, rec)
	t.byID[id] = rec
	t.evictLocked()
	t.mu.Unlock()

	t.started.Add(ctx, 1)

	return ctx, &Span{t: t, ctx: ctx, otel: span, traceID: id}
}

// Event appends a mid-trace marker, dropped once MaxEventsPerTrace is
// reached rather than growing a single trace unbounded.
func (s *Span) Event(name string) {
	s.t.mu.Lock()
	if rec, ok := s.t.byID[s.traceID]; ok && len(rec.Events) < s.t.cfg.MaxEventsPerTrace {
		rec.Events = append(rec.Events, Event{Kind: EventMark, Name: name, At: time.Now()})
	}
	s.t.mu.Unlock()
}

// End closes the trace, recording err (if any) on both the otel span and
// the in-memory record.
func (s *Span) End(err error) {
	now := time.Now()
	kind := EventEnd
	if err != nil {
		kind = EventError
		s.otel.RecordError(err)
		s.otel.SetStatus(codes.Error, err.Error())
		s.t.errored.Add(s.ctx, 1)
	}
	s.otel.End()

	s.t.mu.Lock()
	if rec, ok := s.t.byID[s.traceID]; ok {
		rec.End = now
		rec.Err = err
		if len(rec.Events) < s.t.cfg.MaxEventsPerTrace {
			rec.Events = append(rec.Events, Event{Kind: kind, At: now})
		}
	}
	s.t.mu.Unlock()
}

// evictLocked drops the oldest traces beyond cfg.MaxTraces. Must be
// called with t.mu held.
func (t *Tracer) evictLocked() {
	for len(t.traces) > t.cfg.MaxTraces {
		oldest := t.traces[0]
		t.traces = t.traces[1:]
		delete(t.byID, oldest.ID)
	}
}

// Summary computes aggregate statistics over retained traces. If op is
// non-empty, only traces for that operation are considered.
func (t *Tracer) Summary(op string) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sum Summary
	var totalDuration time.Duration
	for _, rec := range t.traces {
		if op != "" && rec.Op != op {
			continue
		}
		if rec.End.IsZero() {
			continue
		}
		sum.Count++
		totalDuration += rec.Duration()
		if rec.Err != nil {
			sum.ErrorCount++
		}
	}
	if sum.Count > 0 {
		sum.AvgDuration = totalDuration / time.Duration(sum.Count)
		sum.ErrorRate = float64(sum.ErrorCount) / float64(sum.Count)
	}
	return sum
}

// Trace returns the retained record for id, or nil if it has been
// evicted or never existed.
func (t *Tracer) Trace(id string) *Trace {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}

// cleanupLoop runs on its own goroutine for the Tracer's lifetime,
// evicting traces past cfg.TraceRetention every cfg.CleanupInterval
// (mirrors the cache package's pressure-monitor loop).
func (t *Tracer) cleanupLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.evictExpired()
		}
	}
}

func (t *Tracer) evictExpired() {
	cutoff := time.Now().Add(-t.cfg.TraceRetention)
	t.mu.Lock()
	kept := t.traces[:0]
	for _, rec := range t.traces {
		if rec.Start.Before(cutoff) {
			delete(t.byID, rec.ID)
			continue
		}
		kept = append(kept, rec)
	}
	t.traces = kept
	t.mu.Unlock()
}

// Close stops the cleanup loop and shuts down the underlying
// TracerProvider, flushing any buffered spans.
func (t *Tracer) Close(ctx context.Context) error {
	close(t.stop)
	t.wg.Wait()
	if err := t.tp.Shutdown(ctx); err != nil {
		return err
	}
	return t.mp.Shutdown(ctx)
}
