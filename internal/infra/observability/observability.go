// Package observability provides metrics and tracing for the carbon core.
//
// This provides:
//   - Trace spans for the settlement lifecycle (resolve → validate → apply → mark)
//   - Prometheus metrics for ledger mutations, settlements, and registry calls
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans — lightweight span tracking without an external OTel dependency
// ═══════════════════════════════════════════════════════════════════════════

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Span represents a unit of work within one reconciliation.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Tracer records settlement spans in an in-memory ring buffer for
// inspection and export.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a new span with the given operation name.
// Returns the span (caller must call EndSpan when done).
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if t == nil || !t.enabled {
		return &Span{Operation: operation}
	}

	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}

	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "carbon-trace-id"
	spanIDKey  contextKey = "carbon-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// generateID creates a short unique ID (not cryptographically secure — fine for tracing).
var spanCounter atomic.Int64

func generateID() string {
	n := spanCounter.Add(1)
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), n)
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerMutations counts ledger state transitions by kind.
var LedgerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "carbon",
	Subsystem: "ledger",
	Name:      "mutations_total",
	Help:      "Total ledger state transitions by kind (credit, debit, mint, transfer).",
}, []string{"kind"})

// LedgerRejections counts rejected mutating calls by reason.
var LedgerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "carbon",
	Subsystem: "ledger",
	Name:      "rejections_total",
	Help:      "Total rejected ledger calls by reason.",
}, []string{"reason"})

// CreditsMinted counts total credits minted onto the ledger.
var CreditsMinted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "carbon",
	Subsystem: "ledger",
	Name:      "credits_minted_total",
	Help:      "Total carbon credits minted, in tons CO2.",
})

// DebtRecorded counts total debt recorded onto the ledger.
var DebtRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "carbon",
	Subsystem: "ledger",
	Name:      "debt_recorded_total",
	Help:      "Total carbon debt recorded, in tons CO2.",
})

// ─── Settlement Metrics ─────────────────────────────────────────────────────

// Settlements counts settlement attempts by path and outcome.
var Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "carbon",
	Subsystem: "oracle",
	Name:      "settlements_total",
	Help:      "Total settlement attempts by path (project, period) and outcome.",
}, []string{"path", "outcome"})

// SettlementDuration tracks end-to-end settlement latency.
var SettlementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "carbon",
	Subsystem: "oracle",
	Name:      "settlement_duration_seconds",
	Help:      "End-to-end settlement latency in seconds.",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
}, []string{"path"})

// MarkUsedFailures counts failed best-effort registry mark-used calls.
var MarkUsedFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "carbon",
	Subsystem: "oracle",
	Name:      "mark_used_failures_total",
	Help:      "Failed best-effort mark-used calls needing manual registry repair.",
})

// ─── Registry Metrics ───────────────────────────────────────────────────────

// RegistryRequests counts outbound registry lookups by registry and outcome.
var RegistryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "carbon",
	Subsystem: "registry",
	Name:      "requests_total",
	Help:      "Total registry requests by registry (account, emission, project) and outcome.",
}, []string{"registry", "outcome"})
