// Package telemetry defines the ambient logging, metrics, and tracing
// contracts every runtime component depends on, plus an Observability
// helper that turns a single OperationEvent into a log line, a set of
// metrics, and a trace span in one call.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the structured logging contract components take a dependency
// on instead of calling a global logger directly.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics is the metrics-recording contract.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, d time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Span is the subset of an OpenTelemetry span components interact with.
type Span interface {
	End(...trace.SpanEndOption)
	AddEvent(string, ...any)
	SetStatus(codes.Code, string)
	RecordError(error, ...trace.EventOption)
}

// Tracer starts Spans.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
}

// OperationOutcome classifies how an operation concluded.
type OperationOutcome string

const (
	OutcomeSuccess  OperationOutcome = "success"
	OutcomeError    OperationOutcome = "error"
	OutcomeCacheHit OperationOutcome = "cache_hit"
	OutcomeFallback OperationOutcome = "fallback"
)

// OperationEvent is a structured record of one component operation,
// shared across packages (skills, memory, perception, orchestrator) so
// they all log/trace/metric the same shape.
type OperationEvent struct {
	Component   string
	Operation   string
	Query       string
	Duration    time.Duration
	Outcome     OperationOutcome
	Error       string
	ResultCount int
}

// Observability bundles a Logger, Metrics, and Tracer behind the three
// calls most operations need: StartSpan, LogOperation, EndSpan.
type Observability struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// New builds an Observability, substituting no-op implementations for
// any nil argument.
func New(logger Logger, metrics Metrics, tracer Tracer) *Observability {
	if logger == nil {
		logger = NoopLogger{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if tracer == nil {
		tracer = NoopTracer{}
	}
	return &Observability{Logger: logger, Metrics: metrics, Tracer: tracer}
}

// StartSpan starts an internal-kind span named "<component>.<operation>".
func (o *Observability) StartSpan(ctx context.Context, component, operation string, attrs ...attribute.KeyValue) (context.Context, Span) {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	}
	return o.Tracer.Start(ctx, component+"."+operation, opts...)
}

// LogOperation emits one structured log line and the matching counters
// for an OperationEvent.
func (o *Observability) LogOperation(ctx context.Context, event OperationEvent) {
	keyvals := []any{
		"component", event.Component,
		"operation", event.Operation,
		"outcome", string(event.Outcome),
		"duration_ms", event.Duration.Milliseconds(),
	}
	if event.Query != "" {
		keyvals = append(keyvals, "query", event.Query)
	}
	if event.ResultCount > 0 {
		keyvals = append(keyvals, "result_count", event.ResultCount)
	}
	if event.Error != "" {
		keyvals = append(keyvals, "error", event.Error)
	}

	tags := []string{"component", event.Component, "operation", event.Operation, "outcome", string(event.Outcome)}
	o.Metrics.RecordTimer(event.Component+".operation.duration", event.Duration, tags...)

	switch event.Outcome {
	case OutcomeError:
		o.Logger.Error(ctx, event.Component+" operation failed", keyvals...)
		o.Metrics.IncCounter(event.Component+".operation.error", 1, tags...)
	case OutcomeFallback:
		o.Logger.Warn(ctx, event.Component+" operation fell back", keyvals...)
		o.Metrics.IncCounter(event.Component+".operation.fallback", 1, tags...)
	default:
		o.Logger.Info(ctx, event.Component+" operation completed", keyvals...)
		o.Metrics.IncCounter(event.Component+".operation.success", 1, tags...)
	}
	if event.ResultCount > 0 {
		o.Metrics.RecordGauge(event.Component+".operation.result_count", float64(event.ResultCount), tags...)
	}
}

// EndSpan records the operation's outcome on span and ends it.
func (o *Observability) EndSpan(span Span, outcome OperationOutcome, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, string(outcome))
	}
	span.End()
}

// InjectTraceContext propagates the active trace context onto outbound
// HTTP headers, used by the (out-of-scope) external transport layer's
// internal calls into this process.
func InjectTraceContext(ctx context.Context, header http.Header) {
	if ctx == nil || header == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
