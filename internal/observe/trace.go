package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the kiosk tracer.
const tracerName = "github.com/hanmaum-labs/voicekiosk"

// Tracer returns the kiosk [trace.Tracer] from the globally registered
// provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartStage starts a child span for one voice-pipeline stage ("stt", "llm",
// "tts"). The span is named "voice.<stage>" and tagged so stage latency can
// be broken out per trace.
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "voice."+stage,
		trace.WithAttributes(attribute.String("kiosk.stage", stage)),
	)
}

// TagSession attaches the kiosk session and request identifiers to the span
// in ctx, so a trace can be joined against the wire response and the
// monitoring endpoints.
func TagSession(ctx context.Context, sessionID, requestID string) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("kiosk.session_id", sessionID),
		attribute.String("kiosk.request_id", requestID),
	)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
// The trace ID doubles as the per-request correlation identifier surfaced in
// logs and the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx. When no active span is present, the returned
// logger is the default slog logger without extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
