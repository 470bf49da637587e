package observe

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// responseMeta captures what the downstream handler wrote: the status code
// and the payload size, both of which feed the completion log.
type responseMeta struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseMeta) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseMeta) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// idRoutes are the kiosk routes whose final path segment is a per-request
// identifier (a cached TTS clip, a paid order).
var idRoutes = []string{
	"/api/voice/tts/",
	"/api/payment/progress/",
}

// routeLabel collapses the identifier segment of the kiosk API paths so the
// request histogram keeps one series per route, not one per clip or order.
func routeLabel(path string) string {
	for _, prefix := range idRoutes {
		if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" {
			return prefix + "{id}"
		}
	}
	return path
}

// Middleware wraps the kiosk routes with tracing and request metrics. W3C
// trace context is extracted from the terminal's headers when a gateway
// already started a trace, and the trace ID is echoed back as
// X-Correlation-ID so a terminal can quote it when reporting a failed order.
// The request histogram is recorded under the collapsed route label together
// with the response status.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeLabel(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			meta := &responseMeta{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(meta, r.WithContext(ctx))

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", route),
					attribute.Int("status", meta.status),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(meta.status))

			slog.LogAttrs(ctx, slog.LevelInfo, "request completed",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", meta.status),
				slog.Int("response_bytes", meta.bytes),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
