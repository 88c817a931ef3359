package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mrops-br/shopfront/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RoutePattern returns the chi route pattern matched by r, or the raw path
// before routing has happened
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// HTTPRouteContext adds the HTTP route pattern to the request context so
// every log line written while handling the request carries http.route.
// Register it inside the router (r.With or a route group) so the pattern
// is known.
func HTTPRouteContext() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := telemetry.WithHTTPRoute(r.Context(), RoutePattern(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestMetrics tracks in-flight requests and records request duration in
// milliseconds, both labelled with the matched route. The route is only
// known once chi has routed the request, so in-flight accounting starts at
// the first write.
func RequestMetrics(meter metric.Meter) func(next http.Handler) http.Handler {
	activeRequests, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP server requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return passThrough
	}

	duration, err := meter.Float64Histogram(
		"http.server.request.duration.ms",
		metric.WithDescription("HTTP server request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return passThrough
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &inFlightWriter{
				WrapResponseWriter: middleware.NewWrapResponseWriter(w, r.ProtoMajor),
				request:            r,
				active:             activeRequests,
			}

			next.ServeHTTP(ww, r)

			attrs := ww.attributes()
			if ww.counted {
				activeRequests.Add(r.Context(), -1, metric.WithAttributes(attrs...))
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration.Record(r.Context(), float64(time.Since(start).Milliseconds()),
				metric.WithAttributes(append(attrs, attribute.Int("http.response.status_code", status))...),
			)
		})
	}
}

func passThrough(next http.Handler) http.Handler {
	return next
}

type inFlightWriter struct {
	middleware.WrapResponseWriter
	request *http.Request
	active  metric.Int64UpDownCounter
	counted bool
	attrs   []attribute.KeyValue
}

func (w *inFlightWriter) WriteHeader(statusCode int) {
	w.begin()
	w.WrapResponseWriter.WriteHeader(statusCode)
}

func (w *inFlightWriter) Write(b []byte) (int, error) {
	w.begin()
	return w.WrapResponseWriter.Write(b)
}

func (w *inFlightWriter) begin() {
	if w.counted {
		return
	}
	w.counted = true
	w.active.Add(w.request.Context(), 1, metric.WithAttributes(w.attributes()...))
}

// attributes are computed once so the increment and decrement match
func (w *inFlightWriter) attributes() []attribute.KeyValue {
	if w.attrs == nil {
		w.attrs = []attribute.KeyValue{
			attribute.String("http.request.method", w.request.Method),
			attribute.String("http.route", RoutePattern(w.request)),
			attribute.String("server.address", w.request.Host),
		}
	}
	return w.attrs
}

// StructuredLogger creates a structured JSON logging middleware that
// replaces chi's default logger
func StructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []any{
				slog.String("http.request.method", r.Method),
				slog.String("http.route", RoutePattern(r)),
				slog.String("url.path", r.URL.Path),
				slog.String("url.query", r.URL.RawQuery),
				slog.Int("http.response.status_code", status),
				slog.Int("http.response.body.size", ww.BytesWritten()),
				slog.String("duration", duration.String()),
				slog.Float64("duration_ms", float64(duration.Milliseconds())),
				slog.String("client.address", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			}

			if spanCtx := trace.SpanContextFromContext(r.Context()); spanCtx.IsValid() {
				attrs = append(attrs,
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				)
			}

			logLevel := slog.LevelInfo
			if status >= 500 {
				logLevel = slog.LevelError
			} else if status >= 400 {
				logLevel = slog.LevelWarn
			}

			logger.Log(r.Context(), logLevel, "HTTP request completed", attrs...)
		})
	}
}
