package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/kubilitics/kubilitics-knative/internal/pkg/tracing"
)

const TraceIDHeader = "X-Trace-ID"

// Tracing starts a server span per request, continuing any incoming
// traceparent, and echoes the trace id in X-Trace-ID.
func Tracing(next http.Handler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if traceID := tracing.TraceIDFromContext(r.Context()); traceID != "" {
			w.Header().Set(TraceIDHeader, traceID)
		}
		next.ServeHTTP(w, r)
	})
	return otelhttp.NewHandler(inner, "http.request",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeTemplate(r)
		}),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
	)
}
