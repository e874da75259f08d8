package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// OTelHTTP wraps the handler with OpenTelemetry HTTP instrumentation. The
// tracer provider is looked up through the global, so the middleware can be
// built before telemetry is wired. Health and metrics endpoints are
// filtered out to keep traces about actual relay work.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanName),
		)
	}
}

func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/health", "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

// spanName labels spans "HTTP GET /compress"; the query string is dropped
// because source URLs may carry access tokens.
func spanName(operation string, r *http.Request) string {
	return operation + " " + r.URL.Path
}
