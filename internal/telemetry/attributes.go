// Package telemetry provides the OpenTelemetry tracing setup for the relay.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Relay attributes
	RelayStageKey     = "comoe.relay.stage"
	RelayErrorKindKey = "comoe.relay.error_kind"
	RelayFilenameKey  = "comoe.relay.filename"
	RelayBytesOutKey  = "comoe.relay.bytes_out"

	// Source attributes
	SourceHostKey          = "comoe.source.host"
	SourceContentTypeKey   = "comoe.source.content_type"
	SourceContentLengthKey = "comoe.source.content_length"

	// Engine attributes
	EngineExitClassKey = "comoe.engine.exit_class"
	EngineKilledKey    = "comoe.engine.killed"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SourceAttributes creates span attributes describing the probed source.
// Empty or unknown values are omitted to keep spans compact.
func SourceAttributes(host, contentType string, contentLength int64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if host != "" {
		attrs = append(attrs, attribute.String(SourceHostKey, host))
	}
	if contentType != "" {
		attrs = append(attrs, attribute.String(SourceContentTypeKey, contentType))
	}
	if contentLength > 0 {
		attrs = append(attrs, attribute.Int64(SourceContentLengthKey, contentLength))
	}
	return attrs
}

// RelayAttributes creates relay outcome span attributes.
func RelayAttributes(stage, filename string, bytesOut int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RelayStageKey, stage),
		attribute.String(RelayFilenameKey, filename),
		attribute.Int64(RelayBytesOutKey, bytesOut),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
