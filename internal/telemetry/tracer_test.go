package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProvider_Disabled(t *testing.T) {
	cfg := Config{
		Enabled:      false,
		ServiceName:  "test-service",
		ExporterType: "grpc",
	}

	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if provider.tp != nil {
		t.Error("Expected noop provider (tp == nil)")
	}

	// Verify global tracer is noop
	tracer := otel.Tracer("test")
	_, span := tracer.Start(context.Background(), "noop-check")
	if span.IsRecording() {
		t.Error("Expected noop tracer span to be non-recording")
	}
	span.End()
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	cfg := Config{
		Enabled:      true,
		ServiceName:  "test-service",
		ExporterType: "invalid",
	}

	_, err := NewProvider(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for invalid exporter type")
	}

	expectedMsg := "unsupported exporter type: invalid (supported: grpc, http)"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestProvider_ShutdownNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// Shutdown on a noop provider must be a safe no-op.
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected nil shutdown error, got: %v", err)
	}
}

func TestTracer_ReturnsNamedTracer(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	tracer := Tracer("comoe.relay")
	if tracer == nil {
		t.Fatal("Expected non-nil tracer")
	}

	_, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	if span == nil {
		t.Fatal("Expected non-nil span")
	}
}
