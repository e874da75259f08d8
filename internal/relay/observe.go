package relay

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Elghamazy/comoe/internal/telemetry"
)

// Outcome values of the comoe_relay_outcome_total counter.
const (
	outcomeDone         = "done"
	outcomeFailed       = "failed"
	outcomeDisconnected = "disconnected"
)

// emitOutcome records the terminal result of a request on the active span
// and the global meter. The provider is looked up per call, so tests and
// late telemetry wiring observe the provider that is installed now, not the
// one present at package init. With no provider installed both paths are
// noops.
func emitOutcome(ctx context.Context, rq *request) {
	outcome := outcomeDone
	switch {
	case rq.disconnected.Load():
		outcome = outcomeDisconnected
	case rq.err != nil:
		outcome = outcomeFailed
	}

	meter := otel.GetMeterProvider().Meter("comoe.relay")
	counter, err := meter.Int64Counter("comoe_relay_outcome_total",
		metric.WithDescription("Terminal relay request outcomes"))
	if err == nil {
		attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
		if rq.err != nil {
			attrs = append(attrs, attribute.String("kind", rq.err.Kind))
		}
		counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.RelayAttributes(rq.stage, rq.filename, rq.bytesOut)...)
	span.SetAttributes(telemetry.SourceAttributes(rq.sourceHost, rq.probe.ContentType, rq.probe.ContentLength)...)
	if rq.err != nil {
		span.SetAttributes(telemetry.ErrorAttributes(rq.err.Kind)...)
	}
}
