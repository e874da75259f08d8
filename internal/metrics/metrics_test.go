package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestIncRequest(t *testing.T) {
	before := counterValue(t, RequestsTotal.WithLabelValues("/compress", "200"))
	IncRequest("/compress", 200)
	IncRequest("/compress", 200)
	after := counterValue(t, RequestsTotal.WithLabelValues("/compress", "200"))
	assert.Equal(t, before+2, after)
}

func TestIncRelayStageAndError(t *testing.T) {
	before := counterValue(t, RelayStageTotal.WithLabelValues("probing"))
	IncRelayStage("probing")
	assert.Equal(t, before+1, counterValue(t, RelayStageTotal.WithLabelValues("probing")))

	before = counterValue(t, RelayErrorsTotal.WithLabelValues("upstream_fetch"))
	IncRelayError("upstream_fetch")
	assert.Equal(t, before+1, counterValue(t, RelayErrorsTotal.WithLabelValues("upstream_fetch")))
}

func TestActiveStreamsGauge(t *testing.T) {
	base := gaugeValue(t, ActiveStreams)
	ActiveStreams.Inc()
	assert.Equal(t, base+1, gaugeValue(t, ActiveStreams))
	ActiveStreams.Dec()
	assert.Equal(t, base, gaugeValue(t, ActiveStreams))
}

func TestByteCounters(t *testing.T) {
	inBefore := counterValue(t, BytesIn)
	outBefore := counterValue(t, BytesOut)

	AddBytesIn(1024)
	AddBytesOut(512)
	// Negative and zero deltas are ignored, not panics.
	AddBytesIn(-5)
	AddBytesOut(0)

	assert.Equal(t, inBefore+1024, counterValue(t, BytesIn))
	assert.Equal(t, outBefore+512, counterValue(t, BytesOut))
}

func TestEngineLifecycleCounters(t *testing.T) {
	spawns := counterValue(t, EngineSpawns)
	IncEngineSpawn()
	assert.Equal(t, spawns+1, counterValue(t, EngineSpawns))

	exits := counterValue(t, EngineExits.WithLabelValues(ExitClassKilled))
	IncEngineExit(ExitClassKilled)
	assert.Equal(t, exits+1, counterValue(t, EngineExits.WithLabelValues(ExitClassKilled)))

	kills := counterValue(t, EngineKills.WithLabelValues(KillReasonDisconnect))
	IncEngineKill(KillReasonDisconnect)
	assert.Equal(t, kills+1, counterValue(t, EngineKills.WithLabelValues(KillReasonDisconnect)))

	sigs := counterValue(t, engineSignals.WithLabelValues("SIGTERM", "sent"))
	IncEngineSignal("SIGTERM", "sent")
	assert.Equal(t, sigs+1, counterValue(t, engineSignals.WithLabelValues("SIGTERM", "sent")))

	waits := counterValue(t, engineWaits.WithLabelValues("exit0"))
	IncEngineWait("exit0")
	assert.Equal(t, waits+1, counterValue(t, engineWaits.WithLabelValues("exit0")))
}

func TestObserveDurations(t *testing.T) {
	// Histograms have no simple value accessor; exercising them guards
	// against label mistakes that would panic at observe time.
	ObserveRequestDuration("/compress", 125*time.Millisecond)
	ObserveProbeDuration(40 * time.Millisecond)
	IncClientDisconnect()
}

func TestCollectorsRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	want := map[string]bool{
		"comoe_http_requests_total":    false,
		"comoe_relay_stage_total":      false,
		"comoe_relay_errors_total":     false,
		"comoe_relay_active_streams":   false,
		"comoe_relay_bytes_in_total":   false,
		"comoe_relay_bytes_out_total":  false,
		"comoe_engine_spawns_total":    false,
		"comoe_engine_exit_total":      false,
		"comoe_engine_kills_total":     false,
		"comoe_probe_duration_seconds": false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		assert.True(t, seen, "collector %s not registered with default registry", name)
	}
}
