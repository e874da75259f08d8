package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EngineSpawns counts transcoding engine processes started.
	EngineSpawns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comoe_engine_spawns_total",
		Help: "Total transcoding engine processes spawned",
	})

	// EngineExits counts engine terminations by class: ok, error, killed.
	EngineExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comoe_engine_exit_total",
		Help: "Total engine exits by class",
	}, []string{"class"})

	// EngineKills counts forced terminations by trigger reason.
	EngineKills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comoe_engine_kills_total",
		Help: "Total forced engine terminations by reason",
	}, []string{"reason"})

	// engineSignals tracks signal delivery outcomes during teardown. ESRCH
	// means the process was already gone, which is a success for cleanup.
	engineSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comoe_engine_signal_total",
		Help: "Total signals sent to engine process groups by outcome",
	}, []string{"signal", "result"})

	// engineWaits tracks how engine processes were reaped.
	engineWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comoe_engine_wait_total",
		Help: "Total engine reap outcomes",
	}, []string{"outcome"})
)

// Exit classes for IncEngineExit.
const (
	ExitClassOK     = "ok"
	ExitClassError  = "error"
	ExitClassKilled = "killed"
)

// Kill reasons for IncEngineKill.
const (
	KillReasonDisconnect  = "client_disconnect"
	KillReasonSourceError = "source_error"
	KillReasonCleanup     = "cleanup"
)

// IncEngineSpawn records a spawned engine process.
func IncEngineSpawn() {
	EngineSpawns.Inc()
}

// IncEngineExit records an engine termination by class.
func IncEngineExit(class string) {
	EngineExits.WithLabelValues(class).Inc()
}

// IncEngineKill records a forced termination by reason.
func IncEngineKill(reason string) {
	EngineKills.WithLabelValues(reason).Inc()
}

// IncEngineSignal records a signal delivery outcome.
func IncEngineSignal(signal, result string) {
	engineSignals.WithLabelValues(signal, result).Inc()
}

// IncEngineWait records how an engine process was reaped.
func IncEngineWait(outcome string) {
	engineWaits.WithLabelValues(outcome).Inc()
}

// AddBytesIn records source bytes fed into the engine.
func AddBytesIn(n int64) {
	if n > 0 {
		BytesIn.Add(float64(n))
	}
}

// AddBytesOut records transcoded bytes forwarded to a client.
func AddBytesOut(n int64) {
	if n > 0 {
		BytesOut.Add(float64(n))
	}
}
