// Package relay implements the compress request end to end: probe the
// source, open its byte stream, pipe it through the transcoding engine, and
// forward the produced MP4 to the client as it is encoded.
//
// One goroutine owns each request; the engine process is the only real
// parallelism. The request advances through a small state machine and every
// terminal transition, success or failure, converges on killing the engine.
// Nothing is shared between requests and nothing is retried: this is a
// one-shot relay, not a job system.
package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Elghamazy/comoe/internal/fetch"
	"github.com/Elghamazy/comoe/internal/log"
	"github.com/Elghamazy/comoe/internal/medianame"
	"github.com/Elghamazy/comoe/internal/metrics"
	"github.com/Elghamazy/comoe/internal/transcode"
)

// Stage labels, in transition order. They feed the relay_stage_total metric
// and the state-change logs.
const (
	StageIdle        = "idle"
	StageProbing     = "probing"
	StageFetching    = "fetching"
	StageTranscoding = "transcoding"
	StageStreaming   = "streaming"
	StageDone        = "done"
	StageFailed      = "failed"
)

// forwardBufferSize is the chunk size for copying engine output to the
// client. Each chunk is flushed so playback can start immediately.
const forwardBufferSize = 64 * 1024

// Options is the hot-reloadable slice of relay behavior. It is snapshotted
// once per request through the options callback.
type Options struct {
	// EstimateRatio scales the probed source size into X-Estimated-Size.
	EstimateRatio float64
	// ReportDir receives engine failure reports; empty disables them.
	ReportDir string
}

// Controller handles GET /compress. It holds no per-request state: every
// field is immutable after construction, so one Controller serves all
// requests concurrently.
type Controller struct {
	fetcher  *fetch.Client
	pipeline *transcode.Pipeline
	options  func() Options
	logger   zerolog.Logger
}

// New builds a Controller. The options callback is invoked once per request,
// so reloaded values take effect without a restart.
func New(fetcher *fetch.Client, pipeline *transcode.Pipeline, options func() Options) *Controller {
	if options == nil {
		options = func() Options { return Options{EstimateRatio: 0.45} }
	}
	return &Controller{
		fetcher:  fetcher,
		pipeline: pipeline,
		options:  options,
		logger:   log.WithComponent("relay"),
	}
}

// request is the mutable state of one compress request. Only disconnected
// and stream cross goroutines (the disconnect watcher); everything else is
// touched solely by the request goroutine.
type request struct {
	ctrl   *Controller
	opts   Options
	logger zerolog.Logger

	w http.ResponseWriter
	r *http.Request

	stage       string
	headersSent bool
	abort       bool
	started     time.Time

	filename   string
	sourceHost string
	probe      fetch.ProbeResult
	bytesOut   int64

	disconnected atomic.Bool
	stream       atomic.Pointer[transcode.Stream]

	err *Error
}

// ServeHTTP runs the relay state machine for one request.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	rq := &request{
		ctrl:    c,
		opts:    c.options(),
		logger:  log.WithContext(r.Context(), c.logger),
		w:       w,
		r:       r,
		stage:   StageIdle,
		started: time.Now(),
	}

	// Disconnect watcher: the request context ends the moment the client
	// goes away, and the engine should die with it rather than encode for
	// nobody. The stop below disarms the watcher on normal completion,
	// before net/http cancels the context at handler return.
	stop := context.AfterFunc(r.Context(), func() {
		rq.disconnected.Store(true)
		metrics.IncClientDisconnect()
		rq.logger.Debug().
			Str("event", "relay.client_disconnected").
			Msg("client went away, killing engine")
		if s := rq.stream.Load(); s != nil {
			s.Kill()
		}
	})
	defer stop()

	rq.run()
	emitOutcome(r.Context(), rq)

	// A post-header failure cannot change the status code anymore. Abort
	// the connection instead so the client sees a torn transfer, not a
	// cleanly terminated short file.
	if rq.abort {
		panic(http.ErrAbortHandler)
	}
}

func (rq *request) run() {
	rawURL := rq.r.URL.Query().Get("url")
	if rawURL == "" {
		rq.fail("relay.missing_url", ClientInput("missing required query parameter: url"))
		return
	}
	rq.sourceHost = hostOf(rawURL)
	rq.logger.Info().
		Str("event", "relay.request").
		Str(log.FieldSourceHost, rq.sourceHost).
		Msg("compress request accepted")
	rq.logger.Debug().
		Str("event", "relay.source").
		Str(log.FieldSourceURL, rawURL).
		Msg("source url")

	rq.transition(StageProbing)
	probe, err := rq.ctrl.fetcher.Probe(rq.r.Context(), rawURL)
	if err != nil {
		rq.fail("relay.probe_failed", UpstreamFetch(err))
		return
	}
	rq.probe = probe
	rq.filename = medianame.Resolve(probe.Disposition, rawURL)

	rq.transition(StageFetching)
	body, opened, err := rq.ctrl.fetcher.Open(rq.r.Context(), rawURL)
	if err != nil {
		rq.fail("relay.open_failed", UpstreamFetch(err))
		return
	}
	// HEAD responses sometimes omit the length the GET then reports.
	if rq.probe.ContentLength < 0 && opened.ContentLength >= 0 {
		rq.probe.ContentLength = opened.ContentLength
	}

	// The stream takes ownership of body and closes it during teardown.
	stream, err := rq.ctrl.pipeline.Start(rq.r.Context(), body)
	if err != nil {
		_ = body.Close()
		rq.fail("relay.engine_start_failed", Engine(err))
		return
	}
	rq.stream.Store(stream)
	// The watcher may have fired between Start and Store and seen nil.
	if rq.disconnected.Load() {
		stream.Kill()
	}

	rq.transition(StageTranscoding)
	rq.writeHeaders()

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		rq.consumeEvents(stream.Events())
	}()

	writeErr := rq.forward(stream.Output())

	// Kill must precede Wait on every abnormal path; Wait blocks until the
	// process is gone.
	if writeErr != nil || rq.disconnected.Load() {
		stream.Kill()
	}
	waitErr := stream.Wait()
	<-eventsDone

	inputErr := stream.InputError()
	switch {
	case rq.disconnected.Load() || IsExpectedDisconnect(writeErr):
		rq.finishDisconnected(waitErr)
	case writeErr != nil:
		rq.fail("relay.stream_write_failed", StreamTransport(writeErr))
	case inputErr != nil:
		rq.fail("relay.source_failed", StreamTransport(inputErr))
	case waitErr != nil:
		rq.fail("relay.engine_failed", Engine(waitErr))
		rq.writeReport(waitErr)
	default:
		rq.finish()
	}
}

// transition advances the state machine.
func (rq *request) transition(next string) {
	prev := rq.stage
	rq.stage = next
	metrics.IncRelayStage(next)
	rq.logger.Debug().
		Str("event", "relay.state").
		Str(log.FieldOldState, prev).
		Str(log.FieldNewState, next).
		Msg("state transition")
}

// writeHeaders emits the response headers exactly once, before any body
// byte. After this the status code is frozen at 200.
func (rq *request) writeHeaders() {
	h := rq.w.Header()
	h.Set("Content-Type", "video/mp4")
	h.Set("Content-Disposition", `attachment; filename="compressed_`+rq.filename+`"`)
	if rq.probe.ContentLength >= 0 {
		h.Set("X-Original-Size", strconv.FormatInt(rq.probe.ContentLength, 10))
		if est := rq.estimatedSize(); est > 0 {
			h.Set("X-Estimated-Size", strconv.FormatInt(est, 10))
		}
	}
	rq.w.WriteHeader(http.StatusOK)
	rq.headersSent = true
}

// estimatedSize projects the compressed output size from the source size.
// Zero means no usable estimate.
func (rq *request) estimatedSize() int64 {
	if rq.opts.EstimateRatio <= 0 || rq.probe.ContentLength <= 0 {
		return 0
	}
	return int64(float64(rq.probe.ContentLength) * rq.opts.EstimateRatio)
}

// forward copies engine output to the client chunk by chunk, flushing after
// each write. The first forwarded byte marks the streaming transition.
// Returns nil once the engine output drains, or the first write/read error.
func (rq *request) forward(out io.Reader) error {
	flusher, _ := rq.w.(http.Flusher)
	buf := make([]byte, forwardBufferSize)
	for {
		n, rerr := out.Read(buf)
		if n > 0 {
			if rq.stage != StageStreaming {
				rq.transition(StageStreaming)
			}
			wn, werr := rq.w.Write(buf[:n])
			rq.bytesOut += int64(wn)
			metrics.AddBytesOut(int64(wn))
			if werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerr
		}
	}
}

// consumeEvents drains the engine lifecycle channel, surfacing progress in
// the request log. Runs until the channel closes in Stream.Wait.
func (rq *request) consumeEvents(events <-chan transcode.Event) {
	for ev := range events {
		switch e := ev.(type) {
		case transcode.Started:
			rq.logger.Debug().
				Str("event", "relay.engine_start").
				Strs("args", e.Args).
				Msg("engine invocation started")
		case transcode.Progress:
			rq.logger.Debug().
				Str("event", "relay.engine_progress").
				Int("frame", e.Frame).
				Float64("fps", e.Fps).
				Int64("out_time_us", e.OutTimeUs).
				Int64("total_size", e.TotalSize).
				Str("speed", e.Speed).
				Msg("engine progress")
		case transcode.End:
		}
	}
}

// finish is the success terminal: engine ended and all bytes are flushed.
func (rq *request) finish() {
	rq.transition(StageDone)
	rq.logger.Info().
		Str("event", "relay.done").
		Str(log.FieldFilename, rq.filename).
		Int64(log.FieldBytesOut, rq.bytesOut).
		Dur("duration", time.Since(rq.started)).
		Msg("relay completed")
}

// finishDisconnected is the terminal for a client that went away. The
// engine error produced by our own kill is expected noise and is logged at
// debug, not surfaced as a failure.
func (rq *request) finishDisconnected(waitErr error) {
	rq.disconnected.Store(true)
	rq.transition(StageFailed)
	rq.logger.Debug().
		Err(waitErr).
		Str("event", "relay.disconnected").
		Int64(log.FieldBytesOut, rq.bytesOut).
		Dur("duration", time.Since(rq.started)).
		Msg("relay aborted by client disconnect")
}

// fail is the failure terminal: classify, kill whatever engine is running,
// and answer the client if headers still allow it.
func (rq *request) fail(event string, e *Error) {
	rq.err = e
	rq.transition(StageFailed)
	metrics.IncRelayError(e.Kind)

	if s := rq.stream.Load(); s != nil {
		s.Kill()
	}

	ev := rq.logger.Error()
	if IsExpectedDisconnect(e.Err) {
		ev = rq.logger.Debug()
	}
	ev.Err(e.Err).
		Str("event", event).
		Str("kind", e.Kind).
		Msg(e.Message)

	if rq.headersSent {
		rq.abort = true
		return
	}
	rq.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rq.w.WriteHeader(e.Status)
	_, _ = io.WriteString(rq.w, e.Message+"\n")
}

// writeReport persists an engine failure report when a report directory is
// configured. Best effort: a failed write never affects the response.
func (rq *request) writeReport(waitErr error) {
	if rq.opts.ReportDir == "" {
		return
	}
	var ee *transcode.EngineError
	if !errors.As(waitErr, &ee) {
		return
	}
	s := rq.stream.Load()
	if s == nil {
		return
	}
	id := log.RequestIDFromContext(rq.r.Context())
	if err := transcode.WriteFailureReport(rq.opts.ReportDir, id, s.Args(), ee.ExitCode, ee.Stderr); err != nil {
		rq.logger.Warn().
			Err(err).
			Str("event", "relay.report_failed").
			Msg("engine failure report not written")
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
