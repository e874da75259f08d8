// Package transcode spawns the media engine and supervises its three pipes.
// A Stream feeds source bytes into the engine's stdin, exposes the produced
// MP4 on Output, and reports lifecycle and progress through Events. Teardown
// is process-group based so nothing the engine forks survives a kill.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Elghamazy/comoe/internal/log"
	"github.com/Elghamazy/comoe/internal/metrics"
	"github.com/Elghamazy/comoe/internal/procgroup"
)

const (
	eventBuffer    = 64
	stderrTailMax  = 40
	minKillTimeout = time.Second
)

// Config holds the engine invocation settings. Built once at startup; the
// argument shape itself is fixed (see BuildArgs).
type Config struct {
	// BinaryPath locates the engine. Bare names resolve via PATH.
	BinaryPath string
	Params     Params
	// KillGrace is the SIGTERM-to-SIGKILL window.
	KillGrace time.Duration
	// KillTimeout bounds the whole kill operation.
	KillTimeout time.Duration
}

// Pipeline starts engine processes. Safe for concurrent use; each Start
// yields an independent Stream.
type Pipeline struct {
	cfg    Config
	logger zerolog.Logger
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 2 * time.Second
	}
	if cfg.KillTimeout <= cfg.KillGrace {
		cfg.KillTimeout = cfg.KillGrace + minKillTimeout
	}
	return &Pipeline{
		cfg:    cfg,
		logger: log.WithComponent("transcode"),
	}
}

// Stream is one running engine process plus the goroutines pumping its
// pipes. The zero value is not usable; obtain one from Pipeline.Start.
//
// Lifecycle contract: read Output until it ends, call Kill on every abort
// path, and always call Wait exactly once at the end. Wait only returns
// after the process is reaped, so on abort paths Kill must come first.
type Stream struct {
	cmd    *exec.Cmd
	args   []string
	logger zerolog.Logger
	ctx    context.Context

	output *os.File
	events chan Event
	tail   *tailBuffer

	grace       time.Duration
	killTimeout time.Duration

	closeInputOnce sync.Once
	inputClosing   atomic.Bool
	input          io.Reader

	inputMu  sync.Mutex
	inputErr error

	pumps sync.WaitGroup

	// exitErr is written by the reaper goroutine before exited closes;
	// waitCh carries the same error for procgroup.Terminate to consume.
	exitErr error
	exited  chan struct{}
	waitCh  chan error

	killOnce sync.Once
	waitOnce sync.Once
	waitErr  error
}

// Start spawns the engine reading from input. If input is an io.Closer the
// stream takes ownership and closes it during teardown. The returned Stream
// is live: Output is readable as soon as the engine emits bytes.
func (p *Pipeline) Start(ctx context.Context, input io.Reader) (*Stream, error) {
	bin := p.cfg.BinaryPath
	if strings.ContainsRune(bin, os.PathSeparator) {
		bin = filepath.Clean(bin)
	}
	args := BuildArgs(p.cfg.Params)

	// Manual pipes instead of cmd.StdinPipe and friends: cmd.Wait closes
	// the os/exec-managed pipes, which would race against the relay still
	// draining output. With our own pipes the read side simply sees EOF
	// once the child is gone.
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW)
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW, outR, outW)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	// #nosec G204 -- the binary path comes from operator configuration and
	// the argument vector is a fixed template.
	cmd := exec.Command(bin, args...)
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = errW
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(inR, inW, outR, outW, errR, errW)
		return nil, fmt.Errorf("start engine %q: %w", p.cfg.BinaryPath, err)
	}
	// The child holds its own descriptors now.
	closeAll(inR, outW, errW)

	logger := p.logger.With().Int("pid", cmd.Process.Pid).Logger()
	metrics.IncEngineSpawn()
	logger.Debug().
		Str("event", "transcode.engine_started").
		Strs("args", args).
		Msg("engine spawned")

	s := &Stream{
		cmd:         cmd,
		args:        args,
		logger:      logger,
		ctx:         ctx,
		output:      outR,
		events:      make(chan Event, eventBuffer),
		tail:        newTailBuffer(stderrTailMax),
		grace:       p.cfg.KillGrace,
		killTimeout: p.cfg.KillTimeout,
		input:       input,
		exited:      make(chan struct{}),
		waitCh:      make(chan error, 1),
	}
	s.trySend(Started{Args: args})

	// Reaper: the only cmd.Wait caller. Everyone else learns the outcome
	// through exited/waitCh.
	go func() {
		err := cmd.Wait()
		s.exitErr = err
		metrics.IncEngineExit(exitClass(err))
		close(s.exited)
		s.waitCh <- err
	}()

	s.pumps.Add(2)
	go s.pumpInput(inW)
	go s.scanStderr(errR)

	return s, nil
}

// Output is the engine's produced MP4 byte stream. It ends with io.EOF
// once the engine exits and the pipe drains.
func (s *Stream) Output() io.Reader { return s.output }

// Events delivers Started, Progress samples, then End, after which the
// channel is closed by Wait. Sends never block the pipeline: with no
// consumer draining, samples are dropped once the buffer fills.
func (s *Stream) Events() <-chan Event { return s.events }

// Args returns the argument vector the engine was spawned with.
func (s *Stream) Args() []string { return s.args }

// StderrTail returns the retained diagnostic lines. Complete only after
// Wait returned.
func (s *Stream) StderrTail() string { return s.tail.String() }

// InputError reports a source read failure observed by the stdin pump, nil
// otherwise.
func (s *Stream) InputError() error {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	return s.inputErr
}

// Kill force-terminates the engine process group: SIGTERM, bounded grace,
// SIGKILL. Idempotent, a no-op after natural exit, and never returns an
// error; a group that survives SIGKILL is logged and left to the reaper.
func (s *Stream) Kill() {
	s.killOnce.Do(func() {
		select {
		case <-s.exited:
			// Already gone; nothing to terminate.
			s.closeInput()
			return
		default:
		}

		metrics.IncEngineKill(s.killReason())
		s.closeInput()
		err := procgroup.Terminate(s.cmd, s.waitCh, s.grace, s.killTimeout)
		switch {
		case err == nil:
			s.logger.Debug().Str("event", "transcode.engine_killed").Msg("engine terminated cleanly")
		case errors.Is(err, procgroup.ErrKillFailed):
			s.logger.Warn().Str("event", "transcode.engine_kill_failed").
				Int("pid", s.cmd.Process.Pid).
				Msg("engine process group survived SIGKILL")
		default:
			// Nonzero exit after a kill is the expected shape.
			s.logger.Debug().Str("event", "transcode.engine_killed").
				Err(err).Msg("engine terminated")
		}
	})
}

// killReason attributes the kill for metrics. A canceled start context
// means the client went away; a recorded input error means the source died
// mid-transfer; anything else is relay teardown.
func (s *Stream) killReason() string {
	if s.ctx.Err() != nil {
		return metrics.KillReasonDisconnect
	}
	if s.InputError() != nil {
		return metrics.KillReasonSourceError
	}
	return metrics.KillReasonCleanup
}

// Wait blocks until the engine exited and both pump goroutines drained,
// closes the events channel, and returns nil for a clean exit or an
// *EngineError otherwise. Idempotent. On abort paths the caller must Kill
// first, or Wait blocks for the process's natural lifetime.
func (s *Stream) Wait() error {
	s.waitOnce.Do(func() {
		<-s.exited
		s.closeInput()
		s.pumps.Wait()
		_ = s.output.Close()

		s.trySend(End{})
		close(s.events)

		if s.exitErr != nil {
			s.waitErr = &EngineError{
				ExitCode: exitCode(s.exitErr),
				Stderr:   s.tail.String(),
				Err:      s.exitErr,
			}
		}
	})
	return s.waitErr
}

// pumpInput copies the source into the engine's stdin. A write failure
// means the engine stopped consuming, which is its story to tell via the
// exit code. A read failure is the source dying mid-transfer: it is
// recorded and the engine killed so the output visibly aborts instead of
// ending as a silently truncated file.
func (s *Stream) pumpInput(stdin *os.File) {
	defer s.pumps.Done()

	n, err := io.Copy(stdin, s.input)
	metrics.AddBytesIn(n)
	_ = stdin.Close()
	closing := s.inputClosing.Load()
	s.closeInput()

	// Errors caused by our own teardown close are not source failures.
	if err == nil || isClosedWrite(err) || closing {
		s.logger.Debug().
			Str("event", "transcode.input_done").
			Int64("bytes_in", n).
			Msg("source stream consumed")
		return
	}

	s.setInputErr(err)
	s.logger.Warn().
		Str("event", "transcode.source_read_failed").
		Err(err).
		Int64("bytes_in", n).
		Msg("source stream failed mid-transfer, killing engine")
	s.Kill()
}

func (s *Stream) scanStderr(stderr *os.File) {
	defer s.pumps.Done()
	defer stderr.Close()

	err := scanEngineOutput(stderr,
		func(p Progress) { s.trySend(p) },
		func(line string) {
			s.tail.add(line)
			s.logger.Debug().Str("event", "transcode.engine_stderr").Str("line", line).Msg("engine diagnostic")
		},
	)
	if err != nil {
		s.logger.Debug().Err(err).Msg("engine stderr scan ended early")
	}
}

func (s *Stream) closeInput() {
	s.closeInputOnce.Do(func() {
		s.inputClosing.Store(true)
		if c, ok := s.input.(io.Closer); ok {
			_ = c.Close()
		}
	})
}

func (s *Stream) setInputErr(err error) {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	if s.inputErr == nil {
		s.inputErr = err
	}
}

func (s *Stream) trySend(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// isClosedWrite reports the write-side failures expected when the engine
// exits before consuming all input.
func isClosedWrite(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}

func exitClass(err error) string {
	switch {
	case err == nil:
		return metrics.ExitClassOK
	case exitCode(err) < 0:
		return metrics.ExitClassKilled
	default:
		return metrics.ExitClassError
	}
}

func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
