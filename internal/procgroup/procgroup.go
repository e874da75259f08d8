// Package procgroup spawns and reaps engine subprocesses as whole process
// groups, so helper processes forked by the engine die with it.
package procgroup

import (
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/Elghamazy/comoe/internal/metrics"
)

// ErrKillFailed reports a process group that survived SIGKILL within the
// caller's timeout.
var ErrKillFailed = errors.New("kill operation failed")

// Terminate gracefully stops a process group: SIGTERM, wait up to grace via
// the provided wait channel, then SIGKILL with the remainder of timeout to
// reap. It consumes and returns the error from waitCh. Safe to call on nil
// commands and on processes that already exited.
//
// The command MUST have been spawned with procgroup.Set(cmd), and waitCh MUST
// be buffered so the waiting goroutine never blocks on it.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace, timeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// A process that finished normally makes these kills harmless (ESRCH).
	if err := Kill(cmd, syscall.SIGTERM); err == nil {
		metrics.IncEngineSignal("SIGTERM", "sent")
	} else if isGone(err) {
		metrics.IncEngineSignal("SIGTERM", "esrch")
	} else {
		metrics.IncEngineSignal("SIGTERM", "error")
	}

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncEngineWait("exit0")
		} else {
			metrics.IncEngineWait("exit_nonzero")
		}
		return err
	case <-time.After(grace):
	}

	if err := Kill(cmd, syscall.SIGKILL); err == nil {
		metrics.IncEngineSignal("SIGKILL", "sent")
	} else if isGone(err) {
		metrics.IncEngineSignal("SIGKILL", "esrch")
	} else {
		metrics.IncEngineSignal("SIGKILL", "error")
	}

	remainder := timeout - grace
	if remainder <= 0 {
		remainder = time.Second
	}
	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncEngineWait("forced_exit0")
		} else {
			metrics.IncEngineWait("forced_error")
		}
		return err
	case <-time.After(remainder):
		metrics.IncEngineWait("unreaped")
		return ErrKillFailed
	}
}

func isGone(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "process already finished") ||
		strings.Contains(err.Error(), "no such process")
}
