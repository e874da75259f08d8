//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// Set is a no-op on Windows; process groups are not used here.
func Set(cmd *exec.Cmd) {}

// Kill terminates the process on Windows. SIGKILL maps to Process.Kill;
// SIGTERM is a no-op because Windows has no reliable graceful signal.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if sig == syscall.SIGKILL {
		return cmd.Process.Kill()
	}
	return nil
}
