package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// EngineChecker verifies the transcoding engine binary is present. A bare
// command name is resolved through PATH; anything containing a separator is
// treated as an explicit path and stat'd directly.
type EngineChecker struct {
	Binary string
}

func (c EngineChecker) Name() string { return "engine" }

func (c EngineChecker) Check(_ context.Context) CheckResult {
	if strings.ContainsRune(c.Binary, os.PathSeparator) {
		info, err := os.Stat(c.Binary)
		if err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("engine binary not found: %v", err),
			}
		}
		if info.IsDir() || info.Mode()&0o111 == 0 {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("engine binary not executable: %s", c.Binary),
			}
		}
		return CheckResult{Status: StatusHealthy}
	}

	path, err := exec.LookPath(c.Binary)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("engine binary %q not in PATH", c.Binary),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// WritableDirChecker verifies a directory exists and accepts writes by
// creating and removing a probe file inside it.
type WritableDirChecker struct {
	CheckName string
	Dir       string
}

func (c WritableDirChecker) Name() string { return c.CheckName }

func (c WritableDirChecker) Check(_ context.Context) CheckResult {
	if c.Dir == "" {
		return CheckResult{Status: StatusHealthy, Message: "disabled"}
	}

	info, err := os.Stat(c.Dir)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("directory not accessible: %v", err),
		}
	}
	if !info.IsDir() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("not a directory: %s", c.Dir),
		}
	}

	probe := filepath.Join(c.Dir, ".write_test")
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("directory not writable: %v", err),
		}
	}
	_ = os.Remove(probe)

	return CheckResult{Status: StatusHealthy}
}

// Informational demotes a checker's failures to degraded so a best-effort
// dependency (like the failure-report directory) never blocks readiness.
type Informational struct {
	Checker
}

func (i Informational) Check(ctx context.Context) CheckResult {
	r := i.Checker.Check(ctx)
	if r.Status == StatusUnhealthy {
		r.Status = StatusDegraded
	}
	return r
}
