package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// WriteFailureReport persists an engine failure for later inspection as
// <dir>/engine-<requestID>.log, written atomically so a crash mid-write
// never leaves a torn file. Callers treat errors as log-and-continue; a
// failed report must never fail the response path.
func WriteFailureReport(dir, requestID string, args []string, exitCode int, stderrTail string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, "engine-"+sanitizeID(requestID)+".log")

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending report: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	var b strings.Builder
	fmt.Fprintf(&b, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "request_id: %s\n", requestID)
	fmt.Fprintf(&b, "exit_code: %d\n", exitCode)
	fmt.Fprintf(&b, "args: %s\n", strings.Join(args, " "))
	b.WriteString("stderr_tail:\n")
	if stderrTail != "" {
		b.WriteString(stderrTail)
		b.WriteByte('\n')
	}
	if _, err := pending.WriteString(b.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}
	return nil
}

// sanitizeID keeps request IDs filesystem-safe. IDs are UUIDs in practice;
// anything else collapses to a conservative character set.
func sanitizeID(id string) string {
	if id == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
