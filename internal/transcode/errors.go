package transcode

import (
	"fmt"
	"strings"
)

// EngineError reports an engine process that exited unsuccessfully. A
// force-killed engine carries ExitCode -1.
type EngineError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *EngineError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("engine exited with code %d: %s", e.ExitCode, firstLine(e.Stderr))
	}
	return fmt.Sprintf("engine exited with code %d", e.ExitCode)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
