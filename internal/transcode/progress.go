package transcode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"
)

// scanEngineOutput reads the engine's stderr, where progress key=value
// blocks are interleaved with -loglevel error diagnostics. Progress keys
// accumulate into a sample that is flushed to emit on every "progress" key;
// everything else goes to diag. Malformed or N/A values never abort the
// scan, they just leave the previous value in place.
func scanEngineOutput(r io.Reader, emit func(Progress), diag func(string)) error {
	scanner := bufio.NewScanner(r)
	var current Progress

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			diag(line)
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch key {
		case "frame":
			if v, err := strconv.Atoi(val); err == nil {
				current.Frame = v
			}
		case "fps":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				current.Fps = v
			}
		case "out_time_us":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.OutTimeUs = v
			}
		case "total_size":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.TotalSize = v
			}
		case "speed":
			current.Speed = val
		case "progress":
			// The engine writes this key last in every block.
			emit(current)
		default:
			if !isProgressNoise(key) {
				diag(line)
			}
		}
	}
	return scanner.Err()
}

// isProgressNoise reports keys that belong to a progress block but carry
// nothing we sample. They must not leak into the diagnostics tail.
func isProgressNoise(key string) bool {
	switch key {
	case "bitrate", "out_time", "out_time_ms", "dup_frames", "drop_frames":
		return true
	}
	return strings.HasPrefix(key, "stream_") && strings.HasSuffix(key, "_q")
}

// tailBuffer retains the last few diagnostic lines for failure reports.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
