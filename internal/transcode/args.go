package transcode

import (
	"fmt"
	"strconv"
)

// Params are the operator-tunable knobs of the otherwise fixed engine
// invocation. Values come from config.TranscodeConfig, validated at load.
type Params struct {
	Threads          int
	CRF              int
	MaxRateKbps      int
	AudioBitrateKbps int
	Preset           string
}

// BuildArgs renders the engine argument vector. The shape is a fixed
// contract: H.264 + AAC in a fragmented MP4 sized for 480p streaming, fed
// on stdin, emitted on stdout, progress interleaved with diagnostics on
// stderr.
func BuildArgs(p Params) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error", // diagnostics only; progress is the chatty part
		"-progress", "pipe:2", // key=value samples onto stderr
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.CRF),
		"-vf", "scale=854:480",
		"-maxrate", fmt.Sprintf("%dk", p.MaxRateKbps),
		"-bufsize", fmt.Sprintf("%dk", p.MaxRateKbps), // bufsize tracks maxrate
		"-threads", strconv.Itoa(p.Threads),
		"-g", "30",
		"-sc_threshold", "0",
		"-tune", "fastdecode",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", p.AudioBitrateKbps),
		"-ac", "2",
		// Fragmented MP4: playable while still being written, no seekable
		// index required at the tail.
		"-movflags", "frag_keyframe+empty_moov+faststart",
		"-f", "mp4",
		"pipe:1",
	}
}
