package transcode

// Event is the closed set of notifications a Stream emits while the engine
// runs. Consumers receive them via Stream.Events.
type Event interface {
	isEvent()
}

// Started is emitted once, immediately after the engine process spawned.
type Started struct {
	Args []string
}

// Progress is a parsed sample of the engine's periodic progress output.
// Fields the engine reported as N/A stay at their zero value.
type Progress struct {
	Frame     int
	Fps       float64
	OutTimeUs int64
	TotalSize int64
	Speed     string
}

// End is emitted after the engine exited and all pipeline goroutines
// drained. The events channel is closed right after it.
type End struct{}

func (Started) isEvent()  {}
func (Progress) isEvent() {}
func (End) isEvent()      {}
