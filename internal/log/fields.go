package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldEnginePID = "engine_pid"

	// Media / stream fields
	FieldSourceURL   = "source_url"
	FieldSourceHost  = "source_host"
	FieldFilename    = "filename"
	FieldContentType = "content_type"
	FieldBytesIn     = "bytes_in"
	FieldBytesOut    = "bytes_out"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Network fields
	FieldListenAddr = "listen_addr"
)
