package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
)

// Kind labels for the failure taxonomy. They are stable machine codes: the
// relay_errors_total metric, span attributes, and log fields all carry them.
const (
	KindClientInput     = "client_input"
	KindUpstreamFetch   = "upstream_fetch"
	KindStreamTransport = "stream_transport"
	KindEngine          = "engine"
	KindUnhandled       = "unhandled"
)

// Error is a classified relay failure. Message is the plain-text body shown
// to the client when headers have not been sent yet; Err carries the
// operational detail for logs and is never exposed to the client.
type Error struct {
	Kind    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ClientInput reports a request rejected before any upstream contact.
func ClientInput(message string) *Error {
	return &Error{
		Kind:    KindClientInput,
		Status:  http.StatusBadRequest,
		Message: message,
	}
}

// UpstreamFetch reports a probe or stream-open failure against the source.
func UpstreamFetch(err error) *Error {
	return &Error{
		Kind:    KindUpstreamFetch,
		Status:  http.StatusInternalServerError,
		Message: "failed to fetch source video",
		Err:     err,
	}
}

// StreamTransport reports a connection dying mid-transfer, on either the
// source or the client side.
func StreamTransport(err error) *Error {
	return &Error{
		Kind:    KindStreamTransport,
		Status:  http.StatusInternalServerError,
		Message: "stream transfer failed",
		Err:     err,
	}
}

// Engine reports a transcoding run that exited unsuccessfully.
func Engine(err error) *Error {
	return &Error{
		Kind:    KindEngine,
		Status:  http.StatusInternalServerError,
		Message: "video processing failed",
		Err:     err,
	}
}

// Unhandled wraps anything the taxonomy does not recognize; the recovery
// middleware uses it for panics.
func Unhandled(err error) *Error {
	return &Error{
		Kind:    KindUnhandled,
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Err:     err,
	}
}

// IsExpectedDisconnect reports whether err is ordinary stream-teardown
// noise: the shapes produced when a client walks away or a context is
// canceled mid-transfer. These are logged at debug, not error.
func IsExpectedDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, http.ErrAbortHandler) {
		return true
	}
	msg := err.Error()
	for _, probe := range []string{
		"broken pipe",
		"connection reset by peer",
		"use of closed network connection",
		"client disconnected",
		"context canceled",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}
