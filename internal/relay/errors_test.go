package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
)

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    *Error
		kind   string
		status int
	}{
		{"client input", ClientInput("missing url"), KindClientInput, http.StatusBadRequest},
		{"upstream fetch", UpstreamFetch(errors.New("probe: EOF")), KindUpstreamFetch, http.StatusInternalServerError},
		{"stream transport", StreamTransport(errors.New("reset")), KindStreamTransport, http.StatusInternalServerError},
		{"engine", Engine(errors.New("exit 1")), KindEngine, http.StatusInternalServerError},
		{"unhandled", Unhandled(errors.New("panic: nil deref")), KindUnhandled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Kind != tc.kind {
				t.Errorf("Kind = %q, want %q", tc.err.Kind, tc.kind)
			}
			if tc.err.Status != tc.status {
				t.Errorf("Status = %d, want %d", tc.err.Status, tc.status)
			}
			if tc.err.Message == "" {
				t.Error("empty client-facing message")
			}
			if tc.err.Error() == "" {
				t.Error("empty Error()")
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	e := UpstreamFetch(fmt.Errorf("probe: %w", inner))
	if !errors.Is(e, inner) {
		t.Error("wrapped cause not reachable through errors.Is")
	}

	var re *Error
	if !errors.As(fmt.Errorf("handler: %w", e), &re) {
		t.Error("errors.As failed to recover *Error through wrapping")
	}
}

func TestIsExpectedDisconnect(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, true},
		{"wrapped cancel", fmt.Errorf("read source: %w", context.Canceled), true},
		{"epipe", syscall.EPIPE, true},
		{"econnreset", syscall.ECONNRESET, true},
		{"abort handler", http.ErrAbortHandler, true},
		{"broken pipe text", errors.New("write tcp 10.0.0.1:3000->10.0.0.2:55131: write: broken pipe"), true},
		{"reset text", errors.New("read tcp: connection reset by peer"), true},
		{"closed conn text", errors.New("use of closed network connection"), true},
		{"engine exit", errors.New("engine exited with code 1"), false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"plain failure", errors.New("no such host"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsExpectedDisconnect(tc.err); got != tc.want {
				t.Errorf("IsExpectedDisconnect(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
