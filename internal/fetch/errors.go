package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyRedirects marks a redirect chain longer than the configured
	// bound.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrInvalidURL marks a source URL that failed validation before any
	// request was issued.
	ErrInvalidURL = errors.New("invalid source url")
)

// StatusError reports an upstream response with a failure status (>= 400).
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

// IsStatusError reports whether err carries an upstream failure status and
// returns the code if so.
func IsStatusError(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
