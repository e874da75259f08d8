package daemon

import "errors"

var (
	// ErrMissingHandler is returned when a manager is created without an
	// HTTP handler.
	ErrMissingHandler = errors.New("http handler is required")

	// ErrMissingManager is returned when an app is created without a manager.
	ErrMissingManager = errors.New("manager is required")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("manager already started")

	// ErrNotStarted is returned when shutting down a manager that never ran.
	ErrNotStarted = errors.New("manager not started")
)
