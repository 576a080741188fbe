package monitor

import "errors"

var (
	// ErrNothingPending is returned by Confirm when no accident result is awaiting a response.
	ErrNothingPending = errors.New("monitor: no pending accident result")

	// ErrNotMonitoring is returned by operations that need an active session.
	ErrNotMonitoring = errors.New("monitor: no active monitoring session")

	// ErrNoDispatcher is returned when an alert is requested but no dispatcher is configured.
	ErrNoDispatcher = errors.New("monitor: no alert dispatcher configured")

	// ErrAlreadyOpen is returned by a second Open.
	ErrAlreadyOpen = errors.New("monitor: already open")
)
