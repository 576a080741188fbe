package sensor

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied indicates the user denied the capability.
	ErrPermissionDenied = errors.New("sensor: permission denied")

	// ErrUnsupported indicates the device lacks the capability.
	ErrUnsupported = errors.New("sensor: capability unsupported")

	// ErrGestureRequired indicates the permission can only be requested
	// from a direct user action.
	ErrGestureRequired = errors.New("sensor: permission request requires a user gesture")

	// ErrTimeout indicates a watch produced no data in time.
	ErrTimeout = errors.New("sensor: timed out")

	// ErrInvalidSample indicates a payload that could not be decoded.
	ErrInvalidSample = errors.New("sensor: invalid sample")

	// ErrRestartLimit indicates a supervised session ended more often than
	// its restart policy allows.
	ErrRestartLimit = errors.New("sensor: restart limit reached")

	// ErrNoTransport indicates an operation that needs the bus was called
	// before one was attached.
	ErrNoTransport = errors.New("sensor: no transport attached")
)

// TransientIOError wraps a failure expected to clear on the next natural
// update cycle.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("sensor: %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a TransientIOError.
func IsTransient(err error) bool {
	var t *TransientIOError
	return errors.As(err, &t)
}
