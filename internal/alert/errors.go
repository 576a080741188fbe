package alert

import (
	"errors"
	"fmt"
)

var (
	// ErrDispatchFailed is returned when a dispatch delivered nothing.
	ErrDispatchFailed = errors.New("alert: dispatch failed")

	// ErrInvalidKind is returned for an alert kind outside the known set.
	ErrInvalidKind = errors.New("alert: invalid kind")

	// ErrNoAdminSink is returned when a dispatcher is built without an admin sink.
	ErrNoAdminSink = errors.New("alert: admin sink required")

	// ErrPublisherClosed is returned when publishing on a closed publisher.
	ErrPublisherClosed = errors.New("alert: publisher closed")
)

// DispatchError carries the report of a dispatch that reached nobody.
type DispatchError struct {
	Report *Report
}

func (e *DispatchError) Error() string {
	if e.Report == nil || len(e.Report.Failures) == 0 {
		return ErrDispatchFailed.Error()
	}
	f := e.Report.Failures[0]
	return fmt.Sprintf("%s: %s: %s (%d failures)", ErrDispatchFailed, f.Target, f.Error, len(e.Report.Failures))
}

func (e *DispatchError) Unwrap() error {
	return ErrDispatchFailed
}
