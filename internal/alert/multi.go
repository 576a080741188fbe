package alert

import (
	"context"
	"errors"
)

// MultiAdminSink records an alert in every sink. It succeeds if the
// primary (first) sink succeeds; failures of the others are joined into
// the error only when the primary also failed, and are otherwise
// reported to the logger.
type MultiAdminSink struct {
	sinks  []namedSink
	logger Logger
}

type namedSink struct {
	name string
	sink AdminSink
}

// NewMultiAdminSink creates a sink whose primary is named primaryName.
func NewMultiAdminSink(primaryName string, primary AdminSink) *MultiAdminSink {
	return &MultiAdminSink{
		sinks:  []namedSink{{name: primaryName, sink: primary}},
		logger: noopLogger{},
	}
}

// Add appends a secondary sink.
func (m *MultiAdminSink) Add(name string, sink AdminSink) *MultiAdminSink {
	m.sinks = append(m.sinks, namedSink{name: name, sink: sink})
	return m
}

// SetLogger sets the logger used for secondary sink failures.
func (m *MultiAdminSink) SetLogger(logger Logger) {
	m.logger = logger
}

// RecordAdminAlert implements AdminSink.
func (m *MultiAdminSink) RecordAdminAlert(ctx context.Context, a *AdminAlert) error {
	var errs []error
	primaryErr := error(nil)
	for i, s := range m.sinks {
		err := s.sink.RecordAdminAlert(ctx, a)
		if err == nil {
			continue
		}
		if i == 0 {
			primaryErr = err
		} else {
			m.logger.Warn("secondary admin sink failed", "sink", s.name, "alert_id", a.ID, "error", err)
		}
		errs = append(errs, err)
	}
	if primaryErr == nil {
		return nil
	}
	return errors.Join(errs...)
}
