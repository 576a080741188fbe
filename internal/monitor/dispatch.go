package monitor

import (
	"context"
	"fmt"

	"github.com/nerrad567/safewalk-core/internal/alert"
	"github.com/nerrad567/safewalk-core/internal/audit"
	"github.com/nerrad567/safewalk-core/internal/geo"
)

// DefaultSOSMessage is sent by TriggerSOS when no message is given.
const DefaultSOSMessage = "SOS! I need immediate help."

// directDispatchLocked schedules an alert that needs no confirmation.
// loc defaults to the last known position.
func (m *Monitor) directDispatchLocked(kind alert.Kind, message string, loc *geo.GeoPoint, fx *effects) {
	if loc == nil {
		loc = m.lastLocationLocked()
	}
	ctx := m.contextLocked()
	fx.add(func() {
		m.spawn(func() {
			if _, err := m.dispatch(ctx, kind, loc, message); err != nil {
				m.logger.Error("alert dispatch failed", "kind", kind, "error", err)
			}
		})
	})
}

func (m *Monitor) lastLocationLocked() *geo.GeoPoint {
	if m.data.LastLocation == nil {
		return nil
	}
	p := *m.data.LastLocation
	return &p
}

// dispatch sends one alert and records the outcome.
func (m *Monitor) dispatch(ctx context.Context, kind alert.Kind, loc *geo.GeoPoint, message string) (*alert.Report, error) {
	if m.deps.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	report, err := m.deps.Dispatcher.Dispatch(ctx, kind, loc, message)
	if report == nil {
		return nil, err
	}

	var fx effects
	m.mu.Lock()
	m.lastDispatch = report
	sessionID := ""
	if m.session != nil {
		sessionID = m.session.id
	}
	m.auditLocked(audit.ActionDispatch, audit.EntityAlert, report.ID, map[string]any{
		"kind":              string(kind),
		"status":            string(report.Status),
		"session_id":        sessionID,
		"contacts_notified": report.ContactsNotified,
		"contacts_total":    report.ContactsTotal,
		"failures":          len(report.Failures),
	}, &fx)
	m.mu.Unlock()
	fx.run()

	if m.deps.Telemetry != nil {
		m.deps.Telemetry.WriteDispatch(m.cfg.DeviceID, string(kind), string(report.Status),
			report.ContactsNotified, len(report.Failures), report.DispatchedAt)
	}
	if m.deps.Hub != nil {
		m.deps.Hub.Broadcast(ChannelDispatch, report)
	}
	return report, err
}

// Confirm resolves the pending accident result. safe dismisses it; help
// dispatches an accident_confirmed alert and returns its report. Either
// way the monitor goes back to monitoring.
func (m *Monitor) Confirm(ctx context.Context, safe bool) (*alert.Report, error) {
	var fx effects
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return nil, ErrNothingPending
	}
	res := *m.pending
	m.pending = nil
	if m.session != nil {
		m.state = StateMonitoring
	} else {
		m.state = StateIdle
	}
	loc := m.lastLocationLocked()
	entityID := ""
	if m.session != nil {
		entityID = m.session.id
	}
	m.auditLocked(audit.ActionConfirmed, audit.EntitySession, entityID, map[string]any{
		"safe":   safe,
		"source": string(res.TriggeredBy),
	}, &fx)
	m.broadcastStatusLocked(&fx)
	m.mu.Unlock()
	fx.run()

	if safe {
		m.logger.Info("user confirmed safe", "source", res.TriggeredBy)
		return nil, nil
	}

	m.logger.Warn("user requested help", "source", res.TriggeredBy, "detail", res.Detail)
	msg := fmt.Sprintf("Possible accident detected (%s). User confirmed they need help.", res.Detail)
	return m.dispatch(ctx, alert.KindAccidentConfirmed, loc, msg)
}

// TriggerSOS sends a manual SOS from the user. It works in any state.
func (m *Monitor) TriggerSOS(ctx context.Context, message string) (*alert.Report, error) {
	if message == "" {
		message = DefaultSOSMessage
	}
	m.mu.Lock()
	loc := m.lastLocationLocked()
	m.mu.Unlock()

	m.logger.Warn("manual SOS triggered")
	return m.dispatch(ctx, alert.KindManualSOS, loc, message)
}
