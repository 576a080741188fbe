package monitor

import (
	"time"

	"github.com/nerrad567/safewalk-core/internal/audit"
	"github.com/nerrad567/safewalk-core/internal/detector"
	"github.com/nerrad567/safewalk-core/internal/geo"
	"github.com/nerrad567/safewalk-core/internal/sensor"
)

// Start forces a monitoring session regardless of zone membership. It is a
// no-op while a session is active.
func (m *Monitor) Start() {
	var fx effects
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return
	}
	m.beginSessionLocked(m.zone == nil, &fx)
	m.broadcastStatusLocked(&fx)
	m.mu.Unlock()

	fx.run()
}

// Stop ends the current session. Every session adapter, and any pending
// speech restart, is stopped before Stop returns. Monitoring resumes on
// the next zone entry.
func (m *Monitor) Stop() {
	var fx effects
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	m.endSessionLocked(&fx)
	m.broadcastStatusLocked(&fx)
	m.mu.Unlock()

	fx.run()
}

// Reset forces Idle: the session ends, pending results and zone
// membership are cleared, and the location watch is restarted. The next
// fix inside a zone starts a fresh session.
func (m *Monitor) Reset() {
	var fx effects
	m.mu.Lock()
	if m.session != nil {
		m.endSessionLocked(&fx)
	}
	m.state = StateIdle
	m.zone = nil
	m.pending = nil
	m.listening = false
	m.prevFix = nil
	m.data = SafetyData{Timestamp: m.data.Timestamp}
	loc := m.locHandle
	m.locHandle = 0
	m.auditLocked(audit.ActionReset, audit.EntitySession, "", nil, &fx)
	m.broadcastStatusLocked(&fx)
	opened := m.ctx != nil
	m.mu.Unlock()

	fx.run()
	if loc != 0 {
		m.deps.Location.Stop(loc)
	}
	m.logger.Info("safety monitor reset")
	if opened {
		m.startLocationWatch()
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the UI status object.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Monitor) statusLocked() Status {
	st := Status{
		IsSafe:             m.zone == nil,
		SafetyData:         m.data.clone(),
		IsSafetyMonitoring: m.session != nil,
		ShowSafetyPopup:    m.pending != nil,
	}
	if m.zone != nil {
		z := *m.zone
		st.CurrentZone = &z
	}
	if m.pending != nil {
		r := *m.pending
		st.AccidentDetails = &r
	}
	return st
}

// SystemStatus returns a diagnostics snapshot.
func (m *Monitor) SystemStatus() SystemStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	ss := SystemStatus{
		State:            m.state,
		DetectorsRunning: m.runningLocked(),
		KeywordListening: m.listening,
		Adapters:         make(map[sensor.Kind]sensor.Status, len(m.adapterStatus)),
		SafetyData:       m.data.clone(),
		LastDispatch:     m.lastDispatch,
	}
	for k, v := range m.adapterStatus {
		ss.Adapters[k] = v
	}
	if m.zone != nil {
		z := *m.zone
		ss.CurrentZone = &z
	}
	if s := m.session; s != nil {
		ss.SessionID = s.id
		started := s.startedAt
		ss.SessionStartedAt = &started
		ss.ForcedSession = s.forced
	}
	if b, ok := m.audio.Baseline(); ok && m.session != nil {
		ss.AudioBaseline = &b
	}
	if m.pending != nil {
		r := *m.pending
		ss.Pending = &r
	}
	if m.deps.Permissions != nil {
		ss.Permissions = m.deps.Permissions.Snapshot()
	}
	if sp, ok := m.deps.Speech.(supervised); ok && sp.Supervisor() != nil {
		ss.SpeechSupervisor = string(sp.Supervisor().State())
	}
	return ss
}

// CurrentZone returns the zone the user is in, if any.
func (m *Monitor) CurrentZone() (geo.Zone, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.zone == nil {
		return geo.Zone{}, false
	}
	return *m.zone, true
}

// Pending returns the accident result awaiting a response, if any.
func (m *Monitor) Pending() (detector.AccidentResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return detector.AccidentResult{}, false
	}
	return *m.pending, true
}

// SessionStartedAt returns when the current session began.
func (m *Monitor) SessionStartedAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return time.Time{}, false
	}
	return m.session.startedAt, true
}
