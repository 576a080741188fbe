package monitor

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	"github.com/nerrad567/safewalk-core/internal/audit"
	"github.com/nerrad567/safewalk-core/internal/sensor"
)

// effects are side effects collected under the lock and run after it is
// released, in order.
type effects []func()

func (f *effects) add(fn func()) {
	*f = append(*f, fn)
}

func (f effects) run() {
	for _, fn := range f {
		fn()
	}
}

// supervised is implemented by adapters with a restart supervisor.
type supervised interface {
	Supervisor() *sensor.Supervisor
}

func (m *Monitor) sessionAdapters() []sensor.Adapter {
	var out []sensor.Adapter
	for _, a := range []sensor.Adapter{m.deps.Motion, m.deps.Audio, m.deps.Speech} {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// beginSessionLocked opens a session and schedules the adapter starts.
// forced marks a debug start that does not depend on zone membership.
func (m *Monitor) beginSessionLocked(forced bool, fx *effects) {
	m.gen++
	now := m.clock.Now()
	s := &session{
		id:        "ses-" + uuid.NewString()[:8],
		gen:       m.gen,
		startedAt: now,
		forced:    forced,
		handles:   make(map[sensor.Kind]sensor.Handle),
		starting:  make(map[sensor.Kind]bool),
	}
	if m.zone != nil {
		s.zoneID = m.zone.ID
	}
	m.session = s
	m.state = StateMonitoring
	m.pending = nil
	m.listening = false

	// Fresh SafetyData; the last known position is kept for dispatch.
	m.data = SafetyData{LastLocation: m.data.LastLocation, Timestamp: now}
	if m.data.Timestamp.Before(m.stamps[sensor.KindLocation]) {
		m.data.Timestamp = m.stamps[sensor.KindLocation]
	}
	m.motion.Reset()
	m.audio.Reset()
	m.keyword.Reset()
	m.stationary.Reset()
	m.stopStationaryTimerLocked()

	m.logger.Info("safety monitoring started", "session_id", s.id, "zone_id", s.zoneID, "forced", forced)

	if m.zone != nil {
		name := m.zone.Name
		if name == "" {
			name = "a Red Zone"
		}
		m.noticeLocked(Notice{
			Type:     NoticeZoneEntry,
			Message:  "You have entered " + name + ". Safety monitoring has been activated.",
			Severity: "warning",
			ZoneID:   m.zone.ID,
			ZoneName: name,
		}, fx)
		if m.deps.Haptics != nil {
			pattern := append([]int(nil), m.cfg.VibrationPattern...)
			fx.add(func() { m.deps.Haptics.Vibrate(pattern) })
		}
	}
	m.auditLocked(audit.ActionZoneEnter, audit.EntitySession, s.id, map[string]any{
		"zone_id": s.zoneID,
		"forced":  forced,
	}, fx)

	adapters := m.sessionAdapters()
	for _, a := range adapters {
		s.starting[a.Kind()] = true
	}
	gen := s.gen
	fx.add(func() {
		for _, a := range adapters {
			a := a
			m.spawn(func() { m.startAdapter(gen, a) })
		}
	})
}

// startAdapter starts one session adapter. Failures are recorded as that
// adapter's status and never affect the others. A start whose session has
// already ended is skipped, and one that completes after its session has
// ended is stopped straight away.
func (m *Monitor) startAdapter(gen uint64, a sensor.Adapter) {
	kind := a.Kind()
	if mu := m.startMu[kind]; mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}

	m.mu.Lock()
	if s := m.session; s == nil || s.gen != gen {
		m.mu.Unlock()
		m.logger.Debug("skipping sensor start for ended session", "sensor", kind)
		return
	}
	ctx := m.contextLocked()
	m.mu.Unlock()

	h, err := a.Start(ctx, func(ev sensor.Event) { m.handleSessionEvent(gen, ev) })

	m.mu.Lock()
	s := m.session
	live := s != nil && s.gen == gen
	if live {
		delete(s.starting, kind)
	}
	if err != nil {
		if live {
			m.adapterStatus[kind] = statusForError(err)
		}
		m.mu.Unlock()
		m.logger.Warn("sensor failed to start", "sensor", kind, "error", err)
		return
	}
	if !live {
		m.mu.Unlock()
		a.Stop(h)
		m.logger.Debug("discarding sensor start for ended session", "sensor", kind)
		return
	}
	s.handles[kind] = h
	m.adapterStatus[kind] = sensor.StatusActive
	m.mu.Unlock()
	m.logger.Debug("sensor started", "sensor", kind, "session_id", s.id)
}

// endSessionLocked closes the session. Adapter stops run as effects, so
// they complete before the public call that ended the session returns.
func (m *Monitor) endSessionLocked(fx *effects) {
	s := m.session
	m.session = nil
	m.state = StateIdle
	m.pending = nil
	m.listening = false
	m.stopStationaryTimerLocked()
	m.motion.Reset()
	m.audio.Reset()
	m.keyword.Reset()
	m.stationary.Reset()

	handles := make(map[sensor.Kind]sensor.Handle, len(s.handles))
	for k, h := range s.handles {
		handles[k] = h
		delete(m.adapterStatus, k)
	}
	for k := range s.starting {
		delete(m.adapterStatus, k)
	}

	m.logger.Info("safety monitoring stopped", "session_id", s.id, "duration", m.clock.Now().Sub(s.startedAt))

	fx.add(func() {
		for _, a := range m.sessionAdapters() {
			if h, ok := handles[a.Kind()]; ok {
				a.Stop(h)
			}
		}
		if sp, ok := m.deps.Speech.(supervised); ok && sp.Supervisor() != nil {
			sp.Supervisor().Stop()
		}
	})
}

func (m *Monitor) noticeLocked(n Notice, fx *effects) {
	n.At = m.clock.Now()
	m.logger.Info("safety notice", "type", n.Type, "zone", n.ZoneName)
	fx.add(func() {
		if m.deps.Hub != nil {
			m.deps.Hub.Broadcast(ChannelNotice, n)
		}
		m.publish(m.topics.SafetyNotice(), n, false)
	})
}

func (m *Monitor) broadcastStatusLocked(fx *effects) {
	st := m.statusLocked()
	fx.add(func() {
		if m.deps.Hub != nil {
			m.deps.Hub.Broadcast(ChannelStatus, st)
		}
		m.publish(m.topics.SafetyStatus(), st, true)
	})
}

func (m *Monitor) publish(topic string, v any, retained bool) {
	if m.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("encoding bus payload", "topic", topic, "error", err)
		return
	}
	if err := m.deps.Bus.Publish(topic, payload, 1, retained); err != nil {
		m.logger.Warn("bus publish failed", "topic", topic, "error", err)
	}
}

func (m *Monitor) auditLocked(action, entityType, entityID string, details map[string]any, fx *effects) {
	if m.deps.Audit == nil {
		return
	}
	ctx := m.contextLocked()
	fx.add(func() {
		entry := &audit.AuditLog{
			Action:     action,
			EntityType: entityType,
			EntityID:   entityID,
			Source:     "monitor",
			Details:    details,
		}
		if err := m.deps.Audit.Create(ctx, entry); err != nil {
			m.logger.Warn("audit write failed", "action", action, "error", err)
		}
	})
}

func (m *Monitor) runningLocked() []string {
	var out []string
	if m.locHandle != 0 {
		out = append(out, string(sensor.KindLocation))
	}
	if m.session != nil {
		for k := range m.session.handles {
			out = append(out, string(k))
		}
		if m.listening {
			out = append(out, "keyword")
		}
		out = append(out, "stationary")
	}
	sort.Strings(out)
	return out
}
