package monitor

import (
	"fmt"

	"github.com/nerrad567/safewalk-core/internal/alert"
	"github.com/nerrad567/safewalk-core/internal/audit"
	"github.com/nerrad567/safewalk-core/internal/detector"
	"github.com/nerrad567/safewalk-core/internal/geo"
	"github.com/nerrad567/safewalk-core/internal/sensor"
)

// handleSessionEvent routes an event from a session adapter. Events from
// an earlier session are dropped.
func (m *Monitor) handleSessionEvent(gen uint64, ev sensor.Event) {
	var fx effects
	m.mu.Lock()
	s := m.session
	if s == nil || s.gen != gen {
		m.mu.Unlock()
		return
	}
	at := ev.At
	if at.IsZero() {
		at = m.clock.Now()
	}

	switch {
	case ev.Status != "":
		m.adapterStatus[ev.Kind] = ev.Status
		if ev.Status.Terminal() {
			delete(s.handles, ev.Kind)
		}
		if ev.Err != nil {
			m.logger.Warn("sensor status", "sensor", ev.Kind, "status", ev.Status, "error", ev.Err)
		}
	case ev.Motion != nil:
		if m.acceptLocked(sensor.KindMotion, at) {
			m.observeMotionLocked(*ev.Motion, &fx)
		}
	case ev.Level != nil:
		if m.acceptLocked(sensor.KindAudio, at) {
			m.observeAudioLocked(*ev.Level, &fx)
		}
	case ev.Transcript != nil:
		if m.acceptLocked(sensor.KindSpeech, at) {
			m.observeTranscriptLocked(*ev.Transcript, &fx)
		}
	}
	m.mu.Unlock()

	fx.run()
}

func (m *Monitor) observeMotionLocked(sample detector.MotionSample, fx *effects) {
	ev, fired := m.motion.Observe(sample)
	m.data.Acceleration = m.motion.SignedAcceleration()
	if fired {
		m.anomalyLocked(ev.Result(), fx)
	}
	m.checkVoiceTriggerLocked(fx)
}

func (m *Monitor) observeAudioLocked(level float64, fx *effects) {
	if ev, fired := m.audio.Observe(level); fired {
		m.anomalyLocked(ev.Result(), fx)
	}
}

func (m *Monitor) observeTranscriptLocked(chunk detector.TranscriptChunk, fx *effects) {
	if !m.listening {
		return
	}
	ev, ok := m.keyword.Observe(chunk)
	if !ok {
		return
	}
	m.data.KeywordDetected = true
	m.logger.Warn("emergency keyword detected", "keyword", ev.Keyword, "chunk_id", ev.ChunkID)
	m.anomalyTelemetryLocked(ev.Result(), fx)
	m.directDispatchLocked(alert.KindVoiceKeyword, fmt.Sprintf("Emergency keyword %q detected!", ev.Keyword), nil, fx)
	m.broadcastStatusLocked(fx)
}

// anomalyLocked handles a motion or audio anomaly. Inside a red zone it
// opens the confirmation workflow unless a result is already pending.
func (m *Monitor) anomalyLocked(res detector.AccidentResult, fx *effects) {
	m.anomalyTelemetryLocked(res, fx)

	if m.zone == nil {
		m.logger.Debug("anomaly outside red zone ignored", "source", res.TriggeredBy, "detail", res.Detail)
		return
	}
	if m.pending != nil {
		return
	}

	r := res
	m.pending = &r
	m.state = StateAccidentSuspected
	m.logger.Warn("accident suspected", "source", res.TriggeredBy, "detail", res.Detail, "confidence", res.Confidence)

	m.auditLocked(audit.ActionSuspected, audit.EntitySession, m.session.id, map[string]any{
		"source":     string(res.TriggeredBy),
		"detail":     res.Detail,
		"confidence": res.Confidence,
	}, fx)
	fx.add(func() {
		if m.deps.Hub != nil {
			m.deps.Hub.Broadcast(ChannelAccident, r)
		}
	})
	m.broadcastStatusLocked(fx)
}

func (m *Monitor) anomalyTelemetryLocked(res detector.AccidentResult, fx *effects) {
	if m.deps.Telemetry == nil || m.session == nil {
		return
	}
	sessionID := m.session.id
	dev := m.cfg.DeviceID
	fx.add(func() {
		m.deps.Telemetry.WriteAnomaly(dev, sessionID, string(res.TriggeredBy), res.Detail, res.Confidence, res.Timestamp)
	})
}

// observeStationaryLocked feeds the stationary detector and keeps a timer
// armed for its deadline, so the event fires even if fixes stop arriving.
func (m *Monitor) observeStationaryLocked(p geo.GeoPoint, fx *effects) {
	if ev, fired := m.stationary.Observe(p); fired {
		m.stopStationaryTimerLocked()
		m.stationaryFiredLocked(ev, fx)
		return
	}
	m.armStationaryTimerLocked()
}

func (m *Monitor) armStationaryTimerLocked() {
	m.stopStationaryTimerLocked()
	deadline, ok := m.stationary.Deadline()
	if !ok || m.session == nil {
		return
	}
	wait := deadline.Sub(m.clock.Now())
	if wait < 0 {
		wait = 0
	}
	gen := m.session.gen
	m.stationaryTimer = m.clock.AfterFunc(wait, func() { m.pollStationary(gen) })
}

func (m *Monitor) stopStationaryTimerLocked() {
	if m.stationaryTimer != nil {
		m.stationaryTimer.Stop()
		m.stationaryTimer = nil
	}
}

func (m *Monitor) pollStationary(gen uint64) {
	var fx effects
	m.mu.Lock()
	if m.session == nil || m.session.gen != gen {
		m.mu.Unlock()
		return
	}
	m.stationaryTimer = nil
	if ev, fired := m.stationary.Poll(); fired {
		m.stationaryFiredLocked(ev, &fx)
	}
	m.mu.Unlock()

	fx.run()
}

func (m *Monitor) stationaryFiredLocked(ev detector.StationaryEvent, fx *effects) {
	m.logger.Warn("stationary user detected", "minutes", ev.Minutes(), "lat", ev.Location.Lat, "lng", ev.Location.Lng)
	m.anomalyTelemetryLocked(ev.Result(), fx)
	loc := ev.Location
	m.directDispatchLocked(alert.KindStationary,
		fmt.Sprintf("You have been stationary for %d minutes.", ev.Minutes()), &loc, fx)
}

// checkVoiceTriggerLocked turns keyword listening on when the physical
// sensors suggest distress.
func (m *Monitor) checkVoiceTriggerLocked(fx *effects) {
	if m.session == nil || m.listening {
		return
	}
	if m.trigger.Triggered(m.data.Acceleration, m.data.CurrentSpeed, m.motion.AnyActive()) {
		m.enableListeningLocked("sensor trigger", fx)
	}
}

// enableListeningLocked opens the keyword gate. If speech is not running
// for this session (it failed earlier, or permission has since been
// granted) it is started again.
func (m *Monitor) enableListeningLocked(reason string, fx *effects) {
	s := m.session
	m.listening = true
	m.logger.Info("keyword listening enabled",
		"reason", reason,
		"speed", m.data.CurrentSpeed,
		"acceleration", m.data.Acceleration,
	)

	sp := m.deps.Speech
	if sp == nil {
		return
	}
	if _, running := s.handles[sensor.KindSpeech]; running || s.starting[sensor.KindSpeech] {
		return
	}
	s.starting[sensor.KindSpeech] = true
	gen := s.gen
	fx.add(func() { m.spawn(func() { m.startAdapter(gen, sp) }) })
}

// EnableKeywordListening turns on keyword detection for the current
// session regardless of the sensor triggers.
func (m *Monitor) EnableKeywordListening() error {
	var fx effects
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return ErrNotMonitoring
	}
	if !m.listening {
		m.enableListeningLocked("manual", &fx)
		m.broadcastStatusLocked(&fx)
	}
	m.mu.Unlock()

	fx.run()
	return nil
}
