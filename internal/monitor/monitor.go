package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/safewalk-core/internal/alert"
	"github.com/nerrad567/safewalk-core/internal/audit"
	"github.com/nerrad567/safewalk-core/internal/clock"
	"github.com/nerrad567/safewalk-core/internal/detector"
	"github.com/nerrad567/safewalk-core/internal/geo"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/safewalk-core/internal/sensor"
)

// Config holds the monitoring policy.
type Config struct {
	// DeviceID tags telemetry.
	DeviceID string

	// Evaluator decides zone membership. Default: 500 m, first match.
	Evaluator *geo.Evaluator

	// StationaryDuration and MovementThreshold configure the stationary
	// detector. Zero selects its defaults (5 min, 25 m).
	StationaryDuration time.Duration
	MovementThreshold  float64

	// VoiceTrigger enables keyword listening. Zero selects the defaults.
	VoiceTrigger detector.VoiceTrigger

	// VibrationPattern is played on zone entry. Nil selects DefaultVibrationPattern.
	VibrationPattern []int
}

// Deps are the monitor's collaborators. Zones and Location are required;
// any session adapter may be nil, in which case it is simply not started.
type Deps struct {
	Zones       ZoneSource
	Location    sensor.Adapter
	Motion      sensor.Adapter
	Audio       sensor.Adapter
	Speech      sensor.Adapter
	Permissions *sensor.Permissions
	Haptics     Vibrator
	Dispatcher  Dispatcher
	Clock       clock.Clock
	Hub         Broadcaster
	Bus         Publisher
	Telemetry   Telemetry
	Audit       audit.Repository
}

// session is one monitoring period. It owns the session adapter handles.
type session struct {
	id        string
	gen       uint64
	startedAt time.Time
	zoneID    string
	forced    bool
	handles   map[sensor.Kind]sensor.Handle
	starting  map[sensor.Kind]bool
}

// Monitor is the safety state machine. Create with New, then Open.
type Monitor struct {
	cfg     Config
	deps    Deps
	clock   clock.Clock
	logger  Logger
	trigger detector.VoiceTrigger
	topics  mqtt.Topics
	spawn   func(func())

	motion     *detector.MotionDetector
	audio      *detector.AudioDetector
	keyword    *detector.KeywordDetector
	stationary *detector.StationaryDetector

	wg sync.WaitGroup

	// startMu serialises starts per adapter kind, so a start queued for an
	// ended session can never run after the live session's start.
	startMu map[sensor.Kind]*sync.Mutex

	mu              sync.Mutex
	ctx             context.Context
	cancel          context.CancelFunc
	closed          bool
	unwatchPerms    func()
	state           State
	zone            *geo.Zone
	session         *session
	gen             uint64
	locHandle       sensor.Handle
	locStarting     bool
	data            SafetyData
	stamps          map[sensor.Kind]time.Time
	prevFix         *sensor.Fix
	pending         *detector.AccidentResult
	listening       bool
	adapterStatus   map[sensor.Kind]sensor.Status
	lastDispatch    *alert.Report
	stationaryTimer clock.Timer
}

// New creates an idle monitor.
func New(cfg Config, deps Deps) *Monitor {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = geo.NewEvaluator()
	}
	if cfg.VibrationPattern == nil {
		cfg.VibrationPattern = DefaultVibrationPattern
	}
	trigger := cfg.VoiceTrigger
	def := detector.DefaultVoiceTrigger()
	if trigger.Acceleration <= 0 {
		trigger.Acceleration = def.Acceleration
	}
	if trigger.Speed <= 0 {
		trigger.Speed = def.Speed
	}

	m := &Monitor{
		cfg:           cfg,
		deps:          deps,
		clock:         deps.Clock,
		logger:        noopLogger{},
		trigger:       trigger,
		motion:        detector.NewMotionDetector(deps.Clock),
		audio:         detector.NewAudioDetector(deps.Clock),
		keyword:       detector.NewKeywordDetector(deps.Clock),
		stationary:    detector.NewStationaryDetector(deps.Clock, cfg.StationaryDuration, cfg.MovementThreshold),
		state:         StateIdle,
		stamps:        make(map[sensor.Kind]time.Time),
		adapterStatus: make(map[sensor.Kind]sensor.Status),
		startMu: map[sensor.Kind]*sync.Mutex{
			sensor.KindMotion: {},
			sensor.KindAudio:  {},
			sensor.KindSpeech: {},
		},
	}
	m.spawn = m.goAsync
	return m
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

func (m *Monitor) goAsync(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// Open loads the zones and starts the location watch. The monitor's
// background work is bound to ctx. Streams that failed for lack of
// permission are started again once the permission is granted.
func (m *Monitor) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.ctx != nil {
		m.mu.Unlock()
		return ErrAlreadyOpen
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	if m.deps.Permissions != nil {
		m.unwatchPerms = m.deps.Permissions.Subscribe(m.handlePermissionChange)
	}
	m.mu.Unlock()

	if zones, err := m.deps.Zones.FetchZones(ctx); err != nil {
		m.logger.Warn("red zones unavailable, will retry on next fix", "error", err)
	} else {
		m.logger.Info("red zones loaded", "count", len(zones))
	}

	m.startLocationWatch()
	return nil
}

// Close ends any session, stops the location watch and waits for
// background work.
func (m *Monitor) Close() {
	var fx effects
	m.mu.Lock()
	if m.session != nil {
		m.endSessionLocked(&fx)
	}
	loc := m.locHandle
	m.locHandle = 0
	m.closed = true
	cancel, unwatch := m.cancel, m.unwatchPerms
	m.unwatchPerms = nil
	m.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	fx.run()
	if loc != 0 {
		m.deps.Location.Stop(loc)
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contextLocked()
}

func (m *Monitor) contextLocked() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

// startLocationWatch (re)starts the app-wide location watch. It does
// nothing while a watch is running or starting, or after Close.
func (m *Monitor) startLocationWatch() {
	m.mu.Lock()
	if m.closed || m.locStarting || m.locHandle != 0 {
		m.mu.Unlock()
		return
	}
	m.locStarting = true
	ctx := m.contextLocked()
	m.mu.Unlock()

	h, err := m.deps.Location.Start(ctx, m.handleLocationEvent)

	m.mu.Lock()
	m.locStarting = false
	if err != nil {
		m.adapterStatus[sensor.KindLocation] = statusForError(err)
		m.mu.Unlock()
		m.logger.Warn("location watch failed to start", "error", err)
		return
	}
	if m.closed {
		m.mu.Unlock()
		m.deps.Location.Stop(h)
		return
	}
	m.locHandle = h
	m.adapterStatus[sensor.KindLocation] = sensor.StatusActive
	m.mu.Unlock()
	m.logger.Info("location watch started")
}

// handlePermissionChange restarts the streams a denial took down: the
// location watch, and any session adapter left unavailable.
func (m *Monitor) handlePermissionChange(ch sensor.PermissionChange) {
	if ch.To != sensor.PermissionGranted {
		return
	}

	var fx effects
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if ch.Capability == sensor.CapabilityLocation && m.locHandle == 0 && !m.locStarting {
		fx.add(func() { m.spawn(m.startLocationWatch) })
	}
	if s := m.session; s != nil {
		gen := s.gen
		for _, a := range m.sessionAdapters() {
			a := a
			kind := a.Kind()
			if kind.Capability() != ch.Capability || s.starting[kind] {
				continue
			}
			if _, running := s.handles[kind]; running || m.adapterStatus[kind] != sensor.StatusUnavailable {
				continue
			}
			s.starting[kind] = true
			fx.add(func() { m.spawn(func() { m.startAdapter(gen, a) }) })
		}
	}
	m.mu.Unlock()

	if len(fx) > 0 {
		m.logger.Info("permission granted, restarting sensors", "capability", ch.Capability)
	}
	fx.run()
}

func (m *Monitor) handleLocationEvent(ev sensor.Event) {
	if ev.Fix != nil {
		m.HandleLocation(*ev.Fix)
		return
	}
	if ev.Status == "" {
		return
	}
	m.mu.Lock()
	m.adapterStatus[sensor.KindLocation] = ev.Status
	if ev.Status.Terminal() {
		m.locHandle = 0
	}
	m.mu.Unlock()
	if ev.Err != nil {
		m.logger.Warn("location status", "status", ev.Status, "error", ev.Err)
	}
}

// HandleLocation processes one fix: speed, zone membership, and the
// stationary detector. Fixes are applied in timestamp order; an older fix
// than the last one applied is dropped, as is a non-finite one.
func (m *Monitor) HandleLocation(fix sensor.Fix) {
	if !fix.Point.Valid() {
		m.logger.Debug("ignoring invalid location fix", "lat", fix.Point.Lat, "lng", fix.Point.Lng)
		return
	}
	zones, zoneErr := m.deps.Zones.FetchZones(m.context())
	if zoneErr != nil {
		m.logger.Warn("zone evaluation skipped", "error", zoneErr)
	}

	var fx effects
	m.mu.Lock()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = m.clock.Now()
	}
	if !m.acceptLocked(sensor.KindLocation, fix.Timestamp) {
		m.mu.Unlock()
		return
	}

	if prev := m.prevFix; prev != nil {
		if dt := fix.Timestamp.Sub(prev.Timestamp).Seconds(); dt > 0 {
			m.data.CurrentSpeed = geo.Haversine(prev.Point, fix.Point) / dt
		}
	}
	f := fix
	m.prevFix = &f
	p := fix.Point
	m.data.LastLocation = &p

	if zoneErr == nil {
		if next, err := m.cfg.Evaluator.Evaluate(fix.Point, zones); err == nil {
			m.applyMembershipLocked(next, &fx)
		}
	}

	if s := m.session; s != nil {
		m.observeStationaryLocked(fix.Point, &fx)
		m.checkVoiceTriggerLocked(&fx)
		data := m.data.clone()
		sessionID := s.id
		fx.add(func() { m.writeSample(sessionID, data) })
	}
	m.broadcastStatusLocked(&fx)
	m.mu.Unlock()

	fx.run()
}

// acceptLocked enforces per-source timestamp order and advances
// SafetyData.Timestamp.
func (m *Monitor) acceptLocked(kind sensor.Kind, ts time.Time) bool {
	if ts.Before(m.stamps[kind]) {
		m.logger.Debug("dropping out-of-order sample", "sensor", kind, "at", ts)
		return false
	}
	m.stamps[kind] = ts
	if ts.After(m.data.Timestamp) {
		m.data.Timestamp = ts
	}
	return true
}

func (m *Monitor) applyMembershipLocked(next *geo.Zone, fx *effects) {
	prev := m.zone
	edge := geo.Transition(prev, next)
	m.zone = next

	switch edge {
	case geo.EdgeEnter:
		m.transitionEffectLocked(next.ID, edge, fx)
		if m.session == nil {
			m.beginSessionLocked(false, fx)
		} else {
			m.session.zoneID = next.ID
		}
	case geo.EdgeSwitch:
		m.transitionEffectLocked(next.ID, edge, fx)
		if m.session != nil {
			m.session.zoneID = next.ID
		}
		m.logger.Info("moved between red zones", "from", prev.ID, "to", next.ID)
	case geo.EdgeExit:
		m.transitionEffectLocked(prev.ID, edge, fx)
		if m.session != nil {
			m.endSessionLocked(fx)
			m.noticeLocked(Notice{
				Type:     NoticeZoneExit,
				Message:  "You have left the red zone. Safety monitoring deactivated.",
				Severity: "success",
				ZoneID:   prev.ID,
				ZoneName: prev.Name,
			}, fx)
			m.auditLocked(audit.ActionZoneExit, audit.EntitySession, "", map[string]any{"zone_id": prev.ID}, fx)
		}
	}
}

func (m *Monitor) transitionEffectLocked(zoneID string, edge geo.Edge, fx *effects) {
	if m.deps.Telemetry == nil {
		return
	}
	at := m.clock.Now()
	dev := m.cfg.DeviceID
	fx.add(func() { m.deps.Telemetry.WriteZoneTransition(dev, zoneID, edge.String(), at) })
}

func (m *Monitor) writeSample(sessionID string, d SafetyData) {
	if m.deps.Telemetry == nil {
		return
	}
	var lat, lng float64
	if d.LastLocation != nil {
		lat, lng = d.LastLocation.Lat, d.LastLocation.Lng
	}
	m.deps.Telemetry.WriteSafetySample(m.cfg.DeviceID, sessionID, d.CurrentSpeed, d.Acceleration,
		lat, lng, d.LastLocation != nil, d.Timestamp)
}

func statusForError(err error) sensor.Status {
	switch {
	case err == nil:
		return sensor.StatusActive
	case errors.Is(err, sensor.ErrPermissionDenied):
		return sensor.StatusUnavailable
	case errors.Is(err, sensor.ErrUnsupported):
		return sensor.StatusUnsupported
	default:
		return sensor.StatusError
	}
}
