package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/safewalk-core/internal/alert"
	"github.com/nerrad567/safewalk-core/internal/audit"
	"github.com/nerrad567/safewalk-core/internal/clock"
	"github.com/nerrad567/safewalk-core/internal/detector"
	"github.com/nerrad567/safewalk-core/internal/geo"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/safewalk-core/internal/sensor"
)

// ─── Fixtures ───────────────────────────────────────────────────────

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

var (
	westminster = geo.Zone{ID: "z-west", Name: "Westminster", Center: geo.GeoPoint{Lat: 51.5007, Lng: -0.1246}, RadiusMeters: 500}
	camden      = geo.Zone{ID: "z-camden", Name: "Camden", Center: geo.GeoPoint{Lat: 51.5390, Lng: -0.1426}, RadiusMeters: 500}

	// roughly 2 km north of Westminster, outside every zone
	outside = geo.GeoPoint{Lat: 51.5190, Lng: -0.1246}
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeZones struct {
	zones []geo.Zone
	err   error
}

func (z *fakeZones) FetchZones(context.Context) ([]geo.Zone, error) {
	return z.zones, z.err
}

type fakeAdapter struct {
	mu       sync.Mutex
	kind     sensor.Kind
	startErr error
	next     sensor.Handle
	active   sensor.Handle
	onEvent  func(sensor.Event)
	starts   int
	stopped  []sensor.Handle
	onStart  func()
}

func newFakeAdapter(kind sensor.Kind) *fakeAdapter {
	return &fakeAdapter{kind: kind}
}

func (a *fakeAdapter) Kind() sensor.Kind { return a.kind }

func (a *fakeAdapter) Start(_ context.Context, onEvent func(sensor.Event)) (sensor.Handle, error) {
	a.mu.Lock()
	a.starts++
	if a.startErr != nil {
		err := a.startErr
		a.mu.Unlock()
		return 0, err
	}
	a.next++
	a.active = a.next
	a.onEvent = onEvent
	h := a.next
	hook := a.onStart
	a.onStart = nil
	a.mu.Unlock()

	if hook != nil {
		hook()
	}
	return h, nil
}

func (a *fakeAdapter) Stop(h sensor.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = append(a.stopped, h)
	if h == a.active {
		a.active = 0
		a.onEvent = nil
	}
}

func (a *fakeAdapter) Permission() sensor.PermissionState { return sensor.PermissionGranted }

func (a *fakeAdapter) RequestPermission(context.Context, bool) (sensor.PermissionState, error) {
	return sensor.PermissionGranted, nil
}

func (a *fakeAdapter) handler() func(sensor.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onEvent
}

func (a *fakeAdapter) emit(ev sensor.Event) {
	if fn := a.handler(); fn != nil {
		ev.Kind = a.kind
		fn(ev)
	}
}

func (a *fakeAdapter) running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != 0
}

func (a *fakeAdapter) startCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts
}

func (a *fakeAdapter) setStartErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startErr = err
}

// runDuringStart runs fn once, inside the next successful Start.
func (a *fakeAdapter) runDuringStart(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStart = fn
}

// streamBus is a minimal sensor.Bus for the real adapters.
type streamBus struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
}

func newStreamBus() *streamBus {
	return &streamBus{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *streamBus) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *streamBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *streamBus) Publish(string, []byte, byte, bool) error { return nil }

func (b *streamBus) subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[topic]
	return ok
}

// supervisedAdapter is a speech fake with a real restart supervisor.
type supervisedAdapter struct {
	*fakeAdapter
	sup *sensor.Supervisor
}

func (a *supervisedAdapter) Start(ctx context.Context, onEvent func(sensor.Event)) (sensor.Handle, error) {
	h, err := a.fakeAdapter.Start(ctx, onEvent)
	if err == nil {
		a.sup.Begin()
	}
	return h, err
}

func (a *supervisedAdapter) Supervisor() *sensor.Supervisor { return a.sup }

type dispatchCall struct {
	kind     alert.Kind
	location *geo.GeoPoint
	message  string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	err   error
	calls []dispatchCall
}

func (d *fakeDispatcher) Dispatch(_ context.Context, kind alert.Kind, loc *geo.GeoPoint, msg string) (*alert.Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{kind: kind, location: loc, message: msg})
	report := &alert.Report{
		ID:           fmt.Sprintf("r%d", len(d.calls)),
		Kind:         kind,
		Status:       alert.StatusSent,
		AdminSent:    true,
		DispatchedAt: testStart,
	}
	if d.err != nil {
		report.Status = alert.StatusFailed
		report.AdminSent = false
		report.Failures = []alert.Failure{{Target: "admin", Error: d.err.Error()}}
		return report, &alert.DispatchError{Report: report}
	}
	return report, nil
}

func (d *fakeDispatcher) all() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

type broadcast struct {
	channel string
	payload any
}

type fakeHub struct {
	mu   sync.Mutex
	sent []broadcast
}

func (h *fakeHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, broadcast{channel: channel, payload: payload})
}

func (h *fakeHub) on(channel string) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []any
	for _, b := range h.sent {
		if b.channel == channel {
			out = append(out, b.payload)
		}
	}
	return out
}

func (h *fakeHub) notices() []Notice {
	var out []Notice
	for _, p := range h.on(ChannelNotice) {
		out = append(out, p.(Notice))
	}
	return out
}

type fakeVibrator struct {
	patterns [][]int
}

func (v *fakeVibrator) Vibrate(p []int) bool {
	v.patterns = append(v.patterns, p)
	return true
}

type fakeTelemetry struct {
	mu          sync.Mutex
	samples     int
	anomalies   []string
	transitions []string
	dispatches  []string
}

func (f *fakeTelemetry) WriteSafetySample(string, string, float64, float64, float64, float64, bool, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples++
}

func (f *fakeTelemetry) WriteAnomaly(_, _, source, _ string, _ float64, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anomalies = append(f.anomalies, source)
}

func (f *fakeTelemetry) WriteZoneTransition(_, zoneID, edge string, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, edge+":"+zoneID)
}

func (f *fakeTelemetry) WriteDispatch(_, kind, status string, _, _ int, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches = append(f.dispatches, kind+":"+status)
}

type fakeAudit struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAudit) Create(_ context.Context, log *audit.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, log.Action)
	return nil
}

func (f *fakeAudit) List(context.Context, audit.Filter) (*audit.ListResult, error) {
	return &audit.ListResult{}, nil
}

// ─── Harness ────────────────────────────────────────────────────────

type harness struct {
	t         *testing.T
	m         *Monitor
	clk       *clock.Fake
	zones     *fakeZones
	loc       *fakeAdapter
	motion    *fakeAdapter
	audio     *fakeAdapter
	speech    *supervisedAdapter
	perms     *sensor.Permissions
	disp      *fakeDispatcher
	hub       *fakeHub
	vib       *fakeVibrator
	telemetry *fakeTelemetry
	audit     *fakeAudit
}

// newHarness opens a monitor over fakes. tweaks may swap dependencies
// before the monitor is built.
func newHarness(t *testing.T, cfg Config, tweaks ...func(*Deps)) *harness {
	t.Helper()
	clk := clock.NewFake(testStart)
	h := &harness{
		t:         t,
		clk:       clk,
		zones:     &fakeZones{zones: []geo.Zone{westminster, camden}},
		loc:       newFakeAdapter(sensor.KindLocation),
		motion:    newFakeAdapter(sensor.KindMotion),
		audio:     newFakeAdapter(sensor.KindAudio),
		perms:     sensor.NewPermissions(),
		disp:      &fakeDispatcher{},
		hub:       &fakeHub{},
		vib:       &fakeVibrator{},
		telemetry: &fakeTelemetry{},
		audit:     &fakeAudit{},
	}
	h.speech = &supervisedAdapter{
		fakeAdapter: newFakeAdapter(sensor.KindSpeech),
		sup:         sensor.NewSupervisor("speech", clk, sensor.RestartPolicy{Delay: time.Second}, func() error { return nil }),
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "phone-001"
	}

	deps := Deps{
		Zones:       h.zones,
		Location:    h.loc,
		Motion:      h.motion,
		Audio:       h.audio,
		Speech:      h.speech,
		Permissions: h.perms,
		Haptics:     h.vib,
		Dispatcher:  h.disp,
		Clock:       clk,
		Hub:         h.hub,
		Telemetry:   h.telemetry,
		Audit:       h.audit,
	}
	for _, tweak := range tweaks {
		tweak(&deps)
	}
	h.m = New(cfg, deps)
	h.m.spawn = func(fn func()) { fn() }

	if err := h.m.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(h.m.Close)
	return h
}

// fixAt delivers a fix through the location adapter at the current fake time.
func (h *harness) fixAt(p geo.GeoPoint) {
	h.t.Helper()
	h.loc.emit(sensor.Event{Fix: &sensor.Fix{Point: p, Accuracy: 5, Timestamp: h.clk.Now()}})
}

func (h *harness) enterZone() {
	h.t.Helper()
	h.fixAt(westminster.Center)
	if !h.m.Status().IsSafetyMonitoring {
		h.t.Fatal("monitoring did not start on zone entry")
	}
}

func (h *harness) motionSample(x, y, z float64) {
	h.motion.emit(sensor.Event{At: h.clk.Now(), Motion: &detector.MotionSample{X: x, Y: y, Z: z}})
}

func (h *harness) audioLevel(level float64) {
	l := level
	h.audio.emit(sensor.Event{At: h.clk.Now(), Level: &l})
}

func (h *harness) transcript(id, text string) {
	h.speech.emit(sensor.Event{At: h.clk.Now(), Transcript: &detector.TranscriptChunk{ID: id, Text: text, Final: true}})
}

// offset returns p moved north by meters.
func offset(p geo.GeoPoint, meters float64) geo.GeoPoint {
	return geo.GeoPoint{Lat: p.Lat + meters/111195.0, Lng: p.Lng}
}
