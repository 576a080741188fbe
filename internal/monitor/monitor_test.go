package monitor

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/safewalk-core/internal/alert"
	"github.com/nerrad567/safewalk-core/internal/detector"
	"github.com/nerrad567/safewalk-core/internal/geo"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/safewalk-core/internal/sensor"
)

// ─── Zone membership ────────────────────────────────────────────────

func TestZoneEntryAndExit(t *testing.T) {
	h := newHarness(t, Config{})

	h.fixAt(westminster.Center)

	st := h.m.Status()
	if !st.IsSafetyMonitoring || st.IsSafe {
		t.Fatalf("after entry: monitoring=%v safe=%v, want true/false", st.IsSafetyMonitoring, st.IsSafe)
	}
	if st.CurrentZone == nil || st.CurrentZone.ID != westminster.ID {
		t.Fatalf("CurrentZone = %+v, want %s", st.CurrentZone, westminster.ID)
	}
	if h.m.State() != StateMonitoring {
		t.Errorf("State() = %s, want %s", h.m.State(), StateMonitoring)
	}
	for _, a := range []*fakeAdapter{h.motion, h.audio, h.speech.fakeAdapter} {
		if !a.running() {
			t.Errorf("%s adapter not running after entry", a.kind)
		}
	}

	notices := h.hub.notices()
	if len(notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(notices))
	}
	want := "You have entered Westminster. Safety monitoring has been activated."
	if notices[0].Type != NoticeZoneEntry || notices[0].Message != want || notices[0].Severity != "warning" {
		t.Errorf("entry notice = %+v", notices[0])
	}
	if len(h.vib.patterns) != 1 || !reflect.DeepEqual(h.vib.patterns[0], DefaultVibrationPattern) {
		t.Errorf("vibration patterns = %v, want one %v", h.vib.patterns, DefaultVibrationPattern)
	}

	h.clk.Advance(time.Minute)
	h.fixAt(outside)

	st = h.m.Status()
	if st.IsSafetyMonitoring || !st.IsSafe || st.CurrentZone != nil {
		t.Fatalf("after exit: monitoring=%v safe=%v zone=%v", st.IsSafetyMonitoring, st.IsSafe, st.CurrentZone)
	}
	for _, a := range []*fakeAdapter{h.motion, h.audio, h.speech.fakeAdapter} {
		if a.running() {
			t.Errorf("%s adapter still running after exit", a.kind)
		}
	}
	if !h.loc.running() {
		t.Error("location watch stopped on zone exit")
	}

	notices = h.hub.notices()
	if len(notices) != 2 {
		t.Fatalf("notices = %d, want 2", len(notices))
	}
	exit := notices[1]
	if exit.Type != NoticeZoneExit || exit.Message != "You have left the red zone. Safety monitoring deactivated." || exit.Severity != "success" {
		t.Errorf("exit notice = %+v", exit)
	}
}

func TestZoneEntryWithoutNameUsesGenericLabel(t *testing.T) {
	h := newHarness(t, Config{})
	h.zones.zones = []geo.Zone{{ID: "z-anon", Center: westminster.Center}}

	h.fixAt(westminster.Center)

	notices := h.hub.notices()
	if len(notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(notices))
	}
	if want := "You have entered a Red Zone. Safety monitoring has been activated."; notices[0].Message != want {
		t.Errorf("Message = %q, want %q", notices[0].Message, want)
	}
}

func TestRepeatedFixesInsideZoneKeepOneSession(t *testing.T) {
	h := newHarness(t, Config{})

	h.enterZone()
	first := h.m.SystemStatus().SessionID
	for i := 0; i < 3; i++ {
		h.clk.Advance(10 * time.Second)
		h.fixAt(offset(westminster.Center, float64(i)))
	}

	if got := h.motion.startCount(); got != 1 {
		t.Errorf("motion starts = %d, want 1", got)
	}
	if got := len(h.hub.notices()); got != 1 {
		t.Errorf("notices = %d, want 1", got)
	}
	if got := h.m.SystemStatus().SessionID; got != first {
		t.Errorf("SessionID changed from %s to %s", first, got)
	}
}

func TestMovingBetweenZonesKeepsSession(t *testing.T) {
	h := newHarness(t, Config{})

	h.enterZone()
	h.clk.Advance(time.Minute)
	h.fixAt(camden.Center)

	zone, ok := h.m.CurrentZone()
	if !ok || zone.ID != camden.ID {
		t.Fatalf("CurrentZone() = %+v, %v; want %s", zone, ok, camden.ID)
	}
	if !h.m.Status().IsSafetyMonitoring {
		t.Error("session ended on zone switch")
	}
	if got := h.motion.startCount(); got != 1 {
		t.Errorf("motion starts = %d, want 1", got)
	}
	if got := len(h.hub.notices()); got != 1 {
		t.Errorf("notices = %d, want 1 (switch is silent)", got)
	}
	want := []string{"enter:" + westminster.ID, "switch:" + camden.ID}
	if !reflect.DeepEqual(h.telemetry.transitions, want) {
		t.Errorf("transitions = %v, want %v", h.telemetry.transitions, want)
	}
}

func TestInvalidFixKeepsMembership(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.clk.Advance(time.Second)
	h.fixAt(geo.GeoPoint{Lat: math.NaN(), Lng: 0})

	if _, ok := h.m.CurrentZone(); !ok {
		t.Fatal("membership lost on invalid fix")
	}
	last := h.m.Status().SafetyData.LastLocation
	if last == nil || *last != westminster.Center {
		t.Errorf("LastLocation = %v, want %v", last, westminster.Center)
	}
}

func TestOutOfOrderFixDropped(t *testing.T) {
	h := newHarness(t, Config{})

	h.clk.Advance(time.Minute)
	h.enterZone()

	stale := sensor.Fix{Point: outside, Timestamp: testStart}
	h.m.HandleLocation(stale)

	if _, ok := h.m.CurrentZone(); !ok {
		t.Fatal("older fix was applied")
	}
	if ts := h.m.Status().SafetyData.Timestamp; !ts.Equal(testStart.Add(time.Minute)) {
		t.Errorf("Timestamp = %v, want %v", ts, testStart.Add(time.Minute))
	}
}

func TestZoneSourceFailureKeepsMembership(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.zones.err = errors.New("zones offline")
	h.clk.Advance(time.Second)
	h.fixAt(outside)

	if _, ok := h.m.CurrentZone(); !ok {
		t.Fatal("membership changed while zones were unavailable")
	}
	if last := h.m.Status().SafetyData.LastLocation; last == nil || *last != outside {
		t.Errorf("LastLocation = %v, want %v", last, outside)
	}
}

// ─── Session adapters ───────────────────────────────────────────────

func TestAdapterFailuresAreIsolated(t *testing.T) {
	h := newHarness(t, Config{})
	h.motion.setStartErr(sensor.ErrPermissionDenied)
	h.audio.setStartErr(sensor.ErrUnsupported)

	h.enterZone()

	if !h.speech.running() {
		t.Fatal("speech did not start alongside failing adapters")
	}
	got := h.m.SystemStatus().Adapters
	want := map[sensor.Kind]sensor.Status{
		sensor.KindLocation: sensor.StatusActive,
		sensor.KindMotion:   sensor.StatusUnavailable,
		sensor.KindAudio:    sensor.StatusUnsupported,
		sensor.KindSpeech:   sensor.StatusActive,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Adapters = %v, want %v", got, want)
	}
}

func TestQueuedStartAfterExitIsSkipped(t *testing.T) {
	h := newHarness(t, Config{})

	var queued []func()
	h.m.spawn = func(fn func()) { queued = append(queued, fn) }

	h.fixAt(westminster.Center)
	h.clk.Advance(time.Second)
	h.fixAt(outside)

	if len(queued) != 3 {
		t.Fatalf("queued starts = %d, want 3", len(queued))
	}
	for _, fn := range queued {
		fn()
	}

	for _, a := range []*fakeAdapter{h.motion, h.audio, h.speech.fakeAdapter} {
		if a.startCount() != 0 {
			t.Errorf("%s starts = %d, want 0", a.kind, a.startCount())
		}
	}
	if got := h.m.SystemStatus().DetectorsRunning; !reflect.DeepEqual(got, []string{"location"}) {
		t.Errorf("DetectorsRunning = %v, want [location]", got)
	}
}

func TestStartCompletingAfterExitIsStopped(t *testing.T) {
	h := newHarness(t, Config{})
	h.audio.runDuringStart(func() {
		h.clk.Advance(time.Second)
		h.fixAt(outside)
	})

	h.fixAt(westminster.Center)

	if h.m.Status().IsSafetyMonitoring {
		t.Fatal("session still active after exit")
	}
	if got := h.audio.startCount(); got != 1 {
		t.Errorf("audio starts = %d, want 1", got)
	}
	if h.audio.running() {
		t.Error("audio still running after its session ended")
	}
	if got := h.speech.startCount(); got != 0 {
		t.Errorf("speech starts = %d, want 0", got)
	}
	if got := h.m.SystemStatus().DetectorsRunning; !reflect.DeepEqual(got, []string{"location"}) {
		t.Errorf("DetectorsRunning = %v, want [location]", got)
	}
}

func TestLateStartFromEndedSessionKeepsLiveCapture(t *testing.T) {
	bus := newStreamBus()
	var audio *sensor.AudioAdapter
	h := newHarness(t, Config{}, func(d *Deps) {
		audio = sensor.NewAudioAdapter(sensor.Options{
			Bus:         bus,
			DeviceID:    "phone-001",
			Permissions: d.Permissions,
			Clock:       d.Clock,
		}, 0)
		d.Audio = audio
	})

	var queued []func()
	h.m.spawn = func(fn func()) { queued = append(queued, fn) }

	h.fixAt(westminster.Center)
	h.clk.Advance(time.Second)
	h.fixAt(outside)
	h.clk.Advance(time.Second)
	h.fixAt(westminster.Center)

	if len(queued) != 6 {
		t.Fatalf("queued starts = %d, want 6", len(queued))
	}
	// The live session's starts run before the ended session's.
	order := append(append([]func(){}, queued[3:]...), queued[:3]...)
	for _, fn := range order {
		fn()
	}

	ss := h.m.SystemStatus()
	if ss.State != StateMonitoring {
		t.Fatalf("State = %s, want monitoring", ss.State)
	}
	if ss.Adapters[sensor.KindAudio] != sensor.StatusActive {
		t.Errorf("audio status = %s, want active", ss.Adapters[sensor.KindAudio])
	}
	if !audio.Capturing() {
		t.Error("live session lost its audio capture")
	}
	if !bus.subscribed(mqtt.Topics{}.DeviceStream("phone-001", "audio")) {
		t.Error("audio stream unsubscribed while the session is live")
	}
}

func TestGrantedPermissionRestartsUnavailableAdapter(t *testing.T) {
	h := newHarness(t, Config{})
	h.audio.setStartErr(sensor.ErrPermissionDenied)
	h.enterZone()

	if got := h.m.SystemStatus().Adapters[sensor.KindAudio]; got != sensor.StatusUnavailable {
		t.Fatalf("audio status = %s, want unavailable", got)
	}

	h.audio.setStartErr(nil)
	h.perms.Set(sensor.CapabilityMicrophone, sensor.PermissionGranted)

	if got := h.audio.startCount(); got != 2 {
		t.Errorf("audio starts = %d, want 2", got)
	}
	if !h.audio.running() {
		t.Error("audio not running after grant")
	}
	if got := h.speech.startCount(); got != 1 {
		t.Errorf("speech starts = %d, want 1", got)
	}
	if got := h.m.SystemStatus().Adapters[sensor.KindAudio]; got != sensor.StatusActive {
		t.Errorf("audio status = %s, want active", got)
	}
}

func TestStaleSessionEventsDropped(t *testing.T) {
	h := newHarness(t, Config{})

	h.enterZone()
	old := h.motion.handler()

	h.clk.Advance(time.Second)
	h.fixAt(outside)
	h.clk.Advance(time.Second)
	h.enterZone()

	old(sensor.Event{Kind: sensor.KindMotion, At: h.clk.Now(), Motion: &detector.MotionSample{X: 30}})

	if _, ok := h.m.Pending(); ok {
		t.Fatal("event from an ended session opened a pending result")
	}
	if acc := h.m.Status().SafetyData.Acceleration; acc != 0 {
		t.Errorf("Acceleration = %v, want 0", acc)
	}
}

func TestExitCancelsSpeechRestart(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.speech.sup.Ended()
	if got := h.speech.sup.State(); got != sensor.SupervisorRestarting {
		t.Fatalf("supervisor state = %s, want restarting", got)
	}

	h.clk.Advance(100 * time.Millisecond)
	h.fixAt(outside)

	if got := h.speech.sup.State(); got != sensor.SupervisorStopped {
		t.Errorf("supervisor state = %s, want stopped", got)
	}
	if n := h.clk.Pending(); n != 0 {
		t.Errorf("pending timers = %d, want 0", n)
	}
	h.clk.Advance(time.Minute)
	if got := h.speech.startCount(); got != 1 {
		t.Errorf("speech starts = %d, want 1", got)
	}
}

// ─── Accident workflow ──────────────────────────────────────────────

func TestMotionAnomalyOpensPendingOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.motionSample(30, 0, 0)

	res, ok := h.m.Pending()
	if !ok {
		t.Fatal("no pending result after motion spike")
	}
	if res.TriggeredBy != detector.SourceMotion {
		t.Errorf("TriggeredBy = %s, want motion", res.TriggeredBy)
	}
	if h.m.State() != StateAccidentSuspected {
		t.Errorf("State() = %s, want %s", h.m.State(), StateAccidentSuspected)
	}
	st := h.m.Status()
	if !st.ShowSafetyPopup || st.AccidentDetails == nil {
		t.Errorf("Status popup=%v details=%v", st.ShowSafetyPopup, st.AccidentDetails)
	}

	h.clk.Advance(2 * time.Second)
	h.motionSample(0, 0, 1)

	again, _ := h.m.Pending()
	if !again.Timestamp.Equal(res.Timestamp) || again.TriggeredBy != res.TriggeredBy {
		t.Errorf("pending replaced: %+v -> %+v", res, again)
	}
	if got := len(h.hub.on(ChannelAccident)); got != 1 {
		t.Errorf("accident broadcasts = %d, want 1", got)
	}
	if got := len(h.disp.all()); got != 0 {
		t.Errorf("dispatches = %d, want 0 before confirmation", got)
	}
}

func TestAudioAnomalyAfterBaseline(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	for i := 0; i < detector.BaselineSamples; i++ {
		h.audioLevel(10)
	}
	if _, ok := h.m.Pending(); ok {
		t.Fatal("warm-up samples opened a pending result")
	}
	if b := h.m.SystemStatus().AudioBaseline; b == nil || *b != 10 {
		t.Errorf("AudioBaseline = %v, want 10", b)
	}

	h.audioLevel(25)

	res, ok := h.m.Pending()
	if !ok || res.TriggeredBy != detector.SourceAudio {
		t.Fatalf("Pending() = %+v, %v; want audio result", res, ok)
	}
}

func TestConfirmSafeDismisses(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()
	h.motionSample(30, 0, 0)

	report, err := h.m.Confirm(context.Background(), true)
	if err != nil || report != nil {
		t.Fatalf("Confirm(safe) = %v, %v; want nil, nil", report, err)
	}
	if h.m.State() != StateMonitoring {
		t.Errorf("State() = %s, want %s", h.m.State(), StateMonitoring)
	}
	if h.m.Status().ShowSafetyPopup {
		t.Error("popup still shown after confirm")
	}
	if got := len(h.disp.all()); got != 0 {
		t.Errorf("dispatches = %d, want 0", got)
	}

	if _, err := h.m.Confirm(context.Background(), true); !errors.Is(err, ErrNothingPending) {
		t.Errorf("second Confirm() error = %v, want ErrNothingPending", err)
	}
}

func TestConfirmHelpDispatches(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()
	h.motionSample(30, 0, 0)

	report, err := h.m.Confirm(context.Background(), false)
	if err != nil {
		t.Fatalf("Confirm(help) error = %v", err)
	}
	if report == nil || report.Kind != alert.KindAccidentConfirmed {
		t.Fatalf("report = %+v, want accident_confirmed", report)
	}

	calls := h.disp.all()
	if len(calls) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.kind != alert.KindAccidentConfirmed {
		t.Errorf("kind = %s", c.kind)
	}
	if c.location == nil || *c.location != westminster.Center {
		t.Errorf("location = %v, want %v", c.location, westminster.Center)
	}
	want := "Possible accident detected (sudden_acceleration (30.0 m/s²)). User confirmed they need help."
	if c.message != want {
		t.Errorf("message = %q, want %q", c.message, want)
	}
	if h.m.State() != StateMonitoring {
		t.Errorf("State() = %s, want %s", h.m.State(), StateMonitoring)
	}
	if last := h.m.SystemStatus().LastDispatch; last == nil || last.ID != report.ID {
		t.Errorf("LastDispatch = %+v, want %s", last, report.ID)
	}
	if got := h.telemetry.dispatches; !reflect.DeepEqual(got, []string{"accident_confirmed:sent"}) {
		t.Errorf("telemetry dispatches = %v", got)
	}
	if got := len(h.hub.on(ChannelDispatch)); got != 1 {
		t.Errorf("dispatch broadcasts = %d, want 1", got)
	}
}

func TestConfirmHelpReportsDispatchFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.disp.err = errors.New("admin store down")
	h.enterZone()
	h.motionSample(30, 0, 0)

	report, err := h.m.Confirm(context.Background(), false)
	if !errors.Is(err, alert.ErrDispatchFailed) {
		t.Fatalf("Confirm() error = %v, want ErrDispatchFailed", err)
	}
	if report == nil || report.Status != alert.StatusFailed {
		t.Fatalf("report = %+v, want failed report", report)
	}
	if _, ok := h.m.Pending(); ok {
		t.Error("pending result kept after failed dispatch")
	}
}

func TestAnomalyOutsideZoneIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	h.fixAt(outside)

	h.m.Start()
	h.motionSample(30, 0, 0)

	if _, ok := h.m.Pending(); ok {
		t.Fatal("anomaly outside a red zone opened a pending result")
	}
	if h.m.State() != StateMonitoring {
		t.Errorf("State() = %s, want %s", h.m.State(), StateMonitoring)
	}
	if got := h.telemetry.anomalies; !reflect.DeepEqual(got, []string{"motion"}) {
		t.Errorf("telemetry anomalies = %v, want [motion]", got)
	}
}

// ─── Keyword listening ──────────────────────────────────────────────

func TestKeywordRequiresListening(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.transcript("c1", "please help me")
	if got := len(h.disp.all()); got != 0 {
		t.Fatalf("dispatches = %d before listening, want 0", got)
	}

	if err := h.m.EnableKeywordListening(); err != nil {
		t.Fatalf("EnableKeywordListening() error = %v", err)
	}
	h.transcript("c2", "Please HELP me")

	calls := h.disp.all()
	if len(calls) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(calls))
	}
	if calls[0].kind != alert.KindVoiceKeyword || calls[0].message != `Emergency keyword "help" detected!` {
		t.Errorf("dispatch = %+v", calls[0])
	}
	if calls[0].location == nil || *calls[0].location != westminster.Center {
		t.Errorf("location = %v", calls[0].location)
	}
	if !h.m.Status().SafetyData.KeywordDetected {
		t.Error("KeywordDetected not set")
	}
	if _, ok := h.m.Pending(); ok {
		t.Error("keyword opened a pending result; it dispatches directly")
	}

	h.transcript("c2", "Please HELP me")
	if got := len(h.disp.all()); got != 1 {
		t.Errorf("dispatches = %d after repeated chunk, want 1", got)
	}
}

func TestEnableKeywordListeningRequiresSession(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.m.EnableKeywordListening(); !errors.Is(err, ErrNotMonitoring) {
		t.Errorf("EnableKeywordListening() error = %v, want ErrNotMonitoring", err)
	}
}

func TestEnableKeywordListeningRestartsSpeech(t *testing.T) {
	h := newHarness(t, Config{})
	h.speech.setStartErr(sensor.ErrPermissionDenied)
	h.enterZone()

	if got := h.m.SystemStatus().Adapters[sensor.KindSpeech]; got != sensor.StatusUnavailable {
		t.Fatalf("speech status = %s, want unavailable", got)
	}

	h.speech.setStartErr(nil)
	if err := h.m.EnableKeywordListening(); err != nil {
		t.Fatalf("EnableKeywordListening() error = %v", err)
	}

	if got := h.speech.startCount(); got != 2 {
		t.Errorf("speech starts = %d, want 2", got)
	}
	ss := h.m.SystemStatus()
	if ss.Adapters[sensor.KindSpeech] != sensor.StatusActive || !ss.KeywordListening {
		t.Errorf("speech status = %s listening = %v", ss.Adapters[sensor.KindSpeech], ss.KeywordListening)
	}
}

func TestVoiceTrigger(t *testing.T) {
	tests := []struct {
		name string
		act  func(h *harness)
		want bool
	}{
		{
			name: "calm walking",
			act: func(h *harness) {
				h.motionSample(0, 0, 9.81)
				h.clk.Advance(time.Second)
				h.fixAt(offset(westminster.Center, 1.5))
			},
			want: false,
		},
		{
			name: "acceleration above threshold",
			act:  func(h *harness) { h.motionSample(0, 0, 15) },
			want: true,
		},
		{
			name: "motion pulse",
			act:  func(h *harness) { h.motionSample(0, 0, 1) },
			want: true,
		},
		{
			name: "running speed",
			act: func(h *harness) {
				h.clk.Advance(time.Second)
				h.fixAt(offset(westminster.Center, 10))
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.enterZone()
			tt.act(h)
			if got := h.m.SystemStatus().KeywordListening; got != tt.want {
				t.Errorf("KeywordListening = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpeedFromConsecutiveFixes(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.clk.Advance(2 * time.Second)
	h.fixAt(offset(westminster.Center, 10))

	speed := h.m.Status().SafetyData.CurrentSpeed
	if math.Abs(speed-5) > 0.05 {
		t.Errorf("CurrentSpeed = %.3f, want ~5", speed)
	}
}

func TestOutOfOrderMotionDropped(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.clk.Advance(time.Second)
	h.motionSample(0, 0, 15)
	h.motion.emit(sensor.Event{At: testStart, Motion: &detector.MotionSample{Z: 9.81}})

	acc := h.m.Status().SafetyData.Acceleration
	if math.Abs(acc-(15-detector.Gravity)) > 1e-9 {
		t.Errorf("Acceleration = %v, want %v", acc, 15-detector.Gravity)
	}
}

// ─── Stationary ─────────────────────────────────────────────────────

func TestStationaryDispatchesOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.clk.Advance(4 * time.Minute)
	if got := len(h.disp.all()); got != 0 {
		t.Fatalf("dispatches = %d before deadline, want 0", got)
	}

	h.clk.Advance(time.Minute)
	calls := h.disp.all()
	if len(calls) != 1 {
		t.Fatalf("dispatches = %d at deadline, want 1", len(calls))
	}
	if calls[0].kind != alert.KindStationary || calls[0].message != "You have been stationary for 5 minutes." {
		t.Errorf("dispatch = %+v", calls[0])
	}
	if calls[0].location == nil || *calls[0].location != westminster.Center {
		t.Errorf("location = %v", calls[0].location)
	}

	h.fixAt(westminster.Center)
	h.clk.Advance(10 * time.Minute)
	h.fixAt(westminster.Center)
	if got := len(h.disp.all()); got != 1 {
		t.Errorf("dispatches = %d, want 1 per stationary period", got)
	}
}

func TestStationaryRearmsAfterMovement(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.clk.Advance(3 * time.Minute)
	h.fixAt(offset(westminster.Center, 100))

	h.clk.Advance(3 * time.Minute)
	if got := len(h.disp.all()); got != 0 {
		t.Fatalf("dispatches = %d, want 0 after moving", got)
	}
	h.clk.Advance(2 * time.Minute)
	if got := len(h.disp.all()); got != 1 {
		t.Errorf("dispatches = %d, want 1", got)
	}
}

func TestStationaryConfiguredDuration(t *testing.T) {
	h := newHarness(t, Config{StationaryDuration: 2 * time.Minute})
	h.enterZone()

	h.clk.Advance(2 * time.Minute)
	calls := h.disp.all()
	if len(calls) != 1 || calls[0].message != "You have been stationary for 2 minutes." {
		t.Errorf("dispatches = %+v", calls)
	}
}

func TestExitStopsStationaryTimer(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.clk.Advance(time.Minute)
	h.fixAt(outside)

	if n := h.clk.Pending(); n != 0 {
		t.Errorf("pending timers = %d, want 0", n)
	}
	h.clk.Advance(10 * time.Minute)
	if got := len(h.disp.all()); got != 0 {
		t.Errorf("dispatches = %d, want 0", got)
	}
}

// ─── Control surface ────────────────────────────────────────────────

func TestForcedStartAndStop(t *testing.T) {
	h := newHarness(t, Config{})

	h.m.Start()
	h.m.Start()

	ss := h.m.SystemStatus()
	if ss.State != StateMonitoring || !ss.ForcedSession || ss.SessionStartedAt == nil {
		t.Fatalf("SystemStatus = %+v", ss)
	}
	if got := h.motion.startCount(); got != 1 {
		t.Errorf("motion starts = %d, want 1", got)
	}
	if got := len(h.hub.notices()); got != 0 {
		t.Errorf("notices = %d, want 0 for a forced start", got)
	}

	h.m.Stop()

	if h.m.Status().IsSafetyMonitoring {
		t.Fatal("still monitoring after Stop")
	}
	for _, a := range []*fakeAdapter{h.motion, h.audio, h.speech.fakeAdapter} {
		if a.running() {
			t.Errorf("%s still running after Stop", a.kind)
		}
	}
	if _, ok := h.m.SessionStartedAt(); ok {
		t.Error("SessionStartedAt reported after Stop")
	}
}

func TestStopSuppressesUntilNextEntry(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()

	h.m.Stop()
	h.clk.Advance(time.Second)
	h.fixAt(westminster.Center)
	if h.m.Status().IsSafetyMonitoring {
		t.Fatal("monitoring resumed inside the same zone after Stop")
	}

	h.clk.Advance(time.Second)
	h.fixAt(outside)
	h.clk.Advance(time.Second)
	h.fixAt(westminster.Center)
	if !h.m.Status().IsSafetyMonitoring {
		t.Error("monitoring did not resume on the next entry")
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	h := newHarness(t, Config{})
	h.enterZone()
	h.motionSample(30, 0, 0)

	h.m.Reset()

	if h.m.State() != StateIdle {
		t.Errorf("State() = %s, want idle", h.m.State())
	}
	if _, ok := h.m.Pending(); ok {
		t.Error("pending result survived Reset")
	}
	if _, ok := h.m.CurrentZone(); ok {
		t.Error("zone survived Reset")
	}
	if got := h.loc.startCount(); got != 2 {
		t.Errorf("location starts = %d, want 2", got)
	}
	if !h.loc.running() {
		t.Error("location watch not restarted")
	}

	h.fixAt(westminster.Center)
	if !h.m.Status().IsSafetyMonitoring {
		t.Fatal("no fresh session after Reset")
	}
	if got := len(h.hub.notices()); got != 2 {
		t.Errorf("notices = %d, want 2", got)
	}
}

func TestTriggerSOS(t *testing.T) {
	h := newHarness(t, Config{})

	report, err := h.m.TriggerSOS(context.Background(), "")
	if err != nil {
		t.Fatalf("TriggerSOS() error = %v", err)
	}
	if report.Kind != alert.KindManualSOS {
		t.Errorf("Kind = %s", report.Kind)
	}
	calls := h.disp.all()
	if calls[0].message != DefaultSOSMessage || calls[0].location != nil {
		t.Errorf("dispatch = %+v, want default message and no location", calls[0])
	}

	h.fixAt(outside)
	if _, err := h.m.TriggerSOS(context.Background(), "car broke down"); err != nil {
		t.Fatalf("TriggerSOS() error = %v", err)
	}
	calls = h.disp.all()
	if calls[1].message != "car broke down" || calls[1].location == nil || *calls[1].location != outside {
		t.Errorf("dispatch = %+v", calls[1])
	}
}

func TestTriggerSOSWithoutDispatcher(t *testing.T) {
	m := New(Config{}, Deps{Zones: &fakeZones{}, Location: newFakeAdapter(sensor.KindLocation)})
	if _, err := m.TriggerSOS(context.Background(), ""); !errors.Is(err, ErrNoDispatcher) {
		t.Errorf("TriggerSOS() error = %v, want ErrNoDispatcher", err)
	}
}

func TestOpenTwice(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.m.Open(context.Background()); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("Open() error = %v, want ErrAlreadyOpen", err)
	}
}

func TestSessionSideEffects(t *testing.T) {
	h := newHarness(t, Config{})

	h.enterZone()
	h.clk.Advance(time.Second)
	h.fixAt(outside)

	if want := []string{"zone_enter", "zone_exit"}; !reflect.DeepEqual(h.audit.actions, want) {
		t.Errorf("audit actions = %v, want %v", h.audit.actions, want)
	}
	if want := []string{"enter:" + westminster.ID, "exit:" + westminster.ID}; !reflect.DeepEqual(h.telemetry.transitions, want) {
		t.Errorf("transitions = %v, want %v", h.telemetry.transitions, want)
	}
	if h.telemetry.samples != 1 {
		t.Errorf("samples = %d, want 1", h.telemetry.samples)
	}
	if got := len(h.hub.on(ChannelStatus)); got != 2 {
		t.Errorf("status broadcasts = %d, want 2", got)
	}
}

// ─── Location watch ─────────────────────────────────────────────────

func newLocationHarness(t *testing.T, initial sensor.PermissionState) (*harness, *streamBus) {
	t.Helper()
	bus := newStreamBus()
	h := newHarness(t, Config{}, func(d *Deps) {
		if initial != "" {
			d.Permissions.Set(sensor.CapabilityLocation, initial)
		}
		d.Location = sensor.NewLocationAdapter(sensor.Options{
			Bus:         bus,
			DeviceID:    "phone-001",
			Permissions: d.Permissions,
			Clock:       d.Clock,
		}, sensor.LocationOptions{})
	})
	return h, bus
}

func TestLocationWatchStartsWhenPermissionGranted(t *testing.T) {
	h, bus := newLocationHarness(t, sensor.PermissionDenied)
	topic := mqtt.Topics{}.DeviceStream("phone-001", "location")

	if got := h.m.SystemStatus().Adapters[sensor.KindLocation]; got != sensor.StatusUnavailable {
		t.Fatalf("location status = %s, want unavailable", got)
	}
	if bus.subscribed(topic) {
		t.Fatal("location subscribed without permission")
	}

	h.perms.Set(sensor.CapabilityLocation, sensor.PermissionGranted)

	ss := h.m.SystemStatus()
	if ss.Adapters[sensor.KindLocation] != sensor.StatusActive {
		t.Errorf("location status = %s, want active", ss.Adapters[sensor.KindLocation])
	}
	if !reflect.DeepEqual(ss.DetectorsRunning, []string{"location"}) {
		t.Errorf("DetectorsRunning = %v, want [location]", ss.DetectorsRunning)
	}
	if !bus.subscribed(topic) {
		t.Error("location stream not subscribed after grant")
	}
}

func TestLocationWatchRecoversFromRevocation(t *testing.T) {
	h, bus := newLocationHarness(t, "")
	topic := mqtt.Topics{}.DeviceStream("phone-001", "location")

	if !bus.subscribed(topic) {
		t.Fatal("location watch did not start on Open")
	}

	h.perms.Set(sensor.CapabilityLocation, sensor.PermissionDenied)
	if got := h.m.SystemStatus().Adapters[sensor.KindLocation]; got != sensor.StatusUnavailable {
		t.Fatalf("location status after revoke = %s, want unavailable", got)
	}
	if bus.subscribed(topic) {
		t.Fatal("location still subscribed after revoke")
	}

	h.perms.Set(sensor.CapabilityLocation, sensor.PermissionGranted)
	if got := h.m.SystemStatus().Adapters[sensor.KindLocation]; got != sensor.StatusActive {
		t.Errorf("location status after grant = %s, want active", got)
	}
	if !bus.subscribed(topic) {
		t.Error("location not subscribed after grant")
	}
}

func TestNoRestartAfterClose(t *testing.T) {
	h, bus := newLocationHarness(t, sensor.PermissionDenied)
	h.m.Close()

	h.perms.Set(sensor.CapabilityLocation, sensor.PermissionGranted)

	if bus.subscribed(mqtt.Topics{}.DeviceStream("phone-001", "location")) {
		t.Error("location watch started after Close")
	}
}
