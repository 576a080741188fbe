package detector

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/safewalk-core/internal/clock"
)

// Motion thresholds in m/s² on the acceleration-including-gravity vector.
const (
	AccelerationThreshold = 25.0
	DecelerationThreshold = 3.0
	MotionWindow          = time.Second

	// Gravity is subtracted from the magnitude to get the signed
	// acceleration reported in SafetyData.
	Gravity = 9.81
)

// MotionKind distinguishes the two motion anomalies.
type MotionKind string

const (
	SuddenAcceleration MotionKind = "sudden_acceleration"
	SuddenDeceleration MotionKind = "sudden_deceleration"
)

// MotionSample is one accelerometer reading including gravity.
type MotionSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the length of the acceleration vector.
func (s MotionSample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Valid reports whether every component is finite.
func (s MotionSample) Valid() bool {
	for _, v := range [...]float64{s.X, s.Y, s.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MotionEvent is emitted when a motion pulse rises.
type MotionEvent struct {
	Kind      MotionKind
	Magnitude float64
	Pulse     Pulse
}

// Result converts the event into an AccidentResult.
func (e MotionEvent) Result() AccidentResult {
	return AccidentResult{
		TriggeredBy: SourceMotion,
		Confidence:  MotionConfidence,
		Detail:      fmt.Sprintf("%s (%.1f m/s²)", e.Kind, e.Magnitude),
		Timestamp:   e.Pulse.At,
	}
}

// MotionDetector flags sudden acceleration and deceleration.
type MotionDetector struct {
	clock clock.Clock
	accel Pulse
	decel Pulse
	last  float64
}

// NewMotionDetector creates a motion detector on the given clock.
func NewMotionDetector(clk clock.Clock) *MotionDetector {
	return &MotionDetector{clock: clk}
}

// Observe feeds one sample. It returns an event only when a pulse rises;
// a repeat trigger inside the window does not re-emit or extend it.
func (d *MotionDetector) Observe(s MotionSample) (MotionEvent, bool) {
	if !s.Valid() {
		return MotionEvent{}, false
	}
	now := d.clock.Now()
	mag := s.Magnitude()
	d.last = mag

	var pulse *Pulse
	var kind MotionKind
	switch {
	case mag > AccelerationThreshold:
		pulse, kind = &d.accel, SuddenAcceleration
	case mag < DecelerationThreshold:
		pulse, kind = &d.decel, SuddenDeceleration
	default:
		return MotionEvent{}, false
	}

	if pulse.ActiveAt(now) {
		return MotionEvent{}, false
	}
	*pulse = Pulse{At: now, Window: MotionWindow}
	return MotionEvent{Kind: kind, Magnitude: mag, Pulse: *pulse}, true
}

// Active reports whether the pulse of the given kind is raised now.
func (d *MotionDetector) Active(kind MotionKind) bool {
	now := d.clock.Now()
	switch kind {
	case SuddenAcceleration:
		return d.accel.ActiveAt(now)
	case SuddenDeceleration:
		return d.decel.ActiveAt(now)
	}
	return false
}

// AnyActive reports whether either motion pulse is raised now.
func (d *MotionDetector) AnyActive() bool {
	return d.Active(SuddenAcceleration) || d.Active(SuddenDeceleration)
}

// SignedAcceleration returns the last magnitude minus gravity.
func (d *MotionDetector) SignedAcceleration() float64 {
	if d.last == 0 {
		return 0
	}
	return d.last - Gravity
}

// Reset clears pulses and the last reading.
func (d *MotionDetector) Reset() {
	d.accel = Pulse{}
	d.decel = Pulse{}
	d.last = 0
}
