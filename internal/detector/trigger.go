package detector

import "math"

// Voice trigger defaults.
const (
	DefaultTriggerAcceleration = 3.0
	DefaultTriggerSpeed        = 2.0
)

// VoiceTrigger decides when physical signals should switch on keyword
// listening.
type VoiceTrigger struct {
	Acceleration float64 // m/s², compared against |signed acceleration|
	Speed        float64 // m/s
}

// DefaultVoiceTrigger returns the default thresholds.
func DefaultVoiceTrigger() VoiceTrigger {
	return VoiceTrigger{Acceleration: DefaultTriggerAcceleration, Speed: DefaultTriggerSpeed}
}

// Triggered reports whether listening should be enabled.
func (v VoiceTrigger) Triggered(acceleration, speed float64, motionPulse bool) bool {
	if motionPulse {
		return true
	}
	if math.Abs(acceleration) > v.Acceleration {
		return true
	}
	return speed > v.Speed
}
