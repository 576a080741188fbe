package detector

import "time"

// Source names the detector that produced an AccidentResult.
type Source string

const (
	SourceMotion     Source = "motion"
	SourceAudio      Source = "audio"
	SourceVoice      Source = "voice"
	SourceStationary Source = "stationary"
)

// Confidence assigned to results from each source.
const (
	MotionConfidence     = 0.7
	AudioConfidence      = 0.6
	VoiceConfidence      = 0.9
	StationaryConfidence = 0.8
)

// Pulse is a momentary detector trigger with a validity window.
type Pulse struct {
	At     time.Time     `json:"at"`
	Window time.Duration `json:"window"`
}

// ActiveAt reports whether the pulse is still raised at t.
// The window is half-open: [At, At+Window).
func (p Pulse) ActiveAt(t time.Time) bool {
	if p.At.IsZero() || t.Before(p.At) {
		return false
	}
	return t.Sub(p.At) < p.Window
}

// ExpiresAt returns the first instant at which the pulse is no longer active.
func (p Pulse) ExpiresAt() time.Time {
	return p.At.Add(p.Window)
}

// AccidentResult describes a suspected accident awaiting user confirmation,
// or a high-confidence event dispatched directly.
type AccidentResult struct {
	TriggeredBy Source    `json:"triggeredBy"`
	Confidence  float64   `json:"confidence"`
	Detail      string    `json:"detail"`
	Timestamp   time.Time `json:"timestamp"`
}
