package detector

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/safewalk-core/internal/clock"
)

// Audio detector parameters. Levels are byte-scaled spectrum averages (0-255).
const (
	BaselineSamples    = 50
	LoudFactor         = 2.0
	SilenceFactor      = 0.3
	SilenceMinBaseline = 50.0
	AudioWindow        = 1500 * time.Millisecond
)

// AudioKind distinguishes loud and silent anomalies.
type AudioKind string

const (
	AudioLoud    AudioKind = "loud"
	AudioSilence AudioKind = "silence"
)

// AudioEvent is emitted when an audio pulse rises.
type AudioEvent struct {
	Kind     AudioKind
	Level    float64
	Baseline float64
	Pulse    Pulse
}

// Result converts the event into an AccidentResult.
func (e AudioEvent) Result() AccidentResult {
	return AccidentResult{
		TriggeredBy: SourceAudio,
		Confidence:  AudioConfidence,
		Detail:      fmt.Sprintf("%s audio (level %.1f, baseline %.1f)", e.Kind, e.Level, e.Baseline),
		Timestamp:   e.Pulse.At,
	}
}

// AudioDetector compares levels against the mean of the first
// BaselineSamples readings after start or Reset.
type AudioDetector struct {
	clock    clock.Clock
	count    int
	sum      float64
	baseline float64
	pulse    Pulse
}

// NewAudioDetector creates an audio detector on the given clock.
func NewAudioDetector(clk clock.Clock) *AudioDetector {
	return &AudioDetector{clock: clk}
}

// Observe feeds one level. Warm-up samples are never evaluated.
func (d *AudioDetector) Observe(level float64) (AudioEvent, bool) {
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return AudioEvent{}, false
	}

	if d.count < BaselineSamples {
		d.count++
		d.sum += level
		if d.count == BaselineSamples {
			d.baseline = d.sum / BaselineSamples
		}
		return AudioEvent{}, false
	}

	var kind AudioKind
	switch {
	case level > LoudFactor*d.baseline:
		kind = AudioLoud
	case level < SilenceFactor*d.baseline && d.baseline > SilenceMinBaseline:
		kind = AudioSilence
	default:
		return AudioEvent{}, false
	}

	now := d.clock.Now()
	if d.pulse.ActiveAt(now) {
		return AudioEvent{}, false
	}
	d.pulse = Pulse{At: now, Window: AudioWindow}
	return AudioEvent{Kind: kind, Level: level, Baseline: d.baseline, Pulse: d.pulse}, true
}

// Baseline returns the computed baseline once warm-up is complete.
func (d *AudioDetector) Baseline() (float64, bool) {
	return d.baseline, d.count >= BaselineSamples
}

// Active reports whether the anomaly pulse is raised now.
func (d *AudioDetector) Active() bool {
	return d.pulse.ActiveAt(d.clock.Now())
}

// Reset restarts warm-up.
func (d *AudioDetector) Reset() {
	*d = AudioDetector{clock: d.clock}
}
