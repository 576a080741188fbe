package detector

import (
	"time"

	"github.com/nerrad567/safewalk-core/internal/clock"
	"github.com/nerrad567/safewalk-core/internal/geo"
)

// Stationary defaults.
const (
	DefaultStationaryDuration = 5 * time.Minute
	DefaultMovementThresholdM = 25.0
)

// StationaryEvent is emitted once per stationary period.
type StationaryEvent struct {
	Location geo.GeoPoint
	Elapsed  time.Duration
	At       time.Time
}

// Minutes returns the elapsed stationary time in whole minutes.
func (e StationaryEvent) Minutes() int {
	return int(e.Elapsed / time.Minute)
}

// Result converts the event into an AccidentResult.
func (e StationaryEvent) Result() AccidentResult {
	return AccidentResult{
		TriggeredBy: SourceStationary,
		Confidence:  StationaryConfidence,
		Detail:      "no movement for " + e.Elapsed.Truncate(time.Second).String(),
		Timestamp:   e.At,
	}
}

// StationaryDetector fires when displacement from an anchor position stays
// below a threshold for a duration. Moving beyond the threshold re-anchors
// and rearms it.
type StationaryDetector struct {
	clock     clock.Clock
	duration  time.Duration
	threshold float64

	anchor    geo.GeoPoint
	anchorAt  time.Time
	last      geo.GeoPoint
	hasAnchor bool
	fired     bool
}

// NewStationaryDetector creates a detector. Non-positive values select the
// defaults.
func NewStationaryDetector(clk clock.Clock, duration time.Duration, thresholdMeters float64) *StationaryDetector {
	if duration <= 0 {
		duration = DefaultStationaryDuration
	}
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultMovementThresholdM
	}
	return &StationaryDetector{clock: clk, duration: duration, threshold: thresholdMeters}
}

// Duration returns the configured stationary duration.
func (d *StationaryDetector) Duration() time.Duration { return d.duration }

// Observe feeds a position fix.
func (d *StationaryDetector) Observe(p geo.GeoPoint) (StationaryEvent, bool) {
	if !p.Valid() {
		return StationaryEvent{}, false
	}
	now := d.clock.Now()
	d.last = p

	if !d.hasAnchor || geo.Haversine(d.anchor, p) >= d.threshold {
		d.anchor = p
		d.anchorAt = now
		d.hasAnchor = true
		d.fired = false
		return StationaryEvent{}, false
	}
	return d.check(now)
}

// Poll evaluates the condition against the last fix without a new one. It
// lets a timer fire the event when fixes stop arriving.
func (d *StationaryDetector) Poll() (StationaryEvent, bool) {
	if !d.hasAnchor {
		return StationaryEvent{}, false
	}
	return d.check(d.clock.Now())
}

// Deadline returns when the detector will fire if the user does not move.
// It reports false when there is no anchor or the event already fired.
func (d *StationaryDetector) Deadline() (time.Time, bool) {
	if !d.hasAnchor || d.fired {
		return time.Time{}, false
	}
	return d.anchorAt.Add(d.duration), true
}

func (d *StationaryDetector) check(now time.Time) (StationaryEvent, bool) {
	if d.fired {
		return StationaryEvent{}, false
	}
	elapsed := now.Sub(d.anchorAt)
	if elapsed < d.duration {
		return StationaryEvent{}, false
	}
	d.fired = true
	return StationaryEvent{Location: d.last, Elapsed: elapsed, At: now}, true
}

// Reset drops the anchor.
func (d *StationaryDetector) Reset() {
	d.hasAnchor = false
	d.fired = false
	d.anchor = geo.GeoPoint{}
	d.last = geo.GeoPoint{}
	d.anchorAt = time.Time{}
}
