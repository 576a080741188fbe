// Package detector holds the SafeWalk anomaly detectors.
//
// Each detector consumes one normalised sensor stream and emits typed events
// on transitions only:
//
//   - MotionDetector: sudden acceleration (|a| > 25) or deceleration (|a| < 3)
//   - AudioDetector: loudness or silence relative to a warm-up baseline
//   - KeywordDetector: emergency vocabulary in final speech transcripts
//   - StationaryDetector: no meaningful displacement for a duration
//
// Pulse detectors (motion, audio) return events carrying a Pulse, a
// timestamped flag with a validity window. Time comes from an injected
// clock.Clock so window logic is testable without sleeping.
//
// Detectors are not safe for concurrent use. The monitor serialises all
// input through its own lock.
package detector
