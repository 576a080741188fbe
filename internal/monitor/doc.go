// Package monitor is the in-zone safety state machine.
//
// A Monitor watches location for the whole app session. Entering a red zone
// opens a monitoring session that starts the motion, audio and speech
// adapters and feeds their samples through the anomaly detectors. Motion
// and audio anomalies inside a zone raise a pending accident result that
// the user must confirm or dismiss; keyword and stationary events dispatch
// an alert straight away. Leaving the zone ends the session and stops every
// session adapter before the call returns.
//
// State changes happen under one mutex. Adapter starts, alert dispatch and
// outbound pushes run after it is released, so adapters can deliver events
// from any goroutine. Results from a session that has since ended are
// discarded by generation.
package monitor
