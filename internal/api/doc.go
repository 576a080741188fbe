// Package api implements the HTTP REST API and WebSocket server for the
// SafeWalk core.
//
// This package provides:
//   - REST endpoints for the safety monitor (status, confirm, SOS, controls)
//   - Sign-in of the app user from a bearer JWT
//   - Permission listing and gesture-backed permission requests
//   - WebSocket hub pushing safety notices, status and accident prompts
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API server sits between the phone UI and the safety monitor. Sensor
// data never passes through here: it arrives on the MQTT bus. The UI reads
// state, answers the accident prompt and triggers SOS through REST, and
// receives pushed events over WebSocket.
//
// # Security
//
// Safety routes are open to the local UI so an SOS never waits on a login.
// Admin views (SOS alerts, audit log) require a bearer JWT signed with the
// configured secret.
//
// # Dispatch Outcomes
//
// An alert dispatch that delivered nothing answers 502 with the full
// dispatch report, so the UI can tell "alert sent" from "alert failed".
package api
