package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by SafeWalk.
const (
	MeasurementSafetySample   = "safety_sample"
	MeasurementAnomaly        = "safety_anomaly"
	MeasurementZoneTransition = "zone_transition"
	MeasurementDispatch       = "sos_dispatch"
)

// WriteSafetySample records one snapshot of the monitored user's motion state.
// Location is omitted when hasLocation is false.
func (c *Client) WriteSafetySample(deviceID, sessionID string, speed, acceleration float64, lat, lng float64, hasLocation bool, ts time.Time) {
	fields := map[string]interface{}{
		"speed":        speed,
		"acceleration": acceleration,
	}
	if hasLocation {
		fields["lat"] = lat
		fields["lng"] = lng
	}
	c.WritePointWithTime(MeasurementSafetySample, map[string]string{
		"device_id": deviceID,
		"session":   sessionID,
	}, fields, ts)
}

// WriteAnomaly records a detector event. source is the detector name
// (motion, audio, voice, stationary).
func (c *Client) WriteAnomaly(deviceID, sessionID, source, detail string, confidence float64, ts time.Time) {
	c.WritePointWithTime(MeasurementAnomaly, map[string]string{
		"device_id": deviceID,
		"session":   sessionID,
		"source":    source,
	}, map[string]interface{}{
		"confidence": confidence,
		"detail":     detail,
	}, ts)
}

// WriteZoneTransition records a red zone enter, exit or switch.
func (c *Client) WriteZoneTransition(deviceID, zoneID, edge string, ts time.Time) {
	c.WritePointWithTime(MeasurementZoneTransition, map[string]string{
		"device_id": deviceID,
		"zone_id":   zoneID,
	}, map[string]interface{}{
		"edge": edge,
	}, ts)
}

// WriteDispatch records the outcome of an SOS dispatch.
func (c *Client) WriteDispatch(deviceID, kind, status string, contactsNotified, failures int, ts time.Time) {
	c.WritePointWithTime(MeasurementDispatch, map[string]string{
		"device_id": deviceID,
		"kind":      kind,
		"status":    status,
	}, map[string]interface{}{
		"contacts_notified": contactsNotified,
		"failures":          failures,
	}, ts)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.WritePointWithTime(measurement, tags, fields, c.now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
// Writes on a closed or nil client are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
