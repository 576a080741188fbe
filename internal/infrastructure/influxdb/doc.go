// Package influxdb writes SafeWalk safety telemetry to InfluxDB v2.
//
// It wraps influxdb-client-go with connection management and a handful of
// typed write helpers:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSafetySample("phone-001", sessionID, 1.4, 0.2, lat, lng, true, time.Now())
//
// Writes are non-blocking and batched. Asynchronous write failures are
// delivered to the callback set with SetOnError. Writes on a nil or closed
// client are silently dropped, so callers can hold a nil *Client when
// telemetry is disabled.
package influxdb
