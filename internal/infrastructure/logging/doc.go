// Package logging provides structured logging for SafeWalk Core.
//
// It wraps log/slog so every component logs with the same format and the
// same default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("zone entered", "zone_id", zone.ID)
//
// # Privacy
//
// Never log tokens or exact user coordinates at info level. Positions belong
// in telemetry, not in log aggregation.
package logging
