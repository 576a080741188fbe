// Package zone is the red-zone data source.
//
// Zones live in the red_zones SQLite table. The Registry loads them once per
// app session and hands out copies; an optional Redis cache lets several core
// instances share one load. Rows whose coordinates do not parse are dropped
// at load time so the evaluator never sees them.
package zone
