// Package geo evaluates red-zone membership for a user position.
//
// A zone is a centre point with a fixed membership radius (500 m unless
// configured otherwise). Membership is recomputed on every position fix by a
// linear scan; zone counts are in the tens, so no spatial index is used.
//
// Usage:
//
//	ev := geo.NewEvaluator(geo.WithTieBreak(geo.TieBreakFirst))
//	zone, err := ev.Evaluate(pos, zones)
//	if errors.Is(err, geo.ErrInvalidPosition) {
//	    // keep the previous membership
//	}
package geo
