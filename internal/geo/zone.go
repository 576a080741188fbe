package geo

import "fmt"

// DefaultRadiusMeters is the membership radius applied to every zone.
const DefaultRadiusMeters = 500

// Zone is a red zone. RadiusMeters is the stored metadata; membership always
// uses the evaluator's radius.
type Zone struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Center        GeoPoint `json:"center"`
	RadiusMeters  float64  `json:"radius_meters"`
	RiskLevel     string   `json:"risk_level"`
	IncidentCount int      `json:"incident_count"`
}

// TieBreak picks a zone when several contain the position.
type TieBreak string

const (
	// TieBreakFirst returns the first containing zone in source order.
	TieBreakFirst TieBreak = "first"
	// TieBreakClosest returns the containing zone with the nearest centre.
	TieBreakClosest TieBreak = "closest"
)

// ParseTieBreak converts a config value into a TieBreak.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(s) {
	case TieBreakFirst, "":
		return TieBreakFirst, nil
	case TieBreakClosest:
		return TieBreakClosest, nil
	default:
		return "", fmt.Errorf("geo: unknown tie break %q", s)
	}
}

// Evaluator computes zone membership.
type Evaluator struct {
	radius   float64
	tieBreak TieBreak
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRadius overrides the membership radius.
func WithRadius(meters float64) Option {
	return func(e *Evaluator) { e.radius = meters }
}

// WithTieBreak sets the overlap policy.
func WithTieBreak(tb TieBreak) Option {
	return func(e *Evaluator) { e.tieBreak = tb }
}

// NewEvaluator returns an Evaluator with a 500 m radius and first-match tie break.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{radius: DefaultRadiusMeters, tieBreak: TieBreakFirst}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Radius returns the membership radius in meters.
func (e *Evaluator) Radius() float64 {
	return e.radius
}

// Evaluate returns the zone containing pos, or nil. A zone contains pos when
// the haversine distance to its centre is strictly less than the radius.
//
// Returns ErrInvalidPosition for non-finite positions; callers keep their
// previous membership in that case.
func (e *Evaluator) Evaluate(pos GeoPoint, zones []Zone) (*Zone, error) {
	if !pos.Valid() {
		return nil, ErrInvalidPosition
	}

	var best *Zone
	bestDist := 0.0
	for i := range zones {
		d := Haversine(pos, zones[i].Center)
		if d >= e.radius {
			continue
		}
		if e.tieBreak != TieBreakClosest {
			z := zones[i]
			return &z, nil
		}
		if best == nil || d < bestDist {
			z := zones[i]
			best, bestDist = &z, d
		}
	}
	return best, nil
}

// Edge is a membership change between two consecutive evaluations.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeEnter
	EdgeExit
	// EdgeSwitch is a move from one zone directly into another.
	EdgeSwitch
)

func (e Edge) String() string {
	switch e {
	case EdgeEnter:
		return "enter"
	case EdgeExit:
		return "exit"
	case EdgeSwitch:
		return "switch"
	default:
		return "none"
	}
}

// Transition classifies the change from prev to next membership.
func Transition(prev, next *Zone) Edge {
	switch {
	case prev == nil && next == nil:
		return EdgeNone
	case prev == nil:
		return EdgeEnter
	case next == nil:
		return EdgeExit
	case prev.ID != next.ID:
		return EdgeSwitch
	default:
		return EdgeNone
	}
}
