package geo

import "errors"

var (
	// ErrInvalidPosition is returned when a position has NaN or infinite coordinates.
	ErrInvalidPosition = errors.New("geo: invalid position")

	// ErrInvalidCoordinate is returned when a stored coordinate cannot be parsed.
	ErrInvalidCoordinate = errors.New("geo: invalid coordinate")
)
