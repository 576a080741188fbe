package zone

import "errors"

var (
	// ErrNotLoaded is returned when zones are read before the first refresh.
	ErrNotLoaded = errors.New("zone: cache not loaded")

	// ErrDuplicateZone is returned when inserting a zone whose ID exists.
	ErrDuplicateZone = errors.New("zone: duplicate id")
)
