// Package sensor adapts the phone's platform signals into typed events.
//
// The phone is a thin shell that publishes raw readings over MQTT:
//
//	safewalk/device/{device}/location            position fixes
//	safewalk/device/{device}/motion              acceleration incl. gravity
//	safewalk/device/{device}/audio               PCM16 frames or levels
//	safewalk/device/{device}/speech              recognition results/end
//	safewalk/device/{device}/gesture             user gesture seen
//	safewalk/device/{device}/permission/{cap}    permission state changes
//
// and receives capture commands on safewalk/device/{device}/command/{stream}.
//
// Every adapter implements Adapter. Start fails with ErrPermissionDenied or
// ErrUnsupported when the capability cannot be used; a permission revoked
// while running ends the stream with a terminal StatusUnavailable event.
// Transient problems (a location watch that stops producing fixes) are
// reported as StatusTimeout events carrying a *TransientIOError and never
// stop the stream.
//
// Permission state is held per capability by Permissions, which also
// records whether the user has made a gesture. Haptics uses that to skip
// vibration silently until one has happened.
//
// The speech adapter restarts recognition sessions that end on their own
// through a Supervisor. Stopping the adapter cancels any pending restart
// before it returns.
package sensor
