package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/safewalk-core/internal/clock"
	"github.com/nerrad567/safewalk-core/internal/geo"
)

// Location watch defaults.
const (
	DefaultLocationTimeout = 5 * time.Second
	DefaultLocationMaxAge  = 10 * time.Second
)

// LocationOptions configures the device's position watch.
type LocationOptions struct {
	HighAccuracy bool          `json:"highAccuracy"`
	Timeout      time.Duration `json:"-"`
	MaxAge       time.Duration `json:"-"`
}

// MarshalJSON encodes durations in milliseconds, as the device expects.
func (o LocationOptions) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		HighAccuracy bool  `json:"highAccuracy"`
		Timeout      int64 `json:"timeout"`
		MaximumAge   int64 `json:"maximumAge"`
	}{o.HighAccuracy, o.Timeout.Milliseconds(), o.MaxAge.Milliseconds()})
}

// DefaultLocationOptions returns {HighAccuracy: true, Timeout: 5s, MaxAge: 10s}.
func DefaultLocationOptions() LocationOptions {
	return LocationOptions{HighAccuracy: true, Timeout: DefaultLocationTimeout, MaxAge: DefaultLocationMaxAge}
}

type locationPayload struct {
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Accuracy  float64  `json:"accuracy"`
	Timestamp int64    `json:"timestamp"` // unix milliseconds
}

// LocationAdapter watches the device position.
//
// Fixes older than MaxAge, or older than the last accepted fix, are dropped.
// When no fix is accepted for Timeout the adapter emits a StatusTimeout
// event and keeps watching.
type LocationAdapter struct {
	stream
	watch LocationOptions

	mu       sync.Mutex
	watchdog clock.Timer
	lastFix  time.Time
}

// NewLocationAdapter creates a location adapter. Zero durations select the
// defaults.
func NewLocationAdapter(opts Options, watch LocationOptions) *LocationAdapter {
	if watch.Timeout <= 0 {
		watch.Timeout = DefaultLocationTimeout
	}
	if watch.MaxAge <= 0 {
		watch.MaxAge = DefaultLocationMaxAge
	}
	a := &LocationAdapter{watch: watch}
	a.init(KindLocation, CapabilityLocation, opts)
	return a
}

// Options returns the watch options sent to the device.
func (a *LocationAdapter) Options() LocationOptions {
	return a.watch
}

// Start begins the position watch.
func (a *LocationAdapter) Start(_ context.Context, onEvent func(Event)) (Handle, error) {
	a.mu.Lock()
	a.lastFix = time.Time{}
	a.mu.Unlock()

	h, err := a.begin(onEvent, a.handleFix, a.watch, a.stopWatchdog)
	if err != nil {
		return 0, err
	}
	a.armWatchdog(h)
	return h, nil
}

// Stop ends the watch if h owns it.
func (a *LocationAdapter) Stop(h Handle) {
	a.end(h)
}

// RequestPermission asks the device for location access.
func (a *LocationAdapter) RequestPermission(ctx context.Context, gesture bool) (PermissionState, error) {
	return a.requestPermission(ctx, gesture)
}

func (a *LocationAdapter) handleFix(_ string, payload []byte) error {
	h, _ := a.current()
	if h == 0 {
		return nil
	}

	var msg locationPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSample, err)
	}
	if msg.Lat == nil || msg.Lng == nil {
		return fmt.Errorf("%w: location without coordinates", ErrInvalidSample)
	}

	now := a.opts.Clock.Now()
	ts := now
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp)
	}
	if now.Sub(ts) > a.watch.MaxAge {
		a.opts.Logger.Debug("stale location fix dropped", "age", now.Sub(ts))
		return nil
	}

	a.mu.Lock()
	if ts.Before(a.lastFix) {
		a.mu.Unlock()
		return nil
	}
	a.lastFix = ts
	a.mu.Unlock()

	a.armWatchdog(h)

	a.emit(h, Event{
		At: ts,
		Fix: &Fix{
			Point:     geo.GeoPoint{Lat: *msg.Lat, Lng: *msg.Lng},
			Accuracy:  msg.Accuracy,
			Timestamp: ts,
		},
	})
	return nil
}

func (a *LocationAdapter) armWatchdog(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watchdog != nil {
		a.watchdog.Stop()
	}
	a.watchdog = a.opts.Clock.AfterFunc(a.watch.Timeout, func() {
		a.onTimeout(h)
	})
}

func (a *LocationAdapter) onTimeout(h Handle) {
	if cur, _ := a.current(); cur != h {
		return
	}
	a.emit(h, Event{
		Status: StatusTimeout,
		Err:    &TransientIOError{Op: "location watch", Err: fmt.Errorf("no fix within %v: %w", a.watch.Timeout, ErrTimeout)},
	})
	a.armWatchdog(h)
}

func (a *LocationAdapter) stopWatchdog() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watchdog != nil {
		a.watchdog.Stop()
		a.watchdog = nil
	}
}
