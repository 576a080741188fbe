package sensor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/safewalk-core/internal/detector"
)

// MotionAdapter streams acceleration including gravity.
//
// Some platforms only grant motion access from a direct user action. With
// GestureRequired set, RequestPermission refuses to prompt unless called
// for a gesture.
type MotionAdapter struct {
	stream
	gestureRequired bool
}

// NewMotionAdapter creates a motion adapter.
func NewMotionAdapter(opts Options, gestureRequired bool) *MotionAdapter {
	a := &MotionAdapter{gestureRequired: gestureRequired}
	a.init(KindMotion, CapabilityMotion, opts)
	return a
}

// Start subscribes to the motion stream.
func (a *MotionAdapter) Start(_ context.Context, onEvent func(Event)) (Handle, error) {
	return a.begin(onEvent, a.handleSample, nil, nil)
}

// Stop ends the stream if h owns it.
func (a *MotionAdapter) Stop(h Handle) {
	a.end(h)
}

// RequestPermission asks for motion access. Without a gesture on a
// gesture-gated platform it returns ErrGestureRequired and leaves the state
// untouched.
func (a *MotionAdapter) RequestPermission(ctx context.Context, gesture bool) (PermissionState, error) {
	if a.gestureRequired && !gesture {
		st := a.Permission()
		if st.Settled() {
			return st, a.opts.Permissions.Check(CapabilityMotion)
		}
		return st, ErrGestureRequired
	}
	return a.requestPermission(ctx, gesture)
}

func (a *MotionAdapter) handleSample(_ string, payload []byte) error {
	h, _ := a.current()
	if h == 0 {
		return nil
	}

	var s detector.MotionSample
	if err := json.Unmarshal(payload, &s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSample, err)
	}
	if !s.Valid() {
		return fmt.Errorf("%w: non-finite acceleration", ErrInvalidSample)
	}

	a.emit(h, Event{Motion: &s})
	return nil
}
