package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/safewalk-core/internal/infrastructure/mqtt"
)

// Capability is a platform capability guarded by a permission.
type Capability string

const (
	CapabilityMicrophone    Capability = "microphone"
	CapabilityLocation      Capability = "location"
	CapabilityNotifications Capability = "notifications"
	CapabilityMotion        Capability = "motion"
)

// Capabilities lists every known capability.
var Capabilities = []Capability{CapabilityMicrophone, CapabilityLocation, CapabilityNotifications, CapabilityMotion}

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	for _, c := range Capabilities {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown capability %q", ErrUnsupported, s)
}

// PermissionState is the platform permission for one capability.
type PermissionState string

const (
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
	PermissionPrompt      PermissionState = "prompt"
	PermissionUnknown     PermissionState = "unknown"
	PermissionUnsupported PermissionState = "unsupported"
)

// ParsePermissionState validates a state name.
func ParsePermissionState(s string) (PermissionState, error) {
	switch st := PermissionState(strings.ToLower(strings.TrimSpace(s))); st {
	case PermissionGranted, PermissionDenied, PermissionPrompt, PermissionUnknown, PermissionUnsupported:
		return st, nil
	}
	return "", fmt.Errorf("%w: permission state %q", ErrInvalidSample, s)
}

// Settled reports whether the state will not change without user action.
func (s PermissionState) Settled() bool {
	return s == PermissionGranted || s == PermissionDenied || s == PermissionUnsupported
}

// PermissionChange is delivered to subscribers when a state changes.
type PermissionChange struct {
	Capability Capability
	From       PermissionState
	To         PermissionState
}

// Permissions holds the permission state of every capability and whether
// the user has interacted with the app. Each capability changes
// independently.
type Permissions struct {
	mu      sync.Mutex
	states  map[Capability]PermissionState
	subs    map[int]func(PermissionChange)
	nextSub int
	gesture bool

	bus      Bus
	deviceID string
	topics   mqtt.Topics
	logger   Logger
}

// NewPermissions returns a registry with every capability unknown.
func NewPermissions() *Permissions {
	return &Permissions{
		states: make(map[Capability]PermissionState),
		subs:   make(map[int]func(PermissionChange)),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (p *Permissions) SetLogger(logger Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
}

// State returns the current state of a capability.
func (p *Permissions) State(c Capability) PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.states[c]; ok {
		return st
	}
	return PermissionUnknown
}

// Snapshot returns the state of every known capability.
func (p *Permissions) Snapshot() map[Capability]PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[Capability]PermissionState, len(Capabilities))
	for _, c := range Capabilities {
		st, ok := p.states[c]
		if !ok {
			st = PermissionUnknown
		}
		out[c] = st
	}
	return out
}

// Set records a new state and notifies subscribers if it changed.
func (p *Permissions) Set(c Capability, st PermissionState) bool {
	p.mu.Lock()
	from, ok := p.states[c]
	if !ok {
		from = PermissionUnknown
	}
	if from == st {
		p.mu.Unlock()
		return false
	}
	p.states[c] = st
	subs := p.subscribersLocked()
	p.mu.Unlock()

	change := PermissionChange{Capability: c, From: from, To: st}
	for _, fn := range subs {
		fn(change)
	}
	return true
}

func (p *Permissions) subscribersLocked() []func(PermissionChange) {
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(PermissionChange), 0, len(ids))
	for _, id := range ids {
		out = append(out, p.subs[id])
	}
	return out
}

// Subscribe registers fn for state changes. The returned function removes it.
func (p *Permissions) Subscribe(fn func(PermissionChange)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Check maps a capability's state to an error: ErrPermissionDenied,
// ErrUnsupported, or nil when the capability may be used or prompted for.
func (p *Permissions) Check(c Capability) error {
	switch p.State(c) {
	case PermissionDenied:
		return fmt.Errorf("%s: %w", c, ErrPermissionDenied)
	case PermissionUnsupported:
		return fmt.Errorf("%s: %w", c, ErrUnsupported)
	}
	return nil
}

// RecordGesture notes that the user has interacted with the app.
func (p *Permissions) RecordGesture() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gesture = true
}

// HasGesture reports whether a user gesture has been seen.
func (p *Permissions) HasGesture() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gesture
}

// Attach subscribes to the device's permission and gesture topics.
func (p *Permissions) Attach(bus Bus, deviceID string) error {
	p.mu.Lock()
	p.bus = bus
	p.deviceID = deviceID
	p.mu.Unlock()

	if err := bus.Subscribe(p.topics.AllDevicePermissions(deviceID), 1, p.handlePermission); err != nil {
		return fmt.Errorf("subscribing to permissions: %w", err)
	}
	if err := bus.Subscribe(p.topics.DeviceStream(deviceID, mqtt.StreamGesture), 1, p.handleGesture); err != nil {
		return fmt.Errorf("subscribing to gestures: %w", err)
	}
	return nil
}

type permissionPayload struct {
	State string `json:"state"`
}

func (p *Permissions) handlePermission(topic string, payload []byte) error {
	c, err := ParseCapability(topic[strings.LastIndex(topic, "/")+1:])
	if err != nil {
		return err
	}

	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var msg permissionPayload
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSample, err)
		}
		raw = msg.State
	}
	st, err := ParsePermissionState(raw)
	if err != nil {
		return err
	}

	if p.Set(c, st) {
		p.getLogger().Info("permission changed", "capability", c, "state", st)
	}
	return nil
}

func (p *Permissions) handleGesture(string, []byte) error {
	p.RecordGesture()
	return nil
}

type permissionRequest struct {
	Action     string     `json:"action"`
	Capability Capability `json:"capability"`
	Gesture    bool       `json:"gesture"`
}

// Request asks the device to prompt for a capability and waits until the
// state settles or ctx ends. A gesture-backed request also records the
// gesture. Denied and unsupported states return their errors.
func (p *Permissions) Request(ctx context.Context, c Capability, gesture bool) (PermissionState, error) {
	if gesture {
		p.RecordGesture()
	}
	if st := p.State(c); st.Settled() {
		return st, p.Check(c)
	}

	p.mu.Lock()
	bus, deviceID := p.bus, p.deviceID
	p.mu.Unlock()
	if bus == nil {
		return p.State(c), ErrNoTransport
	}

	settled := make(chan PermissionState, 1)
	cancel := p.Subscribe(func(ch PermissionChange) {
		if ch.Capability == c && ch.To.Settled() {
			select {
			case settled <- ch.To:
			default:
			}
		}
	})
	defer cancel()

	payload, err := json.Marshal(permissionRequest{Action: "request", Capability: c, Gesture: gesture})
	if err != nil {
		return p.State(c), err
	}
	if err := bus.Publish(p.topics.DeviceCommand(deviceID, "permission"), payload, 1, false); err != nil {
		return p.State(c), &TransientIOError{Op: "permission request", Err: err}
	}

	// The answer may have landed between the first check and Subscribe.
	if st := p.State(c); st.Settled() {
		return st, p.Check(c)
	}

	select {
	case st := <-settled:
		return st, p.Check(c)
	case <-ctx.Done():
		return p.State(c), &TransientIOError{Op: "permission request", Err: ctx.Err()}
	}
}

func (p *Permissions) getLogger() Logger {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logger
}
