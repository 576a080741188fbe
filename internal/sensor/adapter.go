package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/safewalk-core/internal/clock"
	"github.com/nerrad567/safewalk-core/internal/detector"
	"github.com/nerrad567/safewalk-core/internal/geo"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/mqtt"
)

// Logger is the logging interface used by adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Bus is the subset of the MQTT client the adapters use.
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Kind identifies an adapter.
type Kind string

const (
	KindLocation Kind = "location"
	KindMotion   Kind = "motion"
	KindAudio    Kind = "audio"
	KindSpeech   Kind = "speech"
)

// Capability returns the permission that guards the kind's stream.
func (k Kind) Capability() Capability {
	switch k {
	case KindLocation:
		return CapabilityLocation
	case KindMotion:
		return CapabilityMotion
	default:
		return CapabilityMicrophone
	}
}

// Status is an adapter lifecycle report carried by an Event.
type Status string

const (
	StatusActive      Status = "active"
	StatusTimeout     Status = "timeout"
	StatusUnavailable Status = "unavailable"
	StatusUnsupported Status = "unsupported"
	StatusRestarting  Status = "restarting"
	StatusError       Status = "error"
)

// Terminal reports whether the stream has ended for good.
func (s Status) Terminal() bool {
	return s == StatusUnavailable || s == StatusUnsupported
}

// Fix is one accepted location reading.
type Fix struct {
	Point     geo.GeoPoint `json:"point"`
	Accuracy  float64      `json:"accuracy"`
	Timestamp time.Time    `json:"timestamp"`
}

// Event is one adapter emission: exactly one of the sample fields is set,
// or Status is.
type Event struct {
	Kind       Kind
	At         time.Time
	Fix        *Fix
	Motion     *detector.MotionSample
	Level      *float64
	Transcript *detector.TranscriptChunk
	Status     Status
	Err        error
}

// Handle identifies one Start call. The zero Handle is never issued.
type Handle uint64

// Adapter wraps one platform capability.
type Adapter interface {
	Kind() Kind
	Start(ctx context.Context, onEvent func(Event)) (Handle, error)
	Stop(h Handle)
	Permission() PermissionState
	RequestPermission(ctx context.Context, gesture bool) (PermissionState, error)
}

// Options holds what every adapter needs.
type Options struct {
	Bus         Bus
	DeviceID    string
	Permissions *Permissions
	Clock       clock.Clock
	Logger      Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.Permissions == nil {
		o.Permissions = NewPermissions()
	}
	return o
}

type command struct {
	Action  string `json:"action"`
	Options any    `json:"options,omitempty"`
}

// stream is the subscription bookkeeping shared by every adapter. One
// handle owns the stream at a time; starting again releases the previous
// owner first. Bus I/O happens under ioMu and never under mu, so message
// handlers only ever wait on mu for bookkeeping.
type stream struct {
	kind       Kind
	capability Capability
	opts       Options
	topics     mqtt.Topics

	ioMu sync.Mutex

	mu        sync.Mutex
	handle    Handle
	next      Handle
	onEvent   func(Event)
	unwatch   func()
	onRelease func()
}

func (s *stream) init(kind Kind, c Capability, opts Options) {
	s.kind = kind
	s.capability = c
	s.opts = opts.withDefaults()
}

func (s *stream) Kind() Kind { return s.kind }

func (s *stream) Permission() PermissionState {
	return s.opts.Permissions.State(s.capability)
}

func (s *stream) topic() string {
	return s.topics.DeviceStream(s.opts.DeviceID, string(s.kind))
}

func (s *stream) commandTopic() string {
	return s.topics.DeviceCommand(s.opts.DeviceID, string(s.kind))
}

// begin claims the stream for a new handle, subscribes handler and sends
// the start command. onRelease runs whenever this handle loses the stream.
func (s *stream) begin(onEvent func(Event), handler mqtt.MessageHandler, startOpts any, onRelease func()) (Handle, error) {
	if s.opts.Bus == nil {
		return 0, ErrNoTransport
	}
	if err := s.opts.Permissions.Check(s.capability); err != nil {
		return 0, err
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	previous := s.detachLocked()
	s.next++
	h := s.next
	s.handle = h
	s.onEvent = onEvent
	s.onRelease = onRelease
	s.mu.Unlock()

	if previous != nil {
		previous()
	}

	if err := s.opts.Bus.Subscribe(s.topic(), 0, handler); err != nil {
		s.endLocked(h)
		return 0, &TransientIOError{Op: fmt.Sprintf("%s subscribe", s.kind), Err: err}
	}
	if err := s.sendCommand("start", startOpts); err != nil {
		s.endLocked(h)
		return 0, &TransientIOError{Op: fmt.Sprintf("%s start", s.kind), Err: err}
	}

	unwatch := s.opts.Permissions.Subscribe(func(ch PermissionChange) {
		if ch.Capability != s.capability {
			return
		}
		switch ch.To {
		case PermissionDenied:
			s.terminate(h, StatusUnavailable, ErrPermissionDenied)
		case PermissionUnsupported:
			s.terminate(h, StatusUnsupported, ErrUnsupported)
		}
	})

	s.mu.Lock()
	s.unwatch = unwatch
	s.mu.Unlock()

	// A denial that raced with the subscription above.
	if err := s.opts.Permissions.Check(s.capability); err != nil {
		s.endLocked(h)
		return 0, err
	}

	s.opts.Logger.Debug("sensor started", "kind", s.kind, "handle", h)
	return h, nil
}

// end releases the stream if h still owns it and reports whether it did.
// It returns once the subscription is gone and onRelease has run.
func (s *stream) end(h Handle) bool {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.endLocked(h)
}

// endLocked is end with ioMu held.
func (s *stream) endLocked(h Handle) bool {
	s.mu.Lock()
	if h == 0 || s.handle != h {
		s.mu.Unlock()
		return false
	}
	cleanup := s.detachLocked()
	s.mu.Unlock()
	cleanup()
	return true
}

// detachLocked clears the current owner and returns the cleanup to run
// outside mu, or nil when the stream is idle.
func (s *stream) detachLocked() func() {
	h := s.handle
	if h == 0 {
		return nil
	}
	unwatch, onRelease := s.unwatch, s.onRelease
	s.handle = 0
	s.onEvent = nil
	s.unwatch = nil
	s.onRelease = nil

	return func() {
		if unwatch != nil {
			unwatch()
		}
		if onRelease != nil {
			onRelease()
		}
		if err := s.opts.Bus.Unsubscribe(s.topic()); err != nil {
			s.opts.Logger.Warn("sensor unsubscribe failed", "kind", s.kind, "error", err)
		}
		if err := s.sendCommand("stop", nil); err != nil {
			s.opts.Logger.Warn("sensor stop command failed", "kind", s.kind, "error", err)
		}
		s.opts.Logger.Debug("sensor stopped", "kind", s.kind, "handle", h)
	}
}

// terminate emits a terminal status to h's owner and releases the stream.
func (s *stream) terminate(h Handle, st Status, err error) {
	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return
	}
	onEvent := s.onEvent
	s.mu.Unlock()

	if !s.end(h) {
		return
	}
	if onEvent != nil {
		onEvent(Event{Kind: s.kind, At: s.opts.Clock.Now(), Status: st, Err: err})
	}
}

// current returns the active handle and callback.
func (s *stream) current() (Handle, func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.onEvent
}

// emit delivers ev if h still owns the stream.
func (s *stream) emit(h Handle, ev Event) {
	cur, onEvent := s.current()
	if cur != h || onEvent == nil {
		return
	}
	ev.Kind = s.kind
	if ev.At.IsZero() {
		ev.At = s.opts.Clock.Now()
	}
	onEvent(ev)
}

func (s *stream) sendCommand(action string, opts any) error {
	payload, err := json.Marshal(command{Action: action, Options: opts})
	if err != nil {
		return err
	}
	return s.opts.Bus.Publish(s.commandTopic(), payload, 1, false)
}

func (s *stream) requestPermission(ctx context.Context, gesture bool) (PermissionState, error) {
	return s.opts.Permissions.Request(ctx, s.capability, gesture)
}
