package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/safewalk-core/internal/detector"
)

// Speech events published by the device.
const (
	speechEventResult = "result"
	speechEventEnd    = "end"
	speechEventError  = "error"
)

type speechPayload struct {
	Event string `json:"event"`
	ID    string `json:"id"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
	Error string `json:"error"`
}

type speechOptions struct {
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interimResults"`
	Lang           string `json:"lang"`
}

// SpeechAdapter runs continuous speech recognition on the device.
//
// Recognition sessions end on their own on some platforms. While the
// adapter is started, each spontaneous end schedules a restart through a
// Supervisor; Stop cancels a pending restart before it returns.
type SpeechAdapter struct {
	stream
	options    speechOptions
	supervisor *Supervisor
}

// NewSpeechAdapter creates a speech adapter with the given restart policy.
func NewSpeechAdapter(opts Options, lang string, policy RestartPolicy) *SpeechAdapter {
	if lang == "" {
		lang = "en-US"
	}
	a := &SpeechAdapter{options: speechOptions{Continuous: true, InterimResults: true, Lang: lang}}
	a.init(KindSpeech, CapabilityMicrophone, opts)

	onGiveUp := policy.OnGiveUp
	policy.OnGiveUp = func(attempts int) {
		if h, _ := a.current(); h != 0 {
			a.terminate(h, StatusUnavailable, fmt.Errorf("after %d attempts: %w", attempts, ErrRestartLimit))
		}
		if onGiveUp != nil {
			onGiveUp(attempts)
		}
	}
	a.supervisor = NewSupervisor("speech", a.opts.Clock, policy, func() error {
		return a.sendCommand("start", a.options)
	})
	a.supervisor.SetLogger(a.opts.Logger)
	return a
}

// Supervisor exposes the restart supervisor for diagnostics.
func (a *SpeechAdapter) Supervisor() *Supervisor {
	return a.supervisor
}

// Start begins continuous recognition.
func (a *SpeechAdapter) Start(_ context.Context, onEvent func(Event)) (Handle, error) {
	h, err := a.begin(onEvent, a.handleSpeech, a.options, a.supervisor.Stop)
	if err != nil {
		return 0, err
	}
	if cur, _ := a.current(); cur == h {
		a.supervisor.Begin()
	}
	return h, nil
}

// Stop ends recognition if h owns it. No restart can happen after Stop
// returns.
func (a *SpeechAdapter) Stop(h Handle) {
	a.end(h)
}

// Listening reports whether recognition is wanted.
func (a *SpeechAdapter) Listening() bool {
	st := a.supervisor.State()
	return st == SupervisorRunning || st == SupervisorRestarting
}

// RequestPermission asks for microphone access.
func (a *SpeechAdapter) RequestPermission(ctx context.Context, gesture bool) (PermissionState, error) {
	return a.requestPermission(ctx, gesture)
}

func (a *SpeechAdapter) handleSpeech(_ string, payload []byte) error {
	h, _ := a.current()
	if h == 0 {
		return nil
	}

	var msg speechPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSample, err)
	}

	switch msg.Event {
	case speechEventResult:
		if msg.Final {
			a.supervisor.Healthy()
		}
		a.emit(h, Event{Transcript: &detector.TranscriptChunk{ID: msg.ID, Text: msg.Text, Final: msg.Final}})

	case speechEventEnd:
		if a.supervisor.State() == SupervisorRunning {
			a.emit(h, Event{Status: StatusRestarting})
		}
		a.supervisor.Ended()

	case speechEventError:
		return a.handleSpeechError(h, msg.Error)

	default:
		return fmt.Errorf("%w: speech event %q", ErrInvalidSample, msg.Event)
	}
	return nil
}

func (a *SpeechAdapter) handleSpeechError(h Handle, code string) error {
	switch code {
	case "not-allowed", "service-not-allowed":
		// The permission watch terminates the stream.
		a.opts.Permissions.Set(CapabilityMicrophone, PermissionDenied)
	case "unsupported":
		a.terminate(h, StatusUnsupported, ErrUnsupported)
	case "no-speech":
		a.emit(h, Event{Status: StatusTimeout, Err: &TransientIOError{Op: "speech", Err: ErrTimeout}})
	default:
		a.emit(h, Event{Status: StatusError, Err: &TransientIOError{Op: "speech", Err: errors.New(code)}})
	}
	return nil
}
