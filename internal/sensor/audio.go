package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
)

type audioPayload struct {
	PCM   []byte   `json:"pcm,omitempty"` // base64 little-endian PCM16
	Level *float64 `json:"level,omitempty"`
}

type audioCapture struct {
	SampleRate int `json:"sampleRate"`
	FFTSize    int `json:"fftSize"`
}

// AudioAdapter turns microphone frames into spectrum levels.
//
// The capture and its analyser belong to one handle. Stop waits for a
// frame being analysed to finish, then releases both; frames that arrive
// afterwards are dropped.
type AudioAdapter struct {
	stream
	sampleRate int

	mu       sync.Mutex
	analyser *analyser
}

// NewAudioAdapter creates an audio adapter.
func NewAudioAdapter(opts Options, sampleRate int) *AudioAdapter {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	a := &AudioAdapter{sampleRate: sampleRate}
	a.init(KindAudio, CapabilityMicrophone, opts)
	return a
}

// Start opens the capture.
func (a *AudioAdapter) Start(_ context.Context, onEvent func(Event)) (Handle, error) {
	h, err := a.begin(onEvent, a.handleFrame, audioCapture{SampleRate: a.sampleRate, FFTSize: FFTSize}, a.release)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if cur, _ := a.current(); cur == h {
		a.analyser = newAnalyser()
	}
	return h, nil
}

// Stop closes the capture if h owns it.
func (a *AudioAdapter) Stop(h Handle) {
	a.end(h)
}

// RequestPermission asks for microphone access.
func (a *AudioAdapter) RequestPermission(ctx context.Context, gesture bool) (PermissionState, error) {
	return a.requestPermission(ctx, gesture)
}

// Capturing reports whether a capture is open.
func (a *AudioAdapter) Capturing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.analyser != nil
}

func (a *AudioAdapter) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analyser = nil
}

func (a *AudioAdapter) handleFrame(_ string, payload []byte) error {
	h, _ := a.current()
	if h == 0 {
		return nil
	}

	var msg audioPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSample, err)
	}

	var level float64
	switch {
	case msg.Level != nil:
		level = *msg.Level
		if math.IsNaN(level) || math.IsInf(level, 0) {
			return fmt.Errorf("%w: non-finite audio level", ErrInvalidSample)
		}
	case len(msg.PCM) >= 2:
		a.mu.Lock()
		if a.analyser == nil {
			a.mu.Unlock()
			return nil
		}
		level = a.analyser.Level(msg.PCM)
		a.mu.Unlock()
	default:
		return fmt.Errorf("%w: empty audio frame", ErrInvalidSample)
	}

	if !a.Capturing() {
		return nil
	}
	a.emit(h, Event{Level: &level})
	return nil
}
