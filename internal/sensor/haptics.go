package sensor

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/safewalk-core/internal/infrastructure/mqtt"
)

type vibrateCommand struct {
	Action  string `json:"action"`
	Pattern []int  `json:"pattern"`
}

// Haptics drives the device vibrator.
type Haptics struct {
	bus         Bus
	deviceID    string
	permissions *Permissions
	logger      Logger
	topics      mqtt.Topics
}

// NewHaptics creates a haptics controller.
func NewHaptics(opts Options) *Haptics {
	opts = opts.withDefaults()
	return &Haptics{bus: opts.Bus, deviceID: opts.DeviceID, permissions: opts.Permissions, logger: opts.Logger}
}

// Vibrate plays pattern (milliseconds, alternating on/off). Platforms only
// allow vibration after a user gesture, so without one this is a silent
// no-op. It reports whether the command was sent.
func (h *Haptics) Vibrate(pattern []int) bool {
	if len(pattern) == 0 || h.bus == nil {
		return false
	}
	if !h.permissions.HasGesture() {
		h.logger.Debug("vibration skipped, no user gesture yet")
		return false
	}

	payload, err := json.Marshal(vibrateCommand{Action: "vibrate", Pattern: pattern})
	if err != nil {
		return false
	}
	topic := h.topics.DeviceCommand(h.deviceID, mqtt.StreamHaptics)
	if err := h.bus.Publish(topic, payload, 0, false); err != nil {
		h.logger.Warn("vibration failed", "error", fmt.Errorf("publishing to %s: %w", topic, err))
		return false
	}
	return true
}
