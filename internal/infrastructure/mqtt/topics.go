package mqtt

import "fmt"

// Topic prefixes for the SafeWalk bus.
//
//	safewalk/device/{device}/{stream}            phone -> core sensor streams
//	safewalk/device/{device}/permission/{cap}    phone -> core permission changes
//	safewalk/device/{device}/command/{stream}    core -> phone capture control
//	safewalk/user/{user}/notification            core -> contact's phone
//	safewalk/core/...                            core state for UIs
const (
	TopicPrefixDevice = "safewalk/device"
	TopicPrefixUser   = "safewalk/user"
	TopicPrefixCore   = "safewalk/core"
	TopicPrefixSystem = "safewalk/system"
)

// Sensor stream names used in device topics.
const (
	StreamLocation = "location"
	StreamMotion   = "motion"
	StreamAudio    = "audio"
	StreamSpeech   = "speech"
	StreamGesture  = "gesture"
	StreamHaptics  = "haptics"
)

// Topics provides builders for SafeWalk MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceStream("phone-1", mqtt.StreamMotion)
//	// Returns: "safewalk/device/phone-1/motion"
type Topics struct{}

// DeviceStream returns the topic a device publishes a sensor stream on.
func (Topics) DeviceStream(deviceID, stream string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, deviceID, stream)
}

// DeviceCommand returns the topic the core sends capture commands on.
//
// Example: safewalk/device/phone-1/command/audio
func (Topics) DeviceCommand(deviceID, stream string) string {
	return fmt.Sprintf("%s/%s/command/%s", TopicPrefixDevice, deviceID, stream)
}

// DevicePermission returns the topic a device reports one capability's permission on.
//
// Example: safewalk/device/phone-1/permission/microphone
func (Topics) DevicePermission(deviceID, capability string) string {
	return fmt.Sprintf("%s/%s/permission/%s", TopicPrefixDevice, deviceID, capability)
}

// AllDevicePermissions returns a wildcard for every capability of one device.
func (Topics) AllDevicePermissions(deviceID string) string {
	return fmt.Sprintf("%s/%s/permission/+", TopicPrefixDevice, deviceID)
}

// UserNotification returns the topic a user's phone receives notifications on.
func (Topics) UserNotification(userID string) string {
	return fmt.Sprintf("%s/%s/notification", TopicPrefixUser, userID)
}

// SafetyStatus returns the retained topic carrying the current safety status.
func (Topics) SafetyStatus() string {
	return TopicPrefixCore + "/safety/status"
}

// SafetyNotice returns the topic for zone entry/exit notices.
func (Topics) SafetyNotice() string {
	return TopicPrefixCore + "/safety/notice"
}

// CoreAlert returns the topic for a dispatched SOS alert.
//
// Example: safewalk/core/alert/sos-1234
func (Topics) CoreAlert(alertID string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefixCore, alertID)
}

// SystemStatus returns the retained core online/offline topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
