package monitor

import (
	"context"
	"time"

	"github.com/nerrad567/safewalk-core/internal/alert"
	"github.com/nerrad567/safewalk-core/internal/detector"
	"github.com/nerrad567/safewalk-core/internal/geo"
	"github.com/nerrad567/safewalk-core/internal/sensor"
)

// State is the monitor's state machine position.
type State string

const (
	StateIdle              State = "idle"
	StateMonitoring        State = "monitoring"
	StateAccidentSuspected State = "accident_suspected"
)

// Notice types shown to the user on zone transitions.
const (
	NoticeZoneEntry = "red_zone_entry"
	NoticeZoneExit  = "red_zone_exit"
)

// Hub channels.
const (
	ChannelNotice   = "safety.notice"
	ChannelStatus   = "safety.status"
	ChannelAccident = "safety.accident"
	ChannelDispatch = "safety.dispatch"
)

// DefaultVibrationPattern is played on zone entry.
var DefaultVibrationPattern = []int{300, 100, 300}

// Notice is a user-facing zone transition message.
type Notice struct {
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Severity string    `json:"severity"`
	ZoneID   string    `json:"zoneId,omitempty"`
	ZoneName string    `json:"zoneName,omitempty"`
	At       time.Time `json:"at"`
}

// SafetyData is the live sensor summary for the current session.
type SafetyData struct {
	CurrentSpeed    float64       `json:"currentSpeed"`
	Acceleration    float64       `json:"acceleration"`
	LastLocation    *geo.GeoPoint `json:"lastLocation"`
	Timestamp       time.Time     `json:"timestamp"`
	KeywordDetected bool          `json:"keywordDetected"`
}

func (d SafetyData) clone() SafetyData {
	if d.LastLocation != nil {
		p := *d.LastLocation
		d.LastLocation = &p
	}
	return d
}

// Status is the read-only object the UI renders.
type Status struct {
	CurrentZone        *geo.Zone                `json:"currentZone"`
	IsSafe             bool                     `json:"isSafe"`
	SafetyData         SafetyData               `json:"safetyData"`
	IsSafetyMonitoring bool                     `json:"isSafetyMonitoring"`
	ShowSafetyPopup    bool                     `json:"showSafetyPopup"`
	AccidentDetails    *detector.AccidentResult `json:"accidentDetails"`
}

// SystemStatus is a diagnostics snapshot.
type SystemStatus struct {
	State            State                                        `json:"state"`
	SessionID        string                                       `json:"sessionId,omitempty"`
	SessionStartedAt *time.Time                                   `json:"sessionStartedAt,omitempty"`
	ForcedSession    bool                                         `json:"forcedSession"`
	CurrentZone      *geo.Zone                                    `json:"currentZone"`
	DetectorsRunning []string                                     `json:"detectorsRunning"`
	KeywordListening bool                                         `json:"keywordListening"`
	AudioBaseline    *float64                                     `json:"audioBaseline,omitempty"`
	SpeechSupervisor string                                       `json:"speechSupervisor,omitempty"`
	Adapters         map[sensor.Kind]sensor.Status                `json:"adapters"`
	Permissions      map[sensor.Capability]sensor.PermissionState `json:"permissions,omitempty"`
	SafetyData       SafetyData                                   `json:"safetyData"`
	Pending          *detector.AccidentResult                     `json:"pending,omitempty"`
	LastDispatch     *alert.Report                                `json:"lastDispatch,omitempty"`
}

// ZoneSource supplies the red zones, cached for the app session.
type ZoneSource interface {
	FetchZones(ctx context.Context) ([]geo.Zone, error)
}

// Dispatcher sends SOS alerts.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind alert.Kind, location *geo.GeoPoint, message string) (*alert.Report, error)
}

// Broadcaster pushes events to connected UIs.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Publisher is the bus surface used for retained status and notices.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Vibrator plays a vibration pattern, reporting whether it was sent.
type Vibrator interface {
	Vibrate(pattern []int) bool
}

// Telemetry records time-series safety data.
type Telemetry interface {
	WriteSafetySample(deviceID, sessionID string, speed, acceleration float64, lat, lng float64, hasLocation bool, ts time.Time)
	WriteAnomaly(deviceID, sessionID, source, detail string, confidence float64, ts time.Time)
	WriteZoneTransition(deviceID, zoneID, edge string, ts time.Time)
	WriteDispatch(deviceID, kind, status string, contactsNotified, failures int, ts time.Time)
}

// Logger is the logging surface used by the monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
