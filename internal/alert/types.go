package alert

import (
	"context"
	"time"

	"github.com/nerrad567/safewalk-core/internal/geo"
)

// Kind classifies why an alert was sent.
type Kind string

const (
	KindAccidentConfirmed Kind = "accident_confirmed"
	KindVoiceKeyword      Kind = "voice_keyword"
	KindStationary        Kind = "stationary_user"
	KindManualSOS         Kind = "manual_sos"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAccidentConfirmed, KindVoiceKeyword, KindStationary, KindManualSOS:
		return true
	}
	return false
}

// AdminAlert is the operations-facing record of one dispatch.
type AdminAlert struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id,omitempty"`
	Location  *geo.GeoPoint `json:"location,omitempty"`
	Reason    string        `json:"reason"`
	Type      Kind          `json:"type"`
	Status    string        `json:"status,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Contact is one of a user's emergency contacts.
type Contact struct {
	ID          string `json:"id"`
	Phone       string `json:"phone,omitempty"`
	DisplayName string `json:"display_name"`
}

// Notification is delivered to a single contact.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	SenderID    string    `json:"sender_id"`
	Message     string    `json:"message"`
	Type        Kind      `json:"type"`
	Read        bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Status summarises a dispatch.
type Status string

const (
	StatusSent    Status = "sent"    // everything attempted was delivered
	StatusPartial Status = "partial" // something was delivered, something failed
	StatusFailed  Status = "failed"  // nothing was delivered
)

// Failure records one target that could not be reached.
type Failure struct {
	Target string `json:"target"` // "admin", "directory" or "contact:{id}"
	Error  string `json:"error"`
}

// Report describes the outcome of one dispatch.
type Report struct {
	ID               string    `json:"id"`
	Kind             Kind      `json:"kind"`
	Status           Status    `json:"status"`
	AdminSent        bool      `json:"admin_sent"`
	ContactsNotified int       `json:"contacts_notified"`
	ContactsTotal    int       `json:"contacts_total"`
	Failures         []Failure `json:"failures,omitempty"`
	DispatchedAt     time.Time `json:"dispatched_at"`
}

// Delivered reports whether any half of the dispatch got through.
func (r *Report) Delivered() bool {
	return r.AdminSent || r.ContactsNotified > 0
}

func (r *Report) fail(target string, err error) {
	r.Failures = append(r.Failures, Failure{Target: target, Error: err.Error()})
}

func (r *Report) settle() {
	switch {
	case !r.Delivered():
		r.Status = StatusFailed
	case len(r.Failures) > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusSent
	}
}

// AdminSink records operations-facing alerts.
type AdminSink interface {
	RecordAdminAlert(ctx context.Context, a *AdminAlert) error
}

// Directory resolves a user's emergency contacts.
type Directory interface {
	ContactsFor(ctx context.Context, userID string) ([]Contact, error)
}

// NotificationSink delivers a notification to one contact.
type NotificationSink interface {
	CreateNotification(ctx context.Context, n *Notification) error
}

// Identity reports the signed-in user, if any.
type Identity interface {
	CurrentUser() (string, bool)
}

// Logger is the logging surface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
