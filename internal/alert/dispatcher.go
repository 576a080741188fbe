package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/safewalk-core/internal/geo"
)

// Deps are the collaborators a Dispatcher sends through.
// Admin is required. A nil Directory or Notifications skips the contact half.
type Deps struct {
	Admin         AdminSink
	Directory     Directory
	Notifications NotificationSink
	Identity      Identity
}

// Dispatcher sends an alert to the admin sink and to every emergency
// contact of the signed-in user.
type Dispatcher struct {
	admin         AdminSink
	directory     Directory
	notifications NotificationSink
	identity      Identity
	logger        Logger
	now           func() time.Time
}

// NewDispatcher creates a dispatcher over deps.
func NewDispatcher(deps Deps) (*Dispatcher, error) {
	if deps.Admin == nil {
		return nil, ErrNoAdminSink
	}
	return &Dispatcher{
		admin:         deps.Admin,
		directory:     deps.Directory,
		notifications: deps.Notifications,
		identity:      deps.Identity,
		logger:        noopLogger{},
		now:           time.Now,
	}, nil
}

// SetLogger sets the logger used for per-target failures.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Dispatch sends one alert.
//
// The admin alert is always attempted. Contacts are notified only when a
// user is signed in; a user with no contacts is not an error. Every contact
// is attempted even after an earlier one fails.
//
// The returned report is non-nil whenever kind is valid. The error is a
// *DispatchError (matching ErrDispatchFailed) only when nothing was
// delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, location *geo.GeoPoint, message string) (*Report, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	now := d.now().UTC()
	report := &Report{
		ID:           uuid.NewString(),
		Kind:         kind,
		DispatchedAt: now,
	}

	var userID string
	var signedIn bool
	if d.identity != nil {
		userID, signedIn = d.identity.CurrentUser()
	}

	var loc *geo.GeoPoint
	if location != nil {
		p := *location
		loc = &p
	}
	admin := &AdminAlert{
		ID:        report.ID,
		UserID:    userID,
		Location:  loc,
		Reason:    message,
		Type:      kind,
		CreatedAt: now,
	}
	if err := d.admin.RecordAdminAlert(ctx, admin); err != nil {
		d.logger.Error("admin alert failed", "alert_id", report.ID, "kind", kind, "error", err)
		report.fail("admin", err)
	} else {
		report.AdminSent = true
	}

	switch {
	case !signedIn:
		d.logger.Warn("no signed-in user, contact notifications skipped", "alert_id", report.ID, "kind", kind)
	case d.directory == nil || d.notifications == nil:
		d.logger.Warn("no contact directory configured", "alert_id", report.ID)
	default:
		d.notifyContacts(ctx, report, userID, message, now)
	}

	report.settle()
	d.logger.Info("alert dispatched",
		"alert_id", report.ID,
		"kind", kind,
		"status", report.Status,
		"admin_sent", report.AdminSent,
		"contacts_notified", report.ContactsNotified,
		"contacts_total", report.ContactsTotal,
	)

	if report.Status == StatusFailed {
		return report, &DispatchError{Report: report}
	}
	return report, nil
}

func (d *Dispatcher) notifyContacts(ctx context.Context, report *Report, userID, message string, now time.Time) {
	contacts, err := d.directory.ContactsFor(ctx, userID)
	if err != nil {
		d.logger.Error("contact lookup failed", "alert_id", report.ID, "user_id", userID, "error", err)
		report.fail("directory", err)
		return
	}
	report.ContactsTotal = len(contacts)

	for _, c := range contacts {
		n := &Notification{
			ID:          uuid.NewString(),
			RecipientID: c.ID,
			SenderID:    userID,
			Message:     message,
			Type:        report.Kind,
			CreatedAt:   now,
		}
		if err := d.notifications.CreateNotification(ctx, n); err != nil {
			d.logger.Error("contact notification failed",
				"alert_id", report.ID,
				"contact_id", c.ID,
				"error", err,
			)
			report.fail("contact:"+c.ID, err)
			continue
		}
		report.ContactsNotified++
	}
}
