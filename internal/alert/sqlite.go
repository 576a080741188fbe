package alert

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/safewalk-core/internal/geo"
)

// timeFormat keeps a fixed fraction width so created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

const defaultListLimit = 50

// SQLiteAdminSink stores admin alerts in the sos_alerts table.
type SQLiteAdminSink struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteAdminSink creates an admin sink over db.
func NewSQLiteAdminSink(db *sql.DB) *SQLiteAdminSink {
	return &SQLiteAdminSink{db: db, now: time.Now}
}

// RecordAdminAlert inserts a as an active alert. Missing ID and CreatedAt are filled in.
func (s *SQLiteAdminSink) RecordAdminAlert(ctx context.Context, a *AdminAlert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	if a.Status == "" {
		a.Status = "active"
	}

	var lat, lng sql.NullFloat64
	if a.Location != nil {
		lat = sql.NullFloat64{Float64: a.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: a.Location.Lng, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sos_alerts (id, user_id, latitude, longitude, reason, type, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, nullableString(a.UserID), lat, lng, a.Reason, string(a.Type), a.Status,
		a.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting sos alert: %w", err)
	}
	return nil
}

// Recent returns the newest alerts first. limit <= 0 means 50.
func (s *SQLiteAdminSink) Recent(ctx context.Context, limit int) ([]AdminAlert, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, latitude, longitude, reason, type, status, created_at
		 FROM sos_alerts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sos alerts: %w", err)
	}
	defer rows.Close()

	alerts := []AdminAlert{}
	for rows.Next() {
		var a AdminAlert
		var userID sql.NullString
		var lat, lng sql.NullFloat64
		var kind, created string
		if err := rows.Scan(&a.ID, &userID, &lat, &lng, &a.Reason, &kind, &a.Status, &created); err != nil {
			return nil, fmt.Errorf("scanning sos alert: %w", err)
		}
		a.UserID = userID.String
		a.Type = Kind(kind)
		if lat.Valid && lng.Valid {
			a.Location = &geo.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			a.CreatedAt = t
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sos alerts: %w", err)
	}
	return alerts, nil
}

// SQLiteDirectory reads emergency contacts from app_users and emergency_contacts.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory creates a directory over db.
func NewSQLiteDirectory(db *sql.DB) *SQLiteDirectory {
	return &SQLiteDirectory{db: db}
}

// ContactsFor returns userID's contacts in the order they were added.
func (d *SQLiteDirectory) ContactsFor(ctx context.Context, userID string) ([]Contact, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT u.id, u.phone, u.username
		 FROM emergency_contacts ec
		 JOIN app_users u ON u.id = ec.contact_id
		 WHERE ec.user_id = ?
		 ORDER BY ec.created_at, ec.rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying emergency contacts: %w", err)
	}
	defer rows.Close()

	contacts := []Contact{}
	for rows.Next() {
		var c Contact
		var phone sql.NullString
		if err := rows.Scan(&c.ID, &phone, &c.DisplayName); err != nil {
			return nil, fmt.Errorf("scanning emergency contact: %w", err)
		}
		c.Phone = phone.String
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating emergency contacts: %w", err)
	}
	return contacts, nil
}

// UpsertUser creates or renames an app user.
func (d *SQLiteDirectory) UpsertUser(ctx context.Context, id, username, phone string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO app_users (id, username, phone) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET username = excluded.username, phone = excluded.phone`,
		id, username, nullableString(phone))
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", id, err)
	}
	return nil
}

// AddContact links contactID as an emergency contact of userID.
// Adding the same pair twice is a no-op.
func (d *SQLiteDirectory) AddContact(ctx context.Context, userID, contactID, relationship string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO emergency_contacts (id, user_id, contact_id, relationship) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, contact_id) DO NOTHING`,
		uuid.NewString(), userID, contactID, nullableString(relationship))
	if err != nil {
		return fmt.Errorf("adding contact %s for %s: %w", contactID, userID, err)
	}
	return nil
}

// SQLiteNotificationStore stores contact notifications.
type SQLiteNotificationStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteNotificationStore creates a notification store over db.
func NewSQLiteNotificationStore(db *sql.DB) *SQLiteNotificationStore {
	return &SQLiteNotificationStore{db: db, now: time.Now}
}

// CreateNotification inserts n as unread.
func (s *SQLiteNotificationStore) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient_id, sender_id, message, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.SenderID, n.Message, string(n.Type),
		n.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting notification for %s: %w", n.RecipientID, err)
	}
	return nil
}

// ListFor returns recipientID's notifications, newest first.
func (s *SQLiteNotificationStore) ListFor(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient_id, sender_id, message, type, is_read, created_at
		 FROM notifications WHERE recipient_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		var kind, created string
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.Message, &kind, &n.Read, &created); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Type = Kind(kind)
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			n.CreatedAt = t
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return out, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
