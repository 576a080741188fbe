package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/safewalk-core/internal/infrastructure/mqtt"
)

// Publisher is the bus surface used to push alerts to phones and UIs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// PushNotifier stores a notification and then pushes it to the
// recipient's phone. The stored row is the delivery; a failed push is
// logged and the phone picks the row up on its next sync.
type PushNotifier struct {
	store  NotificationSink
	pub    Publisher
	qos    byte
	topics mqtt.Topics
	logger Logger
}

// NewPushNotifier wraps store with a push over pub.
func NewPushNotifier(store NotificationSink, pub Publisher, qos byte) *PushNotifier {
	return &PushNotifier{store: store, pub: pub, qos: qos, logger: noopLogger{}}
}

// SetLogger sets the logger used for push failures.
func (p *PushNotifier) SetLogger(logger Logger) {
	p.logger = logger
}

// CreateNotification implements NotificationSink.
func (p *PushNotifier) CreateNotification(ctx context.Context, n *Notification) error {
	if err := p.store.CreateNotification(ctx, n); err != nil {
		return err
	}
	if p.pub == nil {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		p.logger.Warn("encoding notification push", "notification_id", n.ID, "error", err)
		return nil
	}
	if err := p.pub.Publish(p.topics.UserNotification(n.RecipientID), payload, p.qos, false); err != nil {
		p.logger.Warn("notification push failed",
			"notification_id", n.ID,
			"recipient_id", n.RecipientID,
			"error", err,
		)
	}
	return nil
}

// BusAdminSink publishes admin alerts on safewalk/core/alert/{id}.
type BusAdminSink struct {
	pub    Publisher
	qos    byte
	topics mqtt.Topics
}

// NewBusAdminSink creates an admin sink that publishes over pub.
func NewBusAdminSink(pub Publisher, qos byte) *BusAdminSink {
	return &BusAdminSink{pub: pub, qos: qos}
}

// RecordAdminAlert implements AdminSink.
func (b *BusAdminSink) RecordAdminAlert(_ context.Context, a *AdminAlert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding admin alert: %w", err)
	}
	if err := b.pub.Publish(b.topics.CoreAlert(a.ID), payload, b.qos, false); err != nil {
		return fmt.Errorf("publishing admin alert: %w", err)
	}
	return nil
}
