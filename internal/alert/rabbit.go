package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the fanout exchange admin consumers bind to.
const DefaultExchange = "safewalk.sos"

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher fans admin alerts out over RabbitMQ.
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	closed   bool
}

// DialRabbit connects to url and declares exchange as a durable fanout.
func DialRabbit(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	p, err := newRabbitPublisher(ch, exchange)
	if err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newRabbitPublisher(ch amqpChannel, exchange string) (*RabbitPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &RabbitPublisher{ch: ch, exchange: exchange}, nil
}

type sosMessage struct {
	AlertID   string     `json:"alert_id"`
	UserID    string     `json:"user_id,omitempty"`
	Type      Kind       `json:"type"`
	Reason    string     `json:"reason"`
	Location  *sosCoords `json:"location,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

type sosCoords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RecordAdminAlert implements AdminSink.
func (p *RabbitPublisher) RecordAdminAlert(ctx context.Context, a *AdminAlert) error {
	msg := sosMessage{
		AlertID:   a.ID,
		UserID:    a.UserID,
		Type:      a.Type,
		Reason:    a.Reason,
		Timestamp: a.CreatedAt.UnixMilli(),
	}
	if a.Location != nil {
		msg.Location = &sosCoords{Latitude: a.Location.Lat, Longitude: a.Location.Lng}
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    a.ID,
		Type:         string(a.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close closes the channel and, when dialled, the connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Healthy reports whether the connection is open.
func (p *RabbitPublisher) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	return p.conn == nil || !p.conn.IsClosed()
}
