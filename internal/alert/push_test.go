package alert

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type publishRecord struct {
	topic   string
	payload []byte
	qos     byte
}

type fakePublisher struct {
	mu    sync.Mutex
	err   error
	sent  []publishRecord
	calls int
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, publishRecord{topic: topic, payload: payload, qos: qos})
	return nil
}

type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Error(string, ...any) {}
func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestPushNotifier_StoresThenPushes(t *testing.T) {
	store := &fakeNotifier{}
	pub := &fakePublisher{}
	p := NewPushNotifier(store, pub, 1)

	n := &Notification{ID: "n1", RecipientID: "c1", SenderID: "u1", Message: "help", Type: KindManualSOS}
	if err := p.CreateNotification(context.Background(), n); err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}
	if len(store.sent) != 1 {
		t.Fatalf("stored = %d, want 1", len(store.sent))
	}
	if len(pub.sent) != 1 {
		t.Fatalf("pushed = %d, want 1", len(pub.sent))
	}
	if pub.sent[0].topic != "safewalk/user/c1/notification" || pub.sent[0].qos != 1 {
		t.Errorf("push = %s qos %d", pub.sent[0].topic, pub.sent[0].qos)
	}
	var got Notification
	if err := json.Unmarshal(pub.sent[0].payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.ID != "n1" || got.Message != "help" {
		t.Errorf("payload = %+v", got)
	}
}

func TestPushNotifier_PushFailureIsNotDeliveryFailure(t *testing.T) {
	logger := &captureLogger{}
	p := NewPushNotifier(&fakeNotifier{}, &fakePublisher{err: errors.New("not connected")}, 1)
	p.SetLogger(logger)

	if err := p.CreateNotification(context.Background(), &Notification{RecipientID: "c1"}); err != nil {
		t.Errorf("CreateNotification() error = %v, want nil", err)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings = %v, want one", logger.warns)
	}
}

func TestPushNotifier_StoreFailureSkipsPush(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeNotifier{failFor: map[string]error{"c1": errors.New("locked")}}
	p := NewPushNotifier(store, pub, 1)

	if err := p.CreateNotification(context.Background(), &Notification{RecipientID: "c1"}); err == nil {
		t.Error("CreateNotification() error = nil, want store error")
	}
	if pub.calls != 0 {
		t.Errorf("publish calls = %d, want 0", pub.calls)
	}
}

func TestBusAdminSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewBusAdminSink(pub, 1)

	if err := sink.RecordAdminAlert(context.Background(), &AdminAlert{ID: "a1", Type: KindManualSOS, Reason: "help"}); err != nil {
		t.Fatalf("RecordAdminAlert() error = %v", err)
	}
	if len(pub.sent) != 1 || pub.sent[0].topic != "safewalk/core/alert/a1" {
		t.Errorf("sent = %+v", pub.sent)
	}

	pub.err = errors.New("offline")
	if err := sink.RecordAdminAlert(context.Background(), &AdminAlert{ID: "a2"}); err == nil {
		t.Error("RecordAdminAlert() error = nil, want publish error")
	}
}

func TestMultiAdminSink(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		primary   error
		secondary error
		wantErr   bool
		wantWarns int
	}{
		{"all succeed", nil, nil, false, 0},
		{"secondary fails", nil, boom, false, 1},
		{"primary fails", boom, nil, true, 0},
		{"both fail", boom, boom, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &fakeAdmin{err: tt.primary}
			secondary := &fakeAdmin{err: tt.secondary}
			logger := &captureLogger{}
			m := NewMultiAdminSink("sqlite", primary).Add("rabbitmq", secondary)
			m.SetLogger(logger)

			err := m.RecordAdminAlert(context.Background(), &AdminAlert{ID: "a1"})
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, boom) {
				t.Errorf("error = %v, want to wrap boom", err)
			}
			if len(primary.alerts) != 1 || len(secondary.alerts) != 1 {
				t.Errorf("attempts primary=%d secondary=%d, want 1/1", len(primary.alerts), len(secondary.alerts))
			}
			if len(logger.warns) != tt.wantWarns {
				t.Errorf("warnings = %d, want %d", len(logger.warns), tt.wantWarns)
			}
		})
	}
}
