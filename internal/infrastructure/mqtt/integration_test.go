//go:build integration

package mqtt

import (
	"sync/atomic"
	"testing"
	"time"
)

// These tests need a broker at 127.0.0.1:1883.
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectAndClose(t *testing.T) {
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() after Close = true")
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "safewalk-int-roundtrip"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := Topics{}.DeviceStream("int-phone", StreamMotion)
	received := make(chan []byte, 1)
	if err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- payload
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	time.Sleep(100 * time.Millisecond)
	if err := client.PublishString(topic, `{"x":0,"y":0,"z":9.8}`, 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if string(msg) != `{"x":0,"y":0,"z":9.8}` {
			t.Errorf("payload = %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestIntegration_HandlerPanicRecovered(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "safewalk-int-panic"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	logger := &mockLogger{}
	client.SetLogger(logger)

	topic := "safewalk/test/panic"
	if err := client.Subscribe(topic, 1, func(string, []byte) error { panic("boom") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := client.PublishString(topic, "x", 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && logger.errors.Load() == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	if logger.errors.Load() == 0 {
		t.Error("panic was not logged")
	}
	if !client.IsConnected() {
		t.Error("client should survive a handler panic")
	}
}

type mockLogger struct {
	errors atomic.Int32
	warns  atomic.Int32
}

func (l *mockLogger) Error(string, ...any) { l.errors.Add(1) }
func (l *mockLogger) Warn(string, ...any)  { l.warns.Add(1) }
