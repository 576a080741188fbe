package sensor

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/safewalk-core/internal/clock"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/mqtt"
)

// ─── Helpers ────────────────────────────────────────────────────────

const testDevice = "phone-001"

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type published struct {
	topic   string
	payload []byte
}

// fakeBus delivers messages synchronously to subscribed handlers.
type fakeBus struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []published
	unsubs    []string
	onPublish func(topic string, payload []byte)
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBus) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	b.unsubs = append(b.unsubs, topic)
	return nil
}

func (b *fakeBus) Publish(topic string, payload []byte, _ byte, _ bool) error {
	b.mu.Lock()
	b.published = append(b.published, published{topic: topic, payload: payload})
	hook := b.onPublish
	b.mu.Unlock()
	if hook != nil {
		hook(topic, payload)
	}
	return nil
}

// deliver routes a message like a broker would, honouring + wildcards.
func (b *fakeBus) deliver(t *testing.T, topic string, payload any) error {
	t.Helper()
	var raw []byte
	switch p := payload.(type) {
	case string:
		raw = []byte(p)
	case []byte:
		raw = p
	default:
		var err error
		if raw, err = json.Marshal(p); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}

	b.mu.Lock()
	var matched []mqtt.MessageHandler
	for filter, h := range b.handlers {
		if topicMatches(filter, topic) {
			matched = append(matched, h)
		}
	}
	b.mu.Unlock()

	var firstErr error
	for _, h := range matched {
		if err := h(topic, raw); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *fakeBus) subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[topic]
	return ok
}

// commands returns the actions published on a command topic.
func (b *fakeBus) commands(topic string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, p := range b.published {
		if p.topic != topic {
			continue
		}
		var c struct {
			Action string `json:"action"`
		}
		_ = json.Unmarshal(p.payload, &c)
		out = append(out, c.Action)
	}
	return out
}

func (b *fakeBus) lastPayload(topic string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.published) - 1; i >= 0; i-- {
		if b.published[i].topic == topic {
			return b.published[i].payload
		}
	}
	return nil
}

func topicMatches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	p := strings.Split(topic, "/")
	if len(f) != len(p) {
		return false
	}
	for i := range f {
		if f[i] != "+" && f[i] != p[i] {
			return false
		}
	}
	return true
}

// eventLog collects adapter events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) statuses() []Status {
	var out []Status
	for _, ev := range l.all() {
		if ev.Status != "" {
			out = append(out, ev.Status)
		}
	}
	return out
}

type testEnv struct {
	bus   *fakeBus
	clock *clock.Fake
	perms *Permissions
	opts  Options
}

func newTestEnv() *testEnv {
	bus := newFakeBus()
	clk := clock.NewFake(testStart)
	perms := NewPermissions()
	return &testEnv{
		bus:   bus,
		clock: clk,
		perms: perms,
		opts:  Options{Bus: bus, DeviceID: testDevice, Permissions: perms, Clock: clk},
	}
}

var topics mqtt.Topics
