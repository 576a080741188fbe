package sensor

import (
	"context"
	"errors"
	"testing"
)

func TestPermissions_DefaultsToUnknown(t *testing.T) {
	p := NewPermissions()
	for _, c := range Capabilities {
		if got := p.State(c); got != PermissionUnknown {
			t.Errorf("State(%s) = %s, want unknown", c, got)
		}
	}
	if len(p.Snapshot()) != len(Capabilities) {
		t.Errorf("Snapshot() has %d entries, want %d", len(p.Snapshot()), len(Capabilities))
	}
}

func TestPermissions_SetNotifiesOnChangeOnly(t *testing.T) {
	p := NewPermissions()
	var changes []PermissionChange
	cancel := p.Subscribe(func(ch PermissionChange) { changes = append(changes, ch) })

	p.Set(CapabilityMicrophone, PermissionGranted)
	p.Set(CapabilityMicrophone, PermissionGranted)
	p.Set(CapabilityLocation, PermissionDenied)

	if len(changes) != 2 {
		t.Fatalf("got %d notifications, want 2", len(changes))
	}
	if changes[0].From != PermissionUnknown || changes[0].To != PermissionGranted {
		t.Errorf("first change = %+v", changes[0])
	}
	if p.State(CapabilityMotion) != PermissionUnknown {
		t.Error("unrelated capability changed")
	}

	cancel()
	p.Set(CapabilityMicrophone, PermissionDenied)
	if len(changes) != 2 {
		t.Error("notified after cancel")
	}
}

func TestPermissions_CheckDistinguishesDeniedFromUnsupported(t *testing.T) {
	p := NewPermissions()
	p.Set(CapabilityMicrophone, PermissionDenied)
	p.Set(CapabilityMotion, PermissionUnsupported)

	if err := p.Check(CapabilityMicrophone); !errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnsupported) {
		t.Errorf("Check(microphone) = %v, want ErrPermissionDenied only", err)
	}
	if err := p.Check(CapabilityMotion); !errors.Is(err, ErrUnsupported) || errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Check(motion) = %v, want ErrUnsupported only", err)
	}
	if err := p.Check(CapabilityLocation); err != nil {
		t.Errorf("Check(location) = %v, want nil while unknown", err)
	}
}

func TestPermissions_AttachHandlesDeviceMessages(t *testing.T) {
	env := newTestEnv()
	if err := env.perms.Attach(env.bus, testDevice); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if err := env.bus.deliver(t, topics.DevicePermission(testDevice, "microphone"), map[string]string{"state": "granted"}); err != nil {
		t.Fatalf("deliver JSON: %v", err)
	}
	if err := env.bus.deliver(t, topics.DevicePermission(testDevice, "location"), "denied"); err != nil {
		t.Fatalf("deliver raw: %v", err)
	}
	if env.perms.State(CapabilityMicrophone) != PermissionGranted {
		t.Errorf("microphone = %s", env.perms.State(CapabilityMicrophone))
	}
	if env.perms.State(CapabilityLocation) != PermissionDenied {
		t.Errorf("location = %s", env.perms.State(CapabilityLocation))
	}

	err := env.bus.deliver(t, topics.DevicePermission(testDevice, "camera"), "granted")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("unknown capability error = %v", err)
	}
	err = env.bus.deliver(t, topics.DevicePermission(testDevice, "motion"), "maybe")
	if !errors.Is(err, ErrInvalidSample) {
		t.Errorf("bad state error = %v", err)
	}

	if env.perms.HasGesture() {
		t.Fatal("gesture recorded before any was sent")
	}
	_ = env.bus.deliver(t, topics.DeviceStream(testDevice, "gesture"), "{}")
	if !env.perms.HasGesture() {
		t.Error("gesture not recorded")
	}
}

func TestPermissions_RequestWaitsForDevice(t *testing.T) {
	env := newTestEnv()
	if err := env.perms.Attach(env.bus, testDevice); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	env.bus.onPublish = func(topic string, _ []byte) {
		if topic == topics.DeviceCommand(testDevice, "permission") {
			_ = env.bus.deliver(t, topics.DevicePermission(testDevice, "notifications"), "granted")
		}
	}

	st, err := env.perms.Request(context.Background(), CapabilityNotifications, true)
	if err != nil || st != PermissionGranted {
		t.Fatalf("Request() = %s, %v; want granted", st, err)
	}
	if !env.perms.HasGesture() {
		t.Error("gesture-backed request did not record the gesture")
	}
}

func TestPermissions_RequestSettledShortCircuits(t *testing.T) {
	env := newTestEnv()
	env.perms.Set(CapabilityLocation, PermissionDenied)

	st, err := env.perms.Request(context.Background(), CapabilityLocation, false)
	if st != PermissionDenied || !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Request() = %s, %v", st, err)
	}
	if len(env.bus.published) != 0 {
		t.Error("settled request still prompted the device")
	}
}

func TestPermissions_RequestCancelled(t *testing.T) {
	env := newTestEnv()
	_ = env.perms.Attach(env.bus, testDevice)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := env.perms.Request(ctx, CapabilityMicrophone, false)
	if st != PermissionUnknown {
		t.Errorf("state = %s, want unknown", st)
	}
	if !IsTransient(err) || !errors.Is(err, context.Canceled) {
		t.Errorf("Request() error = %v, want transient context.Canceled", err)
	}
}

func TestPermissions_RequestWithoutTransport(t *testing.T) {
	p := NewPermissions()
	if _, err := p.Request(context.Background(), CapabilityMicrophone, false); !errors.Is(err, ErrNoTransport) {
		t.Errorf("Request() error = %v, want ErrNoTransport", err)
	}
}

func TestParseCapabilityAndState(t *testing.T) {
	if _, err := ParseCapability("motion"); err != nil {
		t.Errorf("ParseCapability(motion) error = %v", err)
	}
	if _, err := ParseCapability("camera"); err == nil {
		t.Error("ParseCapability(camera) succeeded")
	}
	if st, err := ParsePermissionState(" Granted "); err != nil || st != PermissionGranted {
		t.Errorf("ParsePermissionState() = %s, %v", st, err)
	}
}
