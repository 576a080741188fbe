// Package mqtt provides MQTT client connectivity for SafeWalk Core.
//
// # Architecture
//
// The phone app is a thin sensor shell. It publishes location fixes,
// accelerometer samples, audio frames, speech transcripts and permission
// changes to the broker; the core subscribes, runs the safety state machine
// and publishes capture commands and notifications back.
//
//	Phone ↔ MQTT Broker ↔ SafeWalk Core
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Device topics must be ACL-restricted to the owning device
//   - Payloads carry exact positions; do not use a shared public broker
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.DeviceStream("phone-1", mqtt.StreamLocation), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
