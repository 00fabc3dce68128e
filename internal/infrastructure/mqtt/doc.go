// Package mqtt provides the MQTT client used to link the responder to a
// host application over a broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	fauxmo/state/{id}       retained device state, published on every change
//	fauxmo/command/{ref}    host state pushes, ref is an id or a name
//	fauxmo/health           periodic responder status
//	fauxmo/system/status    online/offline, also the LWT topic
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        ref, _ := mqtt.Topics{}.CommandRef(topic)
//	        return push(ref, payload)
//	    })
//
// Handlers run on paho's goroutines and are wrapped with panic recovery.
package mqtt
