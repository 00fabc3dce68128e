package mqtt

import "fmt"

// TopicPrefix is the root of every topic the responder publishes or
// subscribes to.
const TopicPrefix = "fauxmo"

// Topics provides builders for fauxmo MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceState("3") // "fauxmo/state/3"
type Topics struct{}

// DeviceState returns the retained state topic of one device.
//
// Example: fauxmo/state/3
func (Topics) DeviceState(id string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, id)
}

// DeviceCommand returns the topic the host publishes state pushes on.
// ref is a device id or name.
//
// Example: fauxmo/command/kitchen light
func (Topics) DeviceCommand(ref string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, ref)
}

// Health returns the periodic responder health topic.
//
// Example: fauxmo/health
func (Topics) Health() string {
	return TopicPrefix + "/health"
}

// SystemStatus returns the online/offline status topic (also the LWT topic).
//
// Example: fauxmo/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: fauxmo/state/+
func (Topics) AllDeviceStates() string {
	return TopicPrefix + "/state/+"
}

// AllDeviceCommands returns a pattern matching every command topic.
//
// Pattern: fauxmo/command/+
func (Topics) AllDeviceCommands() string {
	return TopicPrefix + "/command/+"
}

// CommandRef extracts the device reference from a command topic.
// It returns false for topics outside fauxmo/command/.
func (Topics) CommandRef(topic string) (string, bool) {
	prefix := TopicPrefix + "/command/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	return topic[len(prefix):], true
}

// AllTopics returns a pattern matching all fauxmo topics.
//
// Pattern: fauxmo/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
