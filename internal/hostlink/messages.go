package hostlink

import (
	"time"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
	"github.com/nerrad567/gray-logic-fauxmo/internal/dispatch"
	"github.com/nerrad567/gray-logic-fauxmo/internal/responder"
)

// StateMessage is the retained payload of fauxmo/state/{id}.
type StateMessage struct {
	ID        device.ID     `json:"id"`
	Name      string        `json:"name"`
	On        bool          `json:"on"`
	Intensity uint8         `json:"intensity"`
	Source    device.Source `json:"source,omitempty"`
	Timestamp string        `json:"timestamp"`
}

// CommandMessage is the payload of fauxmo/command/{ref}.
//
// Omitted fields follow the voice control rules: an intensity alone
// switches the device, and switching on at zero intensity restores full
// intensity.
type CommandMessage struct {
	On        *bool `json:"on"`
	Intensity *int  `json:"intensity"`
}

// TriggerMessage is published on a device's trigger topic.
type TriggerMessage struct {
	Device    string `json:"device"`
	State     bool   `json:"state"`
	Intensity uint8  `json:"intensity"`
}

// HealthMessage is the payload of fauxmo/health.
type HealthMessage struct {
	Status    string           `json:"status"`
	Responder responder.Status `json:"responder"`
	Timestamp string           `json:"timestamp"`
}

func stateFromDevice(d device.Device, source device.Source, at time.Time) StateMessage {
	return StateMessage{
		ID:        d.ID,
		Name:      d.Name,
		On:        d.State.On,
		Intensity: d.State.Intensity,
		Source:    source,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

func stateFromEvent(e dispatch.Event) StateMessage {
	return StateMessage{
		ID:        e.DeviceID,
		Name:      e.DeviceName,
		On:        e.On,
		Intensity: e.Intensity,
		Source:    e.Source,
		Timestamp: e.At.UTC().Format(time.RFC3339),
	}
}

// healthStatus condenses a responder status into one word.
func healthStatus(st responder.Status) string {
	switch {
	case !st.Enabled:
		return "disabled"
	case !st.Initialized:
		return "starting"
	case !st.NetworkReady:
		return "degraded"
	default:
		return "ok"
	}
}
