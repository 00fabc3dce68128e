package hue

import (
	"strconv"

	"github.com/amimof/huego"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
)

// Fixed light attributes. Echo devices only control lights that look
// like a recent colour bulb.
const (
	lightType             = "Extended color light"
	lightModelID          = "LCT015"
	lightManufacturerName = "Philips"
	lightSwVersion        = "1.46.13_r26312"
)

// LightNumber returns the Hue light number of a device.
func LightNumber(id device.ID) int {
	return int(id) + 1
}

// ParseLight resolves a {light} path segment.
//
// A decimal segment is a light number (1..256); zero or out-of-range
// numbers resolve to nothing. Any other segment is a device name.
func ParseLight(segment string) (device.Ref, bool) {
	if n, err := strconv.Atoi(segment); err == nil {
		if n < 1 || n > device.MaxDevices {
			return device.Ref{}, false
		}
		return device.ByID(device.ID(n - 1)), true
	}
	if segment == "" {
		return device.Ref{}, false
	}
	return device.ByName(segment), true
}

// Light renders a device as a Hue light.
func (i Identity) Light(d device.Device) huego.Light {
	return huego.Light{
		State: &huego.State{
			On:        d.State.On,
			Bri:       d.State.Intensity,
			Reachable: d.Reachable,
			ColorMode: "hs",
			Alert:     "none",
			Effect:    "none",
		},
		Type:             lightType,
		Name:             d.Name,
		ModelID:          lightModelID,
		ManufacturerName: lightManufacturerName,
		UniqueID:         i.UniqueID(d.ID),
		SwVersion:        lightSwVersion,
	}
}

// Lights renders every device keyed by light number.
func (i Identity) Lights(devices []device.Device) map[string]huego.Light {
	lights := make(map[string]huego.Light, len(devices))
	for _, d := range devices {
		lights[strconv.Itoa(LightNumber(d.ID))] = i.Light(d)
	}
	return lights
}
