package device

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is the registry-assigned device identifier. It equals the device's
// index at registration time and is never reused.
type ID uint8

// MaxDevices is the number of distinct ids available.
const MaxDevices = 256

// MaxNameLength is the longest name (in runes) a Hue light may carry.
const MaxNameLength = 32

// FullIntensity is the intensity assumed when a device is switched on
// without ever having been given a level.
const FullIntensity uint8 = 255

// Source identifies where a state change originated.
type Source string

// State change sources.
const (
	// SourceControl is a change requested by a voice client over the control endpoint.
	SourceControl Source = "control"

	// SourceHost is a change pushed by the surrounding application.
	SourceHost Source = "host"
)

// State is the switchable state of a device.
//
// Intensity is retained and reported for compatibility with discovery
// clients but is never acted on.
type State struct {
	On        bool  `json:"on"`
	Intensity uint8 `json:"intensity"`
}

// Device is a virtual on/off appliance.
type Device struct {
	ID        ID        `json:"id"`
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Reachable bool      `json:"reachable"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref refers to a device either by id or by name.
//
// The zero Ref refers to device id 0.
type Ref struct {
	id     ID
	name   string
	byName bool
}

// ByID returns a reference to the device with the given id.
func ByID(id ID) Ref {
	return Ref{id: id}
}

// ByName returns a reference to the device with the given name.
func ByName(name string) Ref {
	return Ref{name: name, byName: true}
}

// ParseRef interprets s as a device id when it is a decimal number in id
// range, otherwise as a device name.
func ParseRef(s string) Ref {
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return ByID(ID(n))
	}
	return ByName(s)
}

// ID returns the referenced id and true, or false when the reference is by name.
func (r Ref) ID() (ID, bool) {
	return r.id, !r.byName
}

// Name returns the referenced name and true, or false when the reference is by id.
func (r Ref) Name() (string, bool) {
	return r.name, r.byName
}

func (r Ref) String() string {
	if r.byName {
		return strconv.Quote(r.name)
	}
	return fmt.Sprintf("#%d", r.id)
}

// ControlRequest is a parsed state-change request for one device.
//
// At least one of On and Intensity must be set.
type ControlRequest struct {
	Target    Ref
	On        *bool
	Intensity *uint8
}

// Validate reports ErrMalformedRequest when the request carries nothing to apply.
func (c ControlRequest) Validate() error {
	if c.On == nil && c.Intensity == nil {
		return fmt.Errorf("%w: neither on nor intensity given", ErrMalformedRequest)
	}
	if name, byName := c.Target.Name(); byName && strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty device name", ErrMalformedRequest)
	}
	return nil
}

// Apply returns the state that results from applying the request to current.
//
// An intensity alone also switches the device (on when above zero).
// Switching on a device whose stored intensity is zero restores full intensity.
func (c ControlRequest) Apply(current State) State {
	next := current

	if c.On != nil {
		next.On = *c.On
	}
	if c.Intensity != nil {
		next.Intensity = *c.Intensity
		if c.On == nil {
			next.On = next.Intensity > 0
		}
	} else if next.On && next.Intensity == 0 {
		next.Intensity = FullIntensity
	}

	return next
}
