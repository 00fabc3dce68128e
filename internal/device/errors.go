package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnknownDevice) {
//	    // respond with the protocol's "not found" body
//	}
var (
	// ErrUnknownDevice is returned when an id or name does not match a registered device.
	ErrUnknownDevice = errors.New("device: not found")

	// ErrDuplicateName is returned when registering a name that is already present.
	ErrDuplicateName = errors.New("device: duplicate name")

	// ErrInvalidName is returned when a device name is empty, too long or all digits.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrRegistryFull is returned when every device id has been assigned.
	ErrRegistryFull = errors.New("device: registry full")

	// ErrMalformedRequest is returned when a control request cannot be parsed
	// or carries no state to apply.
	ErrMalformedRequest = errors.New("device: malformed request")
)
