package hostlink

import "errors"

var (
	// ErrInvalidCommand is returned for command messages that cannot be applied.
	ErrInvalidCommand = errors.New("hostlink: invalid command")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("hostlink: already started")
)
