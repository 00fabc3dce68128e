package responder

import "errors"

var (
	// ErrNotInitialized is returned by host state pushes made before the
	// responder has completed network-ready initialization.
	ErrNotInitialized = errors.New("responder: not initialized")

	// ErrDisabled is returned by host state pushes while the responder is
	// disabled by configuration.
	ErrDisabled = errors.New("responder: disabled")
)
