package netstatus

import "errors"

var (
	// ErrNetworkNotReady is returned when no usable local address is known yet.
	ErrNetworkNotReady = errors.New("netstatus: network not ready")

	// ErrInvalidAddress is returned for unspecified IPs or missing MACs.
	ErrInvalidAddress = errors.New("netstatus: invalid address")
)
