package mqtt

import "errors"

// Sentinel errors for broker operations. Check with errors.Is.
var (
	// ErrNotConnected is returned by publish and subscribe while the broker is unreachable.
	// The host link treats it as "skip this publish", not as a failure.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the initial connect error.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrInvalidTopic rejects empty topics.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
