package bus

import "errors"

// Domain-specific errors for bus operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations that need a
	// live broker connection, such as Publish.
	ErrNotConnected = errors.New("bus: not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("bus: connection failed")

	// ErrPublishFailed is returned when a publish is not acknowledged by
	// the broker.
	ErrPublishFailed = errors.New("bus: publish failed")

	// ErrSubscribeFailed is returned when a broker subscription fails.
	ErrSubscribeFailed = errors.New("bus: subscribe failed")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("bus: topic cannot be empty")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("bus: invalid QoS level (must be 0, 1, or 2)")
)
