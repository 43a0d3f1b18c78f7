package mqtt

import "errors"

// Errors returned by the client. Check them with errors.Is.
var (
	// ErrNotConnected means the broker session is down; paho may be
	// reconnecting in the background.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned by Start when the first connection
	// does not come up in time.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed   = errors.New("mqtt: publish failed")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS rejects QoS levels other than 0, 1 and 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics, wildcards in publish topics and
	// misplaced wildcards in filters.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrTimeout means a broker acknowledgement did not arrive in time.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
