package mqtt

import "errors"

var (
	// ErrDisabled is returned by Connect when MQTT is switched off.
	ErrDisabled = errors.New("mqtt: disabled")

	ErrConnectionFailed = errors.New("mqtt: connect failed")
	ErrNotConnected     = errors.New("mqtt: not connected")

	// ErrTimeout wraps any operation the broker did not acknowledge in time.
	ErrTimeout = errors.New("mqtt: broker did not acknowledge")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	ErrInvalidTopic    = errors.New("mqtt: empty topic")
	ErrInvalidQoS      = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
	ErrNilHandler      = errors.New("mqtt: nil handler")
)
