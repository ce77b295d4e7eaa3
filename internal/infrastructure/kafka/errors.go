package kafka

import "errors"

// Sentinel errors for Kafka operations.
var (
	// ErrDisabled indicates Kafka export is disabled in config.
	ErrDisabled = errors.New("kafka: disabled in configuration")

	// ErrInvalidConfig indicates required producer settings are missing.
	ErrInvalidConfig = errors.New("kafka: invalid configuration")

	// ErrClosed indicates the producer has been closed.
	ErrClosed = errors.New("kafka: producer closed")

	// ErrPublishFailed indicates a message could not be written.
	ErrPublishFailed = errors.New("kafka: publish failed")
)
