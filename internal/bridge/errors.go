package bridge

import "errors"

var (
	// ErrNoSink is returned by NewExporter when neither MQTT nor Kafka is set.
	ErrNoSink = errors.New("bridge: no export sink configured")

	// ErrBadTopic is returned for an ingress message on an unexpected topic.
	ErrBadTopic = errors.New("bridge: unexpected topic")

	// ErrBadPayload is returned for an ingress payload that cannot be decoded.
	ErrBadPayload = errors.New("bridge: invalid payload")
)
