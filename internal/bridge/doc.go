// Package bridge connects the control network runtime to the message
// brokers.
//
//	runtime bus ──► Exporter ──► MQTT controlnet/event/{name}
//	                         └─► Kafka topic (keyed by entity ID)
//
//	MQTT controlnet/signal/{nodeID}          ──► Ingress ──► ProcessControlSignal
//	MQTT controlnet/remote/{site}/heartbeat  ──► Ingress ──► RemoteHeartbeat
//
// The exporter never blocks the publisher: events are queued and a single
// worker encodes and sends them. Overflow is dropped and counted in Stats.
package bridge
