package bridge

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/controlnet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/controlnet-core/internal/routing"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

// SignalSink accepts signals. *network.Runtime satisfies it.
type SignalSink interface {
	ProcessControlSignal(typ string, data map[string]any, source string, opts routing.Options) (signal.Signal, error)
	RemoteHeartbeat(id string) error
}

// Subscriber registers MQTT handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// SignalMessage is the JSON payload expected on controlnet/signal/{nodeID}.
type SignalMessage struct {
	Type     string          `json:"type"`
	Data     map[string]any  `json:"data,omitempty"`
	Priority signal.Priority `json:"priority,omitempty"`
}

// IngressStats counts ingress activity.
type IngressStats struct {
	Accepted   int64 `json:"accepted"`
	Rejected   int64 `json:"rejected"`
	Heartbeats int64 `json:"heartbeats"`
}

// Ingress feeds MQTT signal and heartbeat traffic into the runtime.
type Ingress struct {
	sink   SignalSink
	qos    byte
	logger Logger

	accepted   atomic.Int64
	rejected   atomic.Int64
	heartbeats atomic.Int64
}

// NewIngress creates an ingress delivering to sink.
func NewIngress(sink SignalSink, qos byte) *Ingress {
	return &Ingress{sink: sink, qos: qos, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (in *Ingress) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	in.logger = logger
}

// Start subscribes to signal and remote heartbeat topics.
func (in *Ingress) Start(sub Subscriber) error {
	topics := mqtt.Topics{}
	if err := sub.Subscribe(topics.AllSignals(), in.qos, in.HandleSignal); err != nil {
		return fmt.Errorf("subscribing to signals: %w", err)
	}
	if err := sub.Subscribe(topics.AllRemoteHeartbeats(), in.qos, in.HandleHeartbeat); err != nil {
		return fmt.Errorf("subscribing to remote heartbeats: %w", err)
	}
	return nil
}

// HandleSignal submits one signal message. The node ID comes from the topic.
func (in *Ingress) HandleSignal(topic string, payload []byte) error {
	nodeID, ok := mqtt.SignalNodeID(topic)
	if !ok {
		in.rejected.Add(1)
		return fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}

	var msg SignalMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		in.rejected.Add(1)
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}

	sig, err := in.sink.ProcessControlSignal(msg.Type, msg.Data, nodeID, routing.Options{Priority: msg.Priority})
	if err != nil {
		in.rejected.Add(1)
		return fmt.Errorf("signal from %s: %w", nodeID, err)
	}

	in.accepted.Add(1)
	in.logger.Debug("signal ingested", "node_id", nodeID, "type", sig.Type, "signal_id", sig.ID)
	return nil
}

// HandleHeartbeat records liveness for the site named in the topic. The
// payload is ignored.
func (in *Ingress) HandleHeartbeat(topic string, _ []byte) error {
	siteID, ok := mqtt.RemoteSiteID(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	if err := in.sink.RemoteHeartbeat(siteID); err != nil {
		return fmt.Errorf("heartbeat from %s: %w", siteID, err)
	}
	in.heartbeats.Add(1)
	return nil
}

// Stats returns the ingress counters.
func (in *Ingress) Stats() IngressStats {
	return IngressStats{
		Accepted:   in.accepted.Load(),
		Rejected:   in.rejected.Load(),
		Heartbeats: in.heartbeats.Load(),
	}
}
