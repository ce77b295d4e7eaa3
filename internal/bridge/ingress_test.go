package bridge

import (
	"errors"
	"testing"

	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/controlnet-core/internal/network"
	"github.com/nerrad567/controlnet-core/internal/node"
	"github.com/nerrad567/controlnet-core/internal/remote"
	"github.com/nerrad567/controlnet-core/internal/remote/codec"
	"github.com/nerrad567/controlnet-core/internal/routing"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

type mockSubscriber struct {
	handlers map[string]mqtt.MessageHandler
	err      error
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	if m.err != nil {
		return m.err
	}
	if m.handlers == nil {
		m.handlers = make(map[string]mqtt.MessageHandler)
	}
	m.handlers[topic] = h
	return nil
}

func newIngressRuntime(t *testing.T) *network.Runtime {
	t.Helper()
	rt, err := network.New(network.Config{}, clock.NewManual(epoch))
	if err != nil {
		t.Fatalf("network.New() error = %v", err)
	}
	t.Cleanup(rt.Shutdown)
	return rt
}

// ─── Ingress ────────────────────────────────────────────────────────

func TestIngress_Start(t *testing.T) {
	in := NewIngress(newIngressRuntime(t), 1)
	sub := &mockSubscriber{}
	if err := in.Start(sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for _, topic := range []string{"controlnet/signal/+", "controlnet/remote/+/heartbeat"} {
		if sub.handlers[topic] == nil {
			t.Errorf("no subscription on %s", topic)
		}
	}

	failing := &mockSubscriber{err: mqtt.ErrNotConnected}
	if err := in.Start(failing); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}

func TestIngress_HandleSignal(t *testing.T) {
	rt := newIngressRuntime(t)
	if _, err := rt.RegisterControlNode("sensor-1", node.TypeWorker, node.Metadata{}); err != nil {
		t.Fatal(err)
	}
	in := NewIngress(rt, 1)

	err := in.HandleSignal("controlnet/signal/sensor-1", []byte(`{"type":"temperature","data":{"value":21.5},"priority":"LOW"}`))
	if err != nil {
		t.Fatalf("HandleSignal() error = %v", err)
	}
	if got := rt.GetMetrics().SignalsProcessed; got != 1 {
		t.Errorf("SignalsProcessed = %d, want 1", got)
	}

	tests := []struct {
		name    string
		topic   string
		payload string
		want    error
	}{
		{"bad topic", "controlnet/event/x", `{"type":"t"}`, ErrBadTopic},
		{"bad json", "controlnet/signal/sensor-1", `{`, ErrBadPayload},
		{"unknown node", "controlnet/signal/ghost", `{"type":"t"}`, network.ErrUnknownNode},
		{"no type", "controlnet/signal/sensor-1", `{}`, network.ErrInvalidSignal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := in.HandleSignal(tt.topic, []byte(tt.payload)); !errors.Is(err, tt.want) {
				t.Errorf("HandleSignal() error = %v, want %v", err, tt.want)
			}
		})
	}

	if s := in.Stats(); s.Accepted != 1 || s.Rejected != 4 {
		t.Errorf("Stats() = %+v, want 1 accepted and 4 rejected", s)
	}
}

func TestIngress_PriorityOverride(t *testing.T) {
	sink := &recordingSink{}
	in := NewIngress(sink, 0)
	if err := in.HandleSignal("controlnet/signal/n1", []byte(`{"type":"t","priority":"LOW"}`)); err != nil {
		t.Fatal(err)
	}
	if sink.priority != signal.PriorityLow || sink.source != "n1" {
		t.Errorf("sink got priority %v from %q", sink.priority, sink.source)
	}
}

func TestIngress_HandleHeartbeat(t *testing.T) {
	rt := newIngressRuntime(t)
	if err := rt.AddRemoteSite(remote.Site{ID: "site-b", Protocol: codec.ModbusTCP, Address: "10.0.0.2:502"}); err != nil {
		t.Fatal(err)
	}
	in := NewIngress(rt, 1)

	if err := in.HandleHeartbeat("controlnet/remote/site-b/heartbeat", nil); err != nil {
		t.Fatalf("HandleHeartbeat() error = %v", err)
	}
	sites := rt.RemoteSites()
	if len(sites) != 1 || sites[0].Status != remote.StatusOnline {
		t.Errorf("sites = %+v", sites)
	}

	if err := in.HandleHeartbeat("controlnet/remote/ghost/heartbeat", nil); err == nil {
		t.Error("heartbeat from unknown site should fail")
	}
	if err := in.HandleHeartbeat("controlnet/signal/x", nil); !errors.Is(err, ErrBadTopic) {
		t.Errorf("HandleHeartbeat() error = %v, want ErrBadTopic", err)
	}
	if s := in.Stats(); s.Heartbeats != 1 {
		t.Errorf("Heartbeats = %d, want 1", s.Heartbeats)
	}
}

type recordingSink struct {
	source   string
	priority signal.Priority
}

func (r *recordingSink) ProcessControlSignal(typ string, data map[string]any, source string, opts routing.Options) (signal.Signal, error) {
	r.source = source
	r.priority = opts.Priority
	return signal.Signal{Type: typ, Source: source, Data: data}, nil
}

func (r *recordingSink) RemoteHeartbeat(string) error { return nil }
