package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/network"
	"github.com/nerrad567/controlnet-core/internal/node"
	"github.com/nerrad567/controlnet-core/internal/routing"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, reg
}

// ─── Event-driven collector ─────────────────────────────────────────

func TestCollector_Handle(t *testing.T) {
	c, _ := newTestCollector(t)

	c.Handle(eventbus.Event{Name: eventbus.SignalProcessed, Payload: eventbus.SignalEvent{
		Signal: signal.Signal{Type: "temperature"}, ResponseTime: 2 * time.Millisecond,
	}})
	c.Handle(eventbus.Event{Name: eventbus.SignalProcessed, Payload: eventbus.SignalEvent{
		Signal: signal.Signal{Type: "temperature"},
	}})
	c.Handle(eventbus.Event{Name: eventbus.RuleTriggered, Payload: eventbus.RuleEvent{RuleID: "r1", Success: false}})
	c.Handle(eventbus.Event{Name: eventbus.LoopOutput, Payload: eventbus.LoopEvent{LoopID: "l1", LoopType: "PID", Output: 42.5, Error: -1}})
	c.Handle(eventbus.Event{Name: eventbus.AlarmRaised, Payload: eventbus.AlarmEvent{Severity: "critical"}})
	c.Handle(eventbus.Event{Name: eventbus.HealthChecked, Payload: eventbus.HealthEvent{NetworkHealth: 0.5}})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"signals", testutil.ToFloat64(c.signalsProcessed.WithLabelValues("temperature")), 2},
		{"rule errors", testutil.ToFloat64(c.rulesTriggered.WithLabelValues("r1", "error")), 1},
		{"loop output", testutil.ToFloat64(c.loopOutput.WithLabelValues("l1", "PID")), 42.5},
		{"loop error", testutil.ToFloat64(c.loopError.WithLabelValues("l1", "PID")), -1},
		{"critical alarms", testutil.ToFloat64(c.alarms.WithLabelValues("critical")), 1},
		{"health", testutil.ToFloat64(c.networkHealth), 0.5},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(c.responseTime); n != 1 {
		t.Errorf("response histogram series = %d, want 1", n)
	}
}

func TestCollector_EmergencyCycle(t *testing.T) {
	c, _ := newTestCollector(t)

	c.Handle(eventbus.Event{Name: eventbus.EmergencyStopActivated, Payload: eventbus.EmergencyEvent{EStopID: "main"}})
	if got := testutil.ToFloat64(c.emergencyActive); got != 1 {
		t.Errorf("emergency_active after stop = %v, want 1", got)
	}

	c.Handle(eventbus.Event{Name: eventbus.EmergencyModeReset, Payload: eventbus.EmergencyEvent{}})
	if got := testutil.ToFloat64(c.emergencyActive); got != 0 {
		t.Errorf("emergency_active after reset = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.emergencyStops.WithLabelValues("main")); got != 1 {
		t.Errorf("emergency_stops_total = %v, want 1", got)
	}
}

func TestCollector_RemoteStatusMovesLabel(t *testing.T) {
	c, _ := newTestCollector(t)

	c.Handle(eventbus.Event{Name: eventbus.RemoteSiteStatusChanged, Payload: eventbus.RemoteSiteEvent{SiteID: "north", Status: "ONLINE"}})
	c.Handle(eventbus.Event{Name: eventbus.RemoteSiteStatusChanged, Payload: eventbus.RemoteSiteEvent{SiteID: "north", Previous: "ONLINE", Status: "TIMEOUT"}})

	if got := testutil.ToFloat64(c.remoteStatus.WithLabelValues("north", "ONLINE")); got != 0 {
		t.Errorf("ONLINE = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.remoteStatus.WithLabelValues("north", "TIMEOUT")); got != 1 {
		t.Errorf("TIMEOUT = %v, want 1", got)
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("second New() on the same registry should fail")
	}
}

// ─── Runtime collector ──────────────────────────────────────────────

type stubSource struct{ m network.Metrics }

func (s stubSource) GetMetrics() network.Metrics { return s.m }

func TestRuntimeCollector(t *testing.T) {
	rc := NewRuntimeCollector(stubSource{m: network.Metrics{
		SignalsProcessed:    7,
		NodesConnected:      3,
		AverageResponseTime: 500 * time.Millisecond,
	}})

	expected := `
# HELP controlnet_runtime_signals_processed_total Signals accepted and evaluated
# TYPE controlnet_runtime_signals_processed_total counter
controlnet_runtime_signals_processed_total 7
# HELP controlnet_runtime_nodes_connected Registered control nodes
# TYPE controlnet_runtime_nodes_connected gauge
controlnet_runtime_nodes_connected 3
# HELP controlnet_runtime_average_response_seconds Mean signal response time
# TYPE controlnet_runtime_average_response_seconds gauge
controlnet_runtime_average_response_seconds 0.5
`
	if err := testutil.CollectAndCompare(rc, strings.NewReader(expected),
		"controlnet_runtime_signals_processed_total",
		"controlnet_runtime_nodes_connected",
		"controlnet_runtime_average_response_seconds",
	); err != nil {
		t.Error(err)
	}

	if n := testutil.CollectAndCount(rc); n != 10 {
		t.Errorf("CollectAndCount() = %d, want 10", n)
	}
}

// ─── Wired to a runtime ─────────────────────────────────────────────

func TestCollector_AttachedToRuntime(t *testing.T) {
	rt, err := network.New(network.Config{}, clock.NewManual(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("network.New() error = %v", err)
	}
	t.Cleanup(rt.Shutdown)

	c, reg := newTestCollector(t)
	c.Attach(rt)
	reg.MustRegister(NewRuntimeCollector(rt))

	if _, err := rt.RegisterControlNode("w1", node.TypeWorker, node.Metadata{}); err != nil {
		t.Fatalf("RegisterControlNode() error = %v", err)
	}
	if _, err := rt.ProcessControlSignal("temperature", map[string]any{"value": 20.0}, "w1", routing.Options{}); err != nil {
		t.Fatalf("ProcessControlSignal() error = %v", err)
	}
	if _, err := rt.ActivateEmergencyStop("main", "test"); err != nil {
		t.Fatalf("ActivateEmergencyStop() error = %v", err)
	}

	if got := testutil.ToFloat64(c.signalsProcessed.WithLabelValues("temperature")); got != 1 {
		t.Errorf("signals{temperature} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.nodeEvents.WithLabelValues(string(eventbus.NodeRegistered))); got != 1 {
		t.Errorf("node events{nodeRegistered} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.emergencyActive); got != 1 {
		t.Errorf("emergency_active = %v, want 1", got)
	}

	// The emergency stop trips interlocks whose actuation signals are routed
	// and counted alongside node signals.
	processed := rt.GetMetrics().SignalsProcessed
	if processed < 2 {
		t.Errorf("SignalsProcessed = %d, want actuation signals counted", processed)
	}

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		fmt.Sprintf("controlnet_runtime_signals_processed_total %d", processed),
		`controlnet_safety_emergency_stops_total{estop="main"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}
