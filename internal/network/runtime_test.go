package network

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/controlnet-core/internal/automation"
	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/control"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/node"
	"github.com/nerrad567/controlnet-core/internal/remote"
	"github.com/nerrad567/controlnet-core/internal/remote/codec"
	"github.com/nerrad567/controlnet-core/internal/routing"
	"github.com/nerrad567/controlnet-core/internal/safety"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

// ─── Helpers ────────────────────────────────────────────────────────

func newTestRuntime(t *testing.T, cfg Config) (*Runtime, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(epoch)
	rt, err := New(cfg, clk)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(rt.Shutdown)
	return rt, clk
}

func mustNode(t *testing.T, rt *Runtime, id string, typ node.Type) {
	t.Helper()
	if _, err := rt.RegisterControlNode(id, typ, node.Metadata{}); err != nil {
		t.Fatalf("RegisterControlNode(%s) error = %v", id, err)
	}
}

func mustLoop(t *testing.T, rt *Runtime, id string, def control.Definition) {
	t.Helper()
	if _, err := rt.RegisterLoop(id, def); err != nil {
		t.Fatalf("RegisterLoop(%s) error = %v", id, err)
	}
}

type recorder struct {
	events []eventbus.Event
}

func (r *recorder) handle(ev eventbus.Event) { r.events = append(r.events, ev) }

func (r *recorder) count(name eventbus.Name) int {
	n := 0
	for _, ev := range r.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func ptr[T any](v T) *T { return &v }

// ─── Testable properties ────────────────────────────────────────────

func TestProperty_UnknownNodeRejected(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{})
	mustNode(t, rt, "worker-1", node.TypeWorker)

	for _, source := range []string{"ghost", "", "worker-2"} {
		_, err := rt.ProcessControlSignal("temperature", nil, source, routing.Options{})
		if !errors.Is(err, ErrUnknownNode) {
			t.Errorf("ProcessControlSignal(source=%q) error = %v, want ErrUnknownNode", source, err)
		}
	}
}

func TestProperty_RateLimitWindow(t *testing.T) {
	const n = 5
	window := 10 * time.Second
	rt, clk := newTestRuntime(t, Config{RateLimitMax: n, RateLimitWindow: window})
	mustNode(t, rt, "sensor", node.TypeUser)

	for i := range n {
		if _, err := rt.ProcessControlSignal("reading", nil, "sensor", routing.Options{}); err != nil {
			t.Fatalf("signal %d error = %v", i+1, err)
		}
		clk.Advance(time.Second)
	}
	if _, err := rt.ProcessControlSignal("reading", nil, "sensor", routing.Options{}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("signal %d error = %v, want ErrRateLimited", n+1, err)
	}

	clk.Advance(window)
	if _, err := rt.ProcessControlSignal("reading", nil, "sensor", routing.Options{}); err != nil {
		t.Errorf("after window error = %v", err)
	}
}

func TestProperty_RuleCooldown(t *testing.T) {
	rt, clk := newTestRuntime(t, Config{})
	mustNode(t, rt, "sensor", node.TypeUser)

	cooldown := 5 * time.Second
	if err := rt.RegisterRule("hot", automation.Definition{
		Condition:      automation.SignalTypeCondition{Types: []string{"temperature"}},
		Action:         automation.LogEventAction{Message: "hot"},
		CooldownPeriod: cooldown,
	}); err != nil {
		t.Fatal(err)
	}

	send := func() int64 {
		t.Helper()
		if _, err := rt.ProcessControlSignal("temperature", nil, "sensor", routing.Options{}); err != nil {
			t.Fatal(err)
		}
		info, _ := rt.Rule("hot")
		return info.Metrics.TriggerCount
	}

	if got := send(); got != 1 {
		t.Fatalf("first signal triggers = %d", got)
	}
	for _, step := range []time.Duration{time.Second, time.Second, 2*time.Second + 900*time.Millisecond} {
		clk.Advance(step)
		if got := send(); got != 1 {
			t.Fatalf("signal inside cooldown triggered, count = %d", got)
		}
	}
	clk.Advance(100 * time.Millisecond)
	if got := send(); got != 2 {
		t.Errorf("signal at t0+C triggers = %d, want 2", got)
	}
}

func TestProperty_CompositeConditions(t *testing.T) {
	yes := automation.SignalTypeCondition{Types: []string{"x"}}
	no := automation.SignalTypeCondition{Types: []string{"y"}}
	sig := &signal.Signal{Type: "x"}

	tests := []struct {
		name string
		cond automation.CompositeCondition
		want bool
	}{
		{"AND(true,false)", automation.CompositeCondition{Op: automation.LogicAnd, Conditions: []automation.Condition{yes, no}}, false},
		{"OR(false,true)", automation.CompositeCondition{Op: automation.LogicOr, Conditions: []automation.Condition{no, yes}}, true},
		{"NOT(true)", automation.CompositeCondition{Op: automation.LogicNot, Conditions: []automation.Condition{yes}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := automation.Evaluate(tt.cond, sig, automation.State{})
			if err != nil || got != tt.want {
				t.Errorf("Evaluate() = %v, %v, want %v", got, err, tt.want)
			}
		})
	}
}

func TestProperty_PIDAtSetpoint(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{})
	mustLoop(t, rt, "pid", control.Definition{Type: control.TypePID, Setpoint: 0.4, ProcessVariable: 0.4})

	if rep := rt.Tick(); rep.LoopsExecuted != 1 {
		t.Fatalf("LoopsExecuted = %d", rep.LoopsExecuted)
	}
	info, _ := rt.Loop("pid")
	if info.Output != 0 {
		t.Errorf("Output = %v, want 0", info.Output)
	}
}

func TestProperty_OnOffHysteresis(t *testing.T) {
	rt, clk := newTestRuntime(t, Config{})
	mustLoop(t, rt, "heater", control.Definition{
		Type:   control.TypeOnOff,
		Params: control.OnOffParams{Threshold: 0.5, Hysteresis: 0.05},
	})

	steps := []struct {
		err  float64
		want float64
	}{
		{0.56, 1},
		{0.50, 1},
		{0.44, 0},
		{0.50, 0},
		{0.56, 1},
	}
	for i, st := range steps {
		if _, err := rt.UpdateLoop("heater", control.Update{Setpoint: ptr(st.err), ProcessVariable: ptr(0.0)}); err != nil {
			t.Fatal(err)
		}
		rt.Tick()
		info, _ := rt.Loop("heater")
		if info.Output != st.want {
			t.Errorf("step %d error %.2f: Output = %v, want %v", i, st.err, info.Output, st.want)
		}
		clk.Advance(control.DefaultExecutionRate)
	}
}

func TestProperty_EmergencyStop(t *testing.T) {
	rt, clk := newTestRuntime(t, Config{})
	mustLoop(t, rt, "a", control.Definition{Type: control.TypePID, Setpoint: 1})
	mustLoop(t, rt, "b", control.Definition{Type: control.TypeMPC, Setpoint: 0.8})
	rt.Tick()
	clk.Advance(time.Second)
	rt.Tick()

	if _, err := rt.ActivateEmergencyStop(safety.DefaultEStopID, "test"); err != nil {
		t.Fatalf("ActivateEmergencyStop() error = %v", err)
	}
	for _, l := range rt.Loops() {
		if l.Enabled || l.Output != 0 {
			t.Errorf("loop %s enabled=%v output=%v", l.ID, l.Enabled, l.Output)
		}
	}
	if got := rt.GetSystemStatus().Mode; got != ModeEmergencyStop {
		t.Errorf("Mode = %s", got)
	}

	// Ticks in emergency mode leave the loops stopped.
	clk.Advance(time.Second)
	if rep := rt.Tick(); rep.LoopsExecuted != 0 {
		t.Errorf("LoopsExecuted = %d in emergency", rep.LoopsExecuted)
	}
}

func TestProperty_ResetWithoutActivation(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{})
	if err := rt.ResetEmergencyMode("op", "nothing to reset"); !errors.Is(err, ErrNotInEmergencyMode) {
		t.Errorf("ResetEmergencyMode() error = %v", err)
	}
}

func TestProperty_UnregisterIdempotent(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{})
	rec := &recorder{}
	rt.Subscribe(eventbus.NodeDisconnected, rec.handle)
	mustNode(t, rt, "n1", node.TypeUser)

	if !rt.UnregisterControlNode("n1") {
		t.Fatal("first Unregister returned false")
	}
	if rt.UnregisterControlNode("n1") {
		t.Error("second Unregister returned true")
	}
	if got := rec.count(eventbus.NodeDisconnected); got != 1 {
		t.Errorf("nodeDisconnected events = %d, want 1", got)
	}
	if m := rt.GetMetrics(); m.NodesDisconnected != 1 {
		t.Errorf("NodesDisconnected = %d", m.NodesDisconnected)
	}
}

// ─── Cascades ───────────────────────────────────────────────────────

func TestRuntime_CriticalAlarmRuleStopsNetwork(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{})
	mustNode(t, rt, "sensor", node.TypeUser)
	mustLoop(t, rt, "loop", control.Definition{Type: control.TypePID, Setpoint: 1})
	rec := &recorder{}
	rt.SubscribeAll(rec.handle)

	if err := rt.AddAutomationRule("meltdown",
		automation.ThresholdCondition{SignalType: "core", Field: "temp", Operator: signal.OpGreater, Value: 1000},
		automation.RaiseAlarmAction{Severity: eventbus.SeverityCritical, Message: "core too hot"},
	); err != nil {
		t.Fatal(err)
	}

	if _, err := rt.ProcessControlSignal("core", map[string]any{"temp": 1200}, "sensor", routing.Options{}); err != nil {
		t.Fatal(err)
	}
	if rt.Mode() != ModeEmergencyStop {
		t.Fatalf("Mode = %s", rt.Mode())
	}
	if got := rt.Alarms(0); len(got) != 1 || got[0].Severity != eventbus.SeverityCritical {
		t.Errorf("Alarms() = %+v", got)
	}
	for _, name := range []eventbus.Name{
		eventbus.RuleTriggered,
		eventbus.AlarmRaised,
		eventbus.EmergencyStopActivated,
		eventbus.EmergencyShutdownCompleted,
	} {
		if rec.count(name) == 0 {
			t.Errorf("no %s event", name)
		}
	}

	// Ordinary nodes are gated while stopped.
	_, err := rt.ProcessControlSignal("core", nil, "sensor", routing.Options{})
	if !errors.Is(err, ErrEmergencyActive) {
		t.Errorf("signal in emergency error = %v", err)
	}
}

func TestRuntime_SystemNodePassesEmergencyGate(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{})
	if _, err := rt.RegisterControlNode("supervisor", node.TypeTriggerProcessor, node.Metadata{Priority: signal.PrioritySystem}); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.ActivateEmergencyStop(safety.DefaultEStopID, "drill"); err != nil {
		t.Fatal(err)
	}
	sig, err := rt.ProcessControlSignal("status", nil, "supervisor", routing.Options{})
	if err != nil {
		t.Fatalf("SYSTEM node rejected: %v", err)
	}
	if sig.Priority != signal.PrioritySystem {
		t.Errorf("Priority = %s", sig.Priority)
	}
}

func TestRuntime_InterlockFromSignal(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{})
	mustNode(t, rt, "gauge", node.TypeWorker)

	// A rule watching the vent announcement proves actuation signals route.
	if err := rt.AddAutomationRule("vented",
		automation.SignalTypeCondition{Types: []string{"safety.vent_to_atmosphere"}},
		automation.LogEventAction{Message: "vent opened"},
	); err != nil {
		t.Fatal(err)
	}

	if _, err := rt.ProcessControlSignal("pressure", map[string]any{"value": 14.2}, "gauge", routing.Options{}); err != nil {
		t.Fatal(err)
	}
	snap := rt.Safety()
	if snap.Status != safety.StatusEmergencyStop {
		t.Fatalf("Status = %s", snap.Status)
	}
	info, _ := rt.Rule("vented")
	if info.Metrics.TriggerCount == 0 {
		t.Error("vent actuation signal was not routed")
	}

	if err := rt.ResetEmergencyMode("alice", "pressure relieved"); err != nil {
		t.Fatal(err)
	}
	if rt.Mode() == ModeEmergencyStop {
		t.Error("still in emergency after reset")
	}
	// Loops stay disabled until an operator re-enables them.
	for _, l := range rt.Loops() {
		if l.Enabled {
			t.Errorf("loop %s re-enabled by reset", l.ID)
		}
	}
}

func TestRuntime_DeferredSignalChain(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{MaxSignalDepth: 2})
	mustNode(t, rt, "src", node.TypeWorker)

	// a -> b -> c -> d, with d one hop past the chain depth.
	for _, hop := range [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}} {
		if err := rt.AddAutomationRule(hop[0],
			automation.SignalTypeCondition{Types: []string{hop[0]}},
			automation.SendSignalAction{SignalType: hop[1], Source: routing.SystemSource},
		); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := rt.ProcessControlSignal("a", nil, "src", routing.Options{}); err != nil {
		t.Fatal(err)
	}
	m := rt.GetMetrics()
	if m.SignalsProcessed != 3 {
		t.Errorf("SignalsProcessed = %d, want 3", m.SignalsProcessed)
	}
	if m.SignalsDropped != 1 {
		t.Errorf("SignalsDropped = %d, want 1", m.SignalsDropped)
	}
}

func TestRuntime_UpdateSetpointAction(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{})
	mustNode(t, rt, "hmi", node.TypeUser)
	mustLoop(t, rt, "tank", control.Definition{Type: control.TypePID, Setpoint: 0.2})
	if err := rt.AddAutomationRule("set",
		automation.SignalTypeCondition{Types: []string{"setpoint"}},
		automation.UpdateSetpointAction{LoopID: "tank", FromField: "value"},
	); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.ProcessControlSignal("setpoint", map[string]any{"value": 0.75}, "hmi", routing.Options{}); err != nil {
		t.Fatal(err)
	}
	info, _ := rt.Loop("tank")
	if info.Setpoint != 0.75 {
		t.Errorf("Setpoint = %v", info.Setpoint)
	}
}

// ─── Counters ───────────────────────────────────────────────────────

func TestRuntime_CountersSurviveResetAndRemoval(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{})
	mustNode(t, rt, "src", node.TypeWorker)
	mustLoop(t, rt, "tank", control.Definition{Type: control.TypePID, Setpoint: 0.5})
	if err := rt.AddAutomationRule("boom",
		automation.SignalTypeCondition{Types: []string{"a"}},
		automation.RunScriptAction{Script: "missing"},
	); err != nil {
		t.Fatal(err)
	}

	if _, err := rt.ProcessControlSignal("a", nil, "src", routing.Options{}); err != nil {
		t.Fatal(err)
	}
	if rep := rt.Tick(); rep.LoopsExecuted != 1 {
		t.Fatalf("LoopsExecuted = %d, want 1", rep.LoopsExecuted)
	}
	before := rt.GetMetrics()
	if before.ErrorsEncountered != 1 || before.LoopExecutions != 1 {
		t.Fatalf("before = errors %d, executions %d", before.ErrorsEncountered, before.LoopExecutions)
	}

	if err := rt.ResetRule("boom"); err != nil {
		t.Fatal(err)
	}
	if got := rt.GetMetrics().ErrorsEncountered; got != 1 {
		t.Errorf("ErrorsEncountered after ResetRule = %d, want 1", got)
	}

	rt.RemoveRule("boom")
	rt.RemoveLoop("tank")
	after := rt.GetMetrics()
	if after.ErrorsEncountered != 1 || after.LoopExecutions != 1 {
		t.Errorf("after removal = errors %d, executions %d", after.ErrorsEncountered, after.LoopExecutions)
	}
}

// ─── Periodic work ──────────────────────────────────────────────────

func TestRuntime_TickCadences(t *testing.T) {
	rt, clk := newTestRuntime(t, Config{
		RuleTickInterval: time.Second,
		HealthInterval:   30 * time.Second,
		SweepInterval:    time.Minute,
		StaleThreshold:   45 * time.Second,
		PermitSweep:      time.Minute,
	})
	mustNode(t, rt, "quiet", node.TypeUser)
	if _, err := rt.IssuePermit("bob", "pump", 30*time.Second); err != nil {
		t.Fatal(err)
	}

	if rep := rt.Tick(); rep.RulesFired != 0 || rep.HealthChecked || rep.PermitsExpired != 0 {
		t.Errorf("first tick = %+v", rep)
	}

	clk.Advance(30 * time.Second)
	if rep := rt.Tick(); !rep.HealthChecked {
		t.Errorf("health not checked at 30s: %+v", rep)
	}

	clk.Advance(30 * time.Second)
	rep := rt.Tick()
	if rep.PermitsExpired != 1 {
		t.Errorf("PermitsExpired = %d", rep.PermitsExpired)
	}
	if len(rep.NodesSwept) != 1 || rep.NodesSwept[0] != "quiet" {
		t.Errorf("NodesSwept = %v", rep.NodesSwept)
	}
}

func TestRuntime_ScheduledRuleOnRuleTick(t *testing.T) {
	rt, clk := newTestRuntime(t, Config{})
	mustLoop(t, rt, "boiler", control.Definition{Type: control.TypePID, Setpoint: 0.3})
	if err := rt.AddAutomationRule("morning",
		automation.ScheduleCondition{Start: 7 * time.Hour, End: 9 * time.Hour},
		automation.UpdateSetpointAction{LoopID: "boiler", Setpoint: 0.6},
	); err != nil {
		t.Fatal(err)
	}

	clk.Advance(time.Second)
	if rep := rt.Tick(); rep.RulesFired != 1 {
		t.Fatalf("RulesFired = %d", rep.RulesFired)
	}
	info, _ := rt.Loop("boiler")
	if info.Setpoint != 0.6 {
		t.Errorf("Setpoint = %v", info.Setpoint)
	}
}

func TestRuntime_HealthDegraded(t *testing.T) {
	rt, clk := newTestRuntime(t, Config{HealthInterval: time.Second, RemoteTimeout: time.Second})
	for _, id := range []string{"r1", "r2"} {
		if err := rt.AddRemoteSite(remote.Site{ID: id, Protocol: codec.ModbusTCP}); err != nil {
			t.Fatal(err)
		}
	}
	mustNode(t, rt, "n", node.TypeUser)
	rec := &recorder{}
	rt.Subscribe(eventbus.HealthChecked, rec.handle)

	clk.Advance(2 * time.Second)
	rt.Tick()
	// nodes 1.0 (still ACTIVE), remote 0.0
	if st := rt.GetSystemStatus(); st.Mode != ModeDegraded || st.NetworkHealth != 0.5 {
		t.Errorf("status mode=%s health=%v", st.Mode, st.NetworkHealth)
	}
	if rec.count(eventbus.HealthChecked) != 1 {
		t.Error("no healthChecked event")
	}
}

// ─── Remote broadcast ───────────────────────────────────────────────

type mockTransport struct {
	mu     sync.Mutex
	topics []string

	// release, when set, holds every Publish until it is closed.
	release chan struct{}
}

func (m *mockTransport) Publish(topic string, _ []byte, _ byte, _ bool) error {
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	return nil
}

func (m *mockTransport) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.topics...)
}

func TestRuntime_GlobalStopBroadcasts(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{
		RemoteSites: []remote.Site{
			{ID: "plant-b", Protocol: codec.OPCUA},
			{ID: "plant-c", Protocol: codec.EtherNetIP},
		},
	})
	tr := &mockTransport{}
	rt.SetRemoteTransport(tr)

	rep, err := rt.ActivateEmergencyStop(safety.DefaultEStopID, "fire")
	if err != nil {
		t.Fatal(err)
	}
	rt.Shutdown()
	if topics := tr.published(); rep.SitesNotified != 2 || len(topics) != 2 {
		t.Errorf("SitesNotified = %d, topics = %v", rep.SitesNotified, topics)
	}
}

func TestRuntime_BroadcastDoesNotHoldLock(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{
		RemoteSites: []remote.Site{
			{ID: "plant-b", Protocol: codec.OPCUA},
			{ID: "plant-c", Protocol: codec.EtherNetIP},
			{ID: "plant-d", Protocol: codec.ModbusTCP},
		},
	})
	tr := &mockTransport{release: make(chan struct{})}
	rt.SetRemoteTransport(tr)

	// The broker never acknowledges until release is closed; both calls
	// below would deadlock if publishing happened under the runtime lock.
	rep, err := rt.ActivateEmergencyStop(safety.DefaultEStopID, "fire")
	if err != nil {
		t.Error(err)
	}
	if rep.SitesNotified != 3 {
		t.Errorf("SitesNotified = %d, want 3", rep.SitesNotified)
	}
	if st := rt.GetSystemStatus(); len(st.RemoteSites) != 3 {
		t.Errorf("RemoteSites = %d, want 3", len(st.RemoteSites))
	}

	close(tr.release)
	rt.Shutdown()
	if topics := tr.published(); len(topics) != 3 {
		t.Errorf("published = %v, want 3 frames", topics)
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────

func TestRuntime_SeedFromConfig(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{
		Rules: []automation.RuleSpec{{
			ID:        "r1",
			Condition: automation.ConditionSpec{Type: "signal_type", SignalTypes: []string{"a"}},
			Action:    automation.ActionSpec{Type: "log_event", Message: "a seen"},
		}},
		Loops: []control.LoopSpec{{ID: "l1", Type: "pid", Setpoint: 0.5, Profile: "aggressive"}},
		Interlocks: []safety.InterlockSpec{{
			ID: "x", Type: "warning", Action: "alert_operator", Signal: "flow", Field: "value", Operator: "<", Threshold: 1,
		}},
	})
	if len(rt.Rules()) != 1 {
		t.Errorf("rules = %d", len(rt.Rules()))
	}
	l, err := rt.Loop("l1")
	if err != nil || l.Profile != "aggressive" {
		t.Errorf("Loop() = %+v, %v", l, err)
	}
	snap := rt.Safety()
	if len(snap.Interlocks) != 1 || len(snap.EmergencyStops) != 1 {
		t.Errorf("safety = %+v", snap)
	}
}

func TestRuntime_SeedError(t *testing.T) {
	_, err := New(Config{Loops: []control.LoopSpec{{ID: "bad", Type: "neural"}}}, clock.NewManual(epoch))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("New() error = %v", err)
	}
}

func TestRuntime_Shutdown(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{})
	mustNode(t, rt, "n", node.TypeUser)
	rt.Shutdown()
	rt.Shutdown()

	if _, err := rt.ProcessControlSignal("x", nil, "n", routing.Options{}); !errors.Is(err, ErrClosed) {
		t.Errorf("after shutdown error = %v", err)
	}
	if _, err := rt.RegisterControlNode("m", node.TypeUser, node.Metadata{}); !errors.Is(err, ErrClosed) {
		t.Errorf("register after shutdown error = %v", err)
	}
	if rep := rt.Tick(); rep.LoopsExecuted != 0 {
		t.Errorf("Tick after shutdown = %+v", rep)
	}
}

func TestRuntime_AlarmsBounded(t *testing.T) {
	rt, _ := newTestRuntime(t, Config{MaxAlarms: 3})
	for i := range 5 {
		if _, err := rt.RaiseAlarm(eventbus.SeverityInfo, "note", "test", map[string]any{"i": i}); err != nil {
			t.Fatal(err)
		}
	}
	got := rt.Alarms(0)
	if len(got) != 3 || got[0].Data["i"] != 4 {
		t.Errorf("Alarms() = %+v", got)
	}
	if rt.GetMetrics().AlarmsRaised != 5 {
		t.Errorf("AlarmsRaised = %d", rt.GetMetrics().AlarmsRaised)
	}
	if _, err := rt.RaiseAlarm("fatal", "x", "test", nil); !errors.Is(err, ErrUnknownType) {
		t.Errorf("bad severity error = %v", err)
	}
	a, err := rt.AcknowledgeAlarm(got[0].ID, "carol")
	if err != nil || !a.Acknowledged || a.AcknowledgedBy != "carol" {
		t.Errorf("AcknowledgeAlarm() = %+v, %v", a, err)
	}
}
