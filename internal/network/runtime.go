package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/controlnet-core/internal/automation"
	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/control"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/node"
	"github.com/nerrad567/controlnet-core/internal/remote"
	"github.com/nerrad567/controlnet-core/internal/routing"
	"github.com/nerrad567/controlnet-core/internal/safety"
)

// Logger defines the logging interface used by the runtime and handed to
// every component it owns.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// cadence tracks when one kind of periodic work is next due.
type cadence struct {
	every time.Duration
	next  time.Time
}

func (c *cadence) due(now time.Time) bool {
	if now.Before(c.next) {
		return false
	}
	c.next = now.Add(c.every)
	return true
}

// Runtime is the control network. All methods are safe for concurrent use.
type Runtime struct {
	mu sync.Mutex

	cfg    Config
	clock  clock.Clock
	bus    *eventbus.Bus
	logger Logger

	nodes  *node.Registry
	rules  *automation.Engine
	router *routing.Router
	loops  *control.Scheduler
	safety *safety.Manager
	remote *remote.Registry

	alarms  *alarmLog
	health  float64
	started time.Time

	loopTick   cadence
	ruleTick   cadence
	healthTick cadence
	staleTick  cadence
	permitTick cadence

	subs   []eventbus.Subscription
	closed bool
}

// New builds a runtime, seeds it from cfg and returns it ready to Tick or
// Run. A nil clock selects the system clock.
func New(cfg Config, clk clock.Clock) (*Runtime, error) {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.System{}
	}
	now := clk.Now()

	rt := &Runtime{
		cfg:     cfg,
		clock:   clk,
		bus:     eventbus.New(),
		logger:  noopLogger{},
		alarms:  newAlarmLog(cfg.MaxAlarms),
		health:  1,
		started: now,

		loopTick:   cadence{every: cfg.TickInterval, next: now},
		ruleTick:   cadence{every: cfg.RuleTickInterval, next: now.Add(cfg.RuleTickInterval)},
		healthTick: cadence{every: cfg.HealthInterval, next: now.Add(cfg.HealthInterval)},
		staleTick:  cadence{every: cfg.SweepInterval, next: now.Add(cfg.SweepInterval)},
		permitTick: cadence{every: cfg.PermitSweep, next: now.Add(cfg.PermitSweep)},
	}

	host := &host{rt: rt}
	rt.nodes = node.NewRegistry(node.Config{
		MaxNodes:        cfg.MaxNodes,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
	}, clk, rt.bus)
	rt.rules = automation.NewEngine(automation.Config{
		DefaultEvaluationInterval: cfg.RuleEvaluationInterval,
	}, clk, host, rt.bus)
	rt.loops = control.NewScheduler(control.Config{HistorySize: cfg.HistorySize}, clk, rt.bus)
	rt.remote = remote.NewRegistry(remote.Config{
		Timeout:     cfg.RemoteTimeout,
		TopicPrefix: cfg.RemoteTopic,
	}, clk, nil, rt.bus)
	rt.safety = safety.NewManager(safety.Config{DefaultEStop: cfg.DefaultEStop}, clk, rt.bus, safety.Hooks{
		Loops:    rt.loops,
		Actuator: host,
		Alarms:   host,
		Remote:   rt.remote,
	})
	rt.router = routing.NewRouter(routing.Config{MaxDepth: cfg.MaxSignalDepth},
		rt.nodes, rt.rules, rt.state, rt.safety.InEmergency, clk, rt.bus)

	// Safety subscribes first so interlocks see a signal before any other
	// listener reacts to it.
	rt.subs = append(rt.subs, rt.safety.Attach(rt.bus)...)
	rt.subs = append(rt.subs, rt.bus.Subscribe(eventbus.SignalProcessed, func(ev eventbus.Event) {
		if p, ok := ev.Payload.(eventbus.SignalEvent); ok {
			rt.loops.ApplySignal(p.Signal)
		}
	}))

	if err := rt.seed(); err != nil {
		return nil, err
	}
	rt.remote.Start()
	rt.health = rt.computeHealth()
	return rt, nil
}

func (rt *Runtime) seed() error {
	var interlocks []safety.Interlock
	for _, spec := range rt.cfg.Interlocks {
		il, err := spec.Interlock()
		if err != nil {
			return fmt.Errorf("seeding interlocks: %w", err)
		}
		interlocks = append(interlocks, il)
	}
	estops := make([]safety.EmergencyStop, 0, len(rt.cfg.EmergencyStops))
	for _, spec := range rt.cfg.EmergencyStops {
		estops = append(estops, spec.EmergencyStop())
	}
	if !rt.cfg.NoDefaultSafety {
		if len(interlocks) == 0 {
			interlocks = safety.DefaultInterlocks()
		}
		if len(estops) == 0 {
			estops = safety.DefaultEmergencyStops()
		}
	}
	if err := rt.safety.Seed(interlocks, estops); err != nil {
		return fmt.Errorf("seeding safety: %w", err)
	}

	for _, site := range rt.cfg.RemoteSites {
		if err := rt.remote.Add(site); err != nil {
			return fmt.Errorf("seeding remote sites: %w", err)
		}
	}

	for _, spec := range rt.cfg.Loops {
		if err := rt.registerLoopSpec(spec); err != nil {
			return fmt.Errorf("seeding loops: %w", err)
		}
	}

	for _, spec := range rt.cfg.Rules {
		def, err := spec.Definition()
		if err != nil {
			return fmt.Errorf("seeding rules: %w", err)
		}
		if err := rt.rules.RegisterRule(spec.ID, def); err != nil {
			return fmt.Errorf("seeding rules: %w", err)
		}
	}
	return nil
}

func (rt *Runtime) registerLoopSpec(spec control.LoopSpec) error {
	def, err := spec.Definition()
	if err != nil {
		return err
	}
	if _, err := rt.loops.Register(spec.ID, def); err != nil {
		return err
	}
	if spec.Profile != "" {
		if _, err := rt.loops.Tune(spec.ID, spec.Profile); err != nil {
			rt.loops.Remove(spec.ID)
			return err
		}
	}
	return nil
}

// SetLogger sets the logger for the runtime and every component it owns.
func (rt *Runtime) SetLogger(logger Logger) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	rt.logger = logger
	rt.bus.SetLogger(logger)
	rt.nodes.SetLogger(logger)
	rt.rules.SetLogger(logger)
	rt.router.SetLogger(logger)
	rt.loops.SetLogger(logger)
	rt.safety.SetLogger(logger)
	rt.remote.SetLogger(logger)
}

// SetRemoteTransport sets the transport emergency broadcasts and remote
// commands are published on.
func (rt *Runtime) SetRemoteTransport(t remote.Transport) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.remote.SetTransport(t)
}

// lock acquires the runtime lock. The returned function routes any signals
// queued while it was held and releases it.
func (rt *Runtime) lock() func() {
	rt.mu.Lock()
	return func() {
		rt.router.Flush()
		rt.mu.Unlock()
	}
}

// state is the snapshot rules evaluate against. Called with the lock held.
func (rt *Runtime) state() automation.State {
	byType := make(map[string]int)
	for _, n := range rt.nodes.List() {
		byType[string(n.Type)]++
	}
	return automation.State{
		Now:           rt.clock.Now(),
		NodeCount:     rt.nodes.Count(),
		NodesByType:   byType,
		NetworkHealth: rt.health,
		Mode:          string(rt.mode()),
		Emergency:     rt.safety.InEmergency(),
	}
}

// TickReport says what one Tick did.
type TickReport struct {
	LoopsExecuted  int      `json:"loops_executed"`
	RulesFired     int      `json:"rules_fired"`
	HealthChecked  bool     `json:"health_checked"`
	NodesSwept     []string `json:"nodes_swept,omitempty"`
	PermitsExpired int      `json:"permits_expired"`
	SitesChanged   int      `json:"sites_changed"`
}

// Tick runs every piece of periodic work that is due on the runtime clock.
func (rt *Runtime) Tick() TickReport {
	unlock := rt.lock()
	defer unlock()

	var rep TickReport
	if rt.closed {
		return rep
	}
	now := rt.clock.Now()

	if rt.loopTick.due(now) {
		rep.LoopsExecuted = rt.loops.Tick()
	}
	if rt.ruleTick.due(now) {
		rep.RulesFired = rt.rules.Tick(rt.state())
		rt.router.Flush()
	}
	if rt.staleTick.due(now) {
		rep.NodesSwept = rt.nodes.SweepStale(rt.cfg.StaleThreshold)
	}
	if rt.permitTick.due(now) {
		rep.PermitsExpired = rt.safety.SweepPermits()
	}
	if rt.healthTick.due(now) {
		rep.SitesChanged = rt.remote.CheckTimeouts()
		rt.checkHealth()
		rep.HealthChecked = true
	}
	return rep
}

// Run drives Tick at the configured base cadence until ctx is cancelled.
func (rt *Runtime) Run(ctx context.Context) error {
	ticker := time.NewTicker(rt.cfg.TickInterval)
	defer ticker.Stop()

	rt.logger.Info("control network running",
		"tick_interval", rt.cfg.TickInterval,
		"rule_tick_interval", rt.cfg.RuleTickInterval,
		"health_interval", rt.cfg.HealthInterval,
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rt.Tick()
		}
	}
}

// Shutdown stops the runtime. The rule engine and scheduler are shut down
// before the registries they reference. Later calls do nothing.
func (rt *Runtime) Shutdown() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return
	}
	rt.closed = true

	rt.router.Shutdown()
	rt.rules.Shutdown()
	rt.loops.Shutdown()
	rt.safety.Shutdown()
	rt.remote.Shutdown()
	rt.nodes.Shutdown()
	for _, s := range rt.subs {
		rt.bus.Unsubscribe(s)
	}
	rt.subs = nil
	rt.bus.Close()
	rt.logger.Info("control network stopped")
}

// Subscribe registers h for events named name. h runs while the runtime lock
// is held and must not call back into the runtime.
func (rt *Runtime) Subscribe(name eventbus.Name, h eventbus.Handler) eventbus.Subscription {
	return rt.bus.Subscribe(name, h)
}

// SubscribeAll registers h for every event. The same restriction as
// Subscribe applies.
func (rt *Runtime) SubscribeAll(h eventbus.Handler) eventbus.Subscription {
	return rt.bus.SubscribeAll(h)
}

// Unsubscribe removes a subscription.
func (rt *Runtime) Unsubscribe(s eventbus.Subscription) {
	rt.bus.Unsubscribe(s)
}
