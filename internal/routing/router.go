// Package routing accepts signals from registered nodes, stamps them and
// hands them to the rule engine and the event bus.
package routing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/controlnet-core/internal/automation"
	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/node"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

// Logger defines the logging interface used by the Router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher is the part of the event bus the router needs.
type Publisher interface {
	Publish(ev eventbus.Event)
}

// Nodes is the part of the node registry the router needs.
type Nodes interface {
	Get(id string) (*node.Node, error)
	CheckRateLimit(id string) bool
	Touch(id string) bool
	RecordSignal(id string, latency time.Duration)
	RecordError(id string)
}

// RuleEvaluator offers a routed signal to the rule engine and returns how many
// rules fired. EvaluateChained receives signals queued by an earlier pass.
type RuleEvaluator interface {
	Evaluate(sig signal.Signal, st automation.State) int
	EvaluateChained(sig signal.Signal, st automation.State) int
}

// SystemSource is the source of signals the network sends itself, such as
// send-signal actions fired on the rule tick. They skip node checks.
const SystemSource = "system"

// DefaultMaxDepth bounds chains of signals queued by send-signal actions.
const DefaultMaxDepth = 8

// Options adjust how one signal is routed.
type Options struct {
	// Priority lowers the stamped priority below the node's own. Values above
	// the node priority are ignored.
	Priority signal.Priority
}

// Config holds router settings. Zero fields select the defaults.
type Config struct {
	MaxDepth int
}

// Stats are the router's global counters.
type Stats struct {
	SignalsProcessed    int64         `json:"signals_processed"`
	SignalsRejected     int64         `json:"signals_rejected"`
	SignalsDropped      int64         `json:"signals_dropped"`
	RulesTriggered      int64         `json:"rules_triggered"`
	AverageResponseTime time.Duration `json:"average_response_time_ns"`
}

type pending struct {
	typ      string
	data     map[string]any
	source   string
	priority signal.Priority
	depth    int
}

// Router stamps and dispatches signals.
//
// Router holds no locks. The network runtime serialises every call.
type Router struct {
	nodes     Nodes
	rules     RuleEvaluator
	state     func() automation.State
	emergency func() bool
	bus       Publisher
	clock     clock.Clock
	logger    Logger
	maxDepth  int

	queue    []pending
	depth    int
	draining bool

	stats         Stats
	totalResponse time.Duration
}

// NewRouter creates a router. state supplies the system snapshot rules are
// evaluated against and emergency reports whether the network is stopped;
// either may be nil.
func NewRouter(cfg Config, nodes Nodes, rules RuleEvaluator, state func() automation.State, emergency func() bool, clk clock.Clock, bus Publisher) *Router {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if clk == nil {
		clk = clock.System{}
	}
	if state == nil {
		state = func() automation.State { return automation.State{} }
	}
	if emergency == nil {
		emergency = func() bool { return false }
	}
	return &Router{
		nodes:     nodes,
		rules:     rules,
		state:     state,
		emergency: emergency,
		bus:       bus,
		clock:     clk,
		logger:    noopLogger{},
		maxDepth:  cfg.MaxDepth,
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Process routes one signal from a registered node.
//
// Returns:
//   - ErrInvalidSignal if typ is empty
//   - node.ErrUnknownNode if source is not registered
//   - ErrEmergencyActive if the network is stopped and source is not a
//     SYSTEM-priority node
//   - node.ErrRateLimited if source has used its budget
//
// Signals queued by send-signal actions while this one is evaluated are
// routed before Process returns. Their failures are logged, not returned.
func (r *Router) Process(typ string, data map[string]any, source string, opts Options) (signal.Signal, error) {
	sig, err := r.route(typ, data, source, opts.Priority, 0)
	if err != nil {
		return signal.Signal{}, err
	}
	r.drain()
	return sig, nil
}

// Enqueue defers a signal until the current evaluation pass has finished.
// An empty source is routed as SystemSource.
func (r *Router) Enqueue(typ string, data map[string]any, source string, priority signal.Priority) error {
	if typ == "" {
		return ErrInvalidSignal
	}
	depth := r.depth + 1
	if depth > r.maxDepth {
		r.stats.SignalsDropped++
		r.logger.Warn("deferred signal dropped: chain too deep",
			"signal_type", typ,
			"source", source,
			"max_depth", r.maxDepth,
		)
		return fmt.Errorf("%w: chain deeper than %d", ErrInvalidSignal, r.maxDepth)
	}
	if source == "" {
		source = SystemSource
	}
	r.queue = append(r.queue, pending{typ: typ, data: data, source: source, priority: priority, depth: depth})
	return nil
}

// Flush routes every queued signal. The runtime calls it after evaluation
// passes that do not start from Process, such as the rule tick.
func (r *Router) Flush() {
	r.drain()
}

func (r *Router) drain() {
	if r.draining {
		return
	}
	r.draining = true
	defer func() { r.draining = false }()

	for len(r.queue) > 0 {
		p := r.queue[0]
		r.queue = r.queue[1:]
		if _, err := r.route(p.typ, p.data, p.source, p.priority, p.depth); err != nil {
			r.logger.Warn("deferred signal rejected",
				"signal_type", p.typ,
				"source", p.source,
				"error", err,
			)
		}
	}
	r.queue = nil
}

func (r *Router) route(typ string, data map[string]any, source string, priority signal.Priority, depth int) (signal.Signal, error) {
	started := time.Now()
	if typ == "" {
		r.stats.SignalsRejected++
		return signal.Signal{}, ErrInvalidSignal
	}

	stamped := signal.PrioritySystem
	internal := source == SystemSource && depth > 0
	if !internal {
		n, err := r.nodes.Get(source)
		if err != nil {
			r.stats.SignalsRejected++
			return signal.Signal{}, err
		}
		stamped = n.Priority
		if r.emergency() && n.Priority < signal.PrioritySystem {
			r.stats.SignalsRejected++
			return signal.Signal{}, fmt.Errorf("%w: signal %s from %s", ErrEmergencyActive, typ, source)
		}
		if !r.nodes.CheckRateLimit(source) {
			r.stats.SignalsRejected++
			r.nodes.RecordError(source)
			return signal.Signal{}, fmt.Errorf("%w: %s", node.ErrRateLimited, source)
		}
	}
	if priority > 0 && priority < stamped {
		stamped = priority
	}

	sig := signal.Signal{
		ID:        uuid.NewString(),
		Type:      typ,
		Data:      signal.CloneData(data),
		Source:    source,
		Timestamp: r.clock.Now(),
		Priority:  stamped,
	}
	if !internal {
		r.nodes.Touch(source)
	}

	prev := r.depth
	r.depth = depth
	fired := 0
	switch {
	case r.rules == nil:
	case depth > 0:
		fired = r.rules.EvaluateChained(sig, r.state())
	default:
		fired = r.rules.Evaluate(sig, r.state())
	}
	r.depth = prev

	elapsed := time.Since(started)
	if !internal {
		r.nodes.RecordSignal(source, elapsed)
	}
	r.stats.SignalsProcessed++
	r.stats.RulesTriggered += int64(fired)
	r.totalResponse += elapsed
	r.stats.AverageResponseTime = r.totalResponse / time.Duration(r.stats.SignalsProcessed)

	r.logger.Debug("signal processed",
		"signal_id", sig.ID,
		"signal_type", typ,
		"source", source,
		"priority", stamped.String(),
		"rules_fired", fired,
	)
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{
			Name:   eventbus.SignalProcessed,
			Source: "routing",
			Time:   sig.Timestamp,
			Payload: eventbus.SignalEvent{
				Signal:       sig,
				RulesFired:   fired,
				ResponseTime: elapsed,
			},
		})
	}
	return sig, nil
}

// Stats returns a copy of the global counters.
func (r *Router) Stats() Stats { return r.stats }

// Pending returns the number of queued signals.
func (r *Router) Pending() int { return len(r.queue) }

// Shutdown discards queued signals.
func (r *Router) Shutdown() {
	r.queue = nil
}
