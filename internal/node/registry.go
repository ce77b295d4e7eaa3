// Package node tracks the logical processing nodes connected to the control
// network: their identity, priority, activity and per-node signal budget.
package node

import (
	"fmt"
	"time"

	"github.com/nerrad567/controlnet-core/internal/arena"
	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
)

// Logger defines the logging interface used by the Registry.
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

// Publisher is the part of the event bus the registry needs.
type Publisher interface {
	Publish(ev eventbus.Event)
}

// DefaultMaxNodes bounds the registry when no limit is configured.
const DefaultMaxNodes = 1000

// Config holds the registry limits.
type Config struct {
	MaxNodes        int
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Registry owns the set of connected nodes and their rate-limit windows.
//
// Registry holds no locks. The network runtime serialises every call.
type Registry struct {
	nodes   *arena.Keyed[*Node]
	limiter *RateLimiter
	max     int
	clock   clock.Clock
	bus     Publisher
	logger  Logger

	disconnected int64
}

// NewRegistry creates an empty registry. bus may be nil.
func NewRegistry(cfg Config, clk clock.Clock, bus Publisher) *Registry {
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = DefaultMaxNodes
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Registry{
		nodes:   arena.NewKeyed[*Node](),
		limiter: NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		max:     cfg.MaxNodes,
		clock:   clk,
		bus:     bus,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Register adds a node. Priority and weight come from meta when set and from
// the node type otherwise.
//
// Returns:
//   - ErrInvalidID if id is empty
//   - ErrUnknownType if typ is not a known node type
//   - ErrAlreadyRegistered if id is present
//   - ErrCapacityExceeded if the registry is full
func (r *Registry) Register(id string, typ Type, meta Metadata) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	defaults, ok := defaultsByType[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if _, exists := r.nodes.Get(id); exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	if r.nodes.Len() >= r.max {
		return nil, fmt.Errorf("%w: %d nodes", ErrCapacityExceeded, r.max)
	}

	now := r.clock.Now()
	n := &Node{
		ID:           id,
		Type:         typ,
		Status:       StatusActive,
		Priority:     defaults.priority,
		Weight:       defaults.weight,
		RegisteredAt: now,
		LastActivity: now,
		Capabilities: normaliseCapabilities(meta.Capabilities),
	}
	if meta.Priority != 0 {
		n.Priority = meta.Priority
	}
	if meta.Weight > 0 {
		n.Weight = meta.Weight
	}
	if meta.Attributes != nil {
		n.Attributes = make(map[string]any, len(meta.Attributes))
		for k, v := range meta.Attributes {
			n.Attributes[k] = v
		}
	}
	r.nodes.Add(id, n)

	r.logger.Info("node registered", "node_id", id, "type", string(typ), "priority", n.Priority.String())
	r.publish(eventbus.NodeRegistered, eventbus.NodeEvent{
		NodeID:   id,
		NodeType: string(typ),
		Priority: n.Priority,
	})
	return n.DeepCopy(), nil
}

// Unregister removes a node and its rate-limit window. It returns false, and
// publishes nothing, when the node is absent.
func (r *Registry) Unregister(id string) bool {
	return r.remove(id, "unregistered")
}

func (r *Registry) remove(id, reason string) bool {
	n, ok := r.nodes.Remove(id)
	if !ok {
		return false
	}
	r.limiter.Forget(id)
	r.disconnected++

	r.logger.Info("node disconnected", "node_id", id, "reason", reason)
	r.publish(eventbus.NodeDisconnected, eventbus.NodeEvent{
		NodeID:   id,
		NodeType: string(n.Type),
		Priority: n.Priority,
		Reason:   reason,
	})
	return true
}

// Touch records activity for a node. It returns false if the node is absent.
func (r *Registry) Touch(id string) bool {
	n, ok := r.nodes.Get(id)
	if !ok {
		return false
	}
	n.LastActivity = r.clock.Now()
	n.Status = StatusActive
	return true
}

// CheckRateLimit consumes one unit of the node's budget and reports whether
// the signal may proceed. Unknown nodes are always refused.
func (r *Registry) CheckRateLimit(id string) bool {
	if _, ok := r.nodes.Get(id); !ok {
		return false
	}
	return r.limiter.Allow(id, r.clock.Now())
}

// RemainingBudget returns how many signals the node may still send in the
// current window.
func (r *Registry) RemainingBudget(id string) int {
	return r.limiter.Remaining(id, r.clock.Now())
}

// SweepStale unregisters every node idle for longer than threshold and
// returns their ids. A node that cannot be evicted is logged and skipped.
func (r *Registry) SweepStale(threshold time.Duration) []string {
	now := r.clock.Now()
	var stale []string
	r.nodes.Each(func(id string, n *Node) bool {
		idle := now.Sub(n.LastActivity)
		switch {
		case idle > threshold:
			stale = append(stale, id)
		case idle > threshold/2:
			n.Status = StatusIdle
		}
		return true
	})

	evicted := make([]string, 0, len(stale))
	for _, id := range stale {
		if err := r.evict(id); err != nil {
			r.logger.Warn("stale node eviction failed", "node_id", id, "error", err)
			continue
		}
		evicted = append(evicted, id)
	}
	if dropped := r.limiter.Sweep(now); dropped > 0 {
		r.logger.Debug("rate limit windows swept", "dropped", dropped)
	}
	if len(evicted) > 0 {
		r.logger.Info("stale nodes swept", "count", len(evicted), "threshold", threshold.String())
	}
	return evicted
}

// evict removes one stale node, turning a panicking subscriber into an error
// so the sweep can continue with the next node.
func (r *Registry) evict(id string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("evicting node %s: %v", id, rec)
		}
	}()
	if !r.remove(id, "stale") {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return nil
}

// RecordSignal updates a node's counters after an accepted signal.
// AvgLatency is a running mean.
func (r *Registry) RecordSignal(id string, latency time.Duration) {
	n, ok := r.nodes.Get(id)
	if !ok {
		return
	}
	n.Metrics.SignalsProcessed++
	count := time.Duration(n.Metrics.SignalsProcessed)
	n.Metrics.AvgLatency += (latency - n.Metrics.AvgLatency) / count
}

// RecordError increments a node's error counter.
func (r *Registry) RecordError(id string) {
	if n, ok := r.nodes.Get(id); ok {
		n.Metrics.Errors++
	}
}

// Get returns a copy of the node with the given id.
func (r *Registry) Get(id string) (*Node, error) {
	n, ok := r.nodes.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n.DeepCopy(), nil
}

// Exists reports whether a node is registered.
func (r *Registry) Exists(id string) bool {
	_, ok := r.nodes.Get(id)
	return ok
}

// List returns copies of all nodes in registration order.
func (r *Registry) List() []Node {
	out := make([]Node, 0, r.nodes.Len())
	r.nodes.Each(func(_ string, n *Node) bool {
		out = append(out, *n.DeepCopy())
		return true
	})
	return out
}

// Count returns the number of registered nodes.
func (r *Registry) Count() int { return r.nodes.Len() }

// ActiveCount returns the number of nodes currently in StatusActive.
func (r *Registry) ActiveCount() int {
	active := 0
	r.nodes.Each(func(_ string, n *Node) bool {
		if n.Status == StatusActive {
			active++
		}
		return true
	})
	return active
}

// Disconnected returns how many nodes have left the registry.
func (r *Registry) Disconnected() int64 { return r.disconnected }

// Capacity returns the maximum number of nodes.
func (r *Registry) Capacity() int { return r.max }

// Shutdown drops every node without publishing disconnect events.
func (r *Registry) Shutdown() {
	r.nodes.Clear()
	r.limiter = NewRateLimiter(r.limiter.Max(), r.limiter.Window())
}

func (r *Registry) publish(name eventbus.Name, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{
		Name:    name,
		Source:  "node",
		Time:    r.clock.Now(),
		Payload: payload,
	})
}
