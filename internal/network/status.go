package network

import (
	"time"

	"github.com/nerrad567/controlnet-core/internal/automation"
	"github.com/nerrad567/controlnet-core/internal/node"
	"github.com/nerrad567/controlnet-core/internal/remote"
	"github.com/nerrad567/controlnet-core/internal/safety"
)

// Metrics are the network-wide counters.
type Metrics struct {
	SignalsProcessed    int64         `json:"signals_processed"`
	SignalsRejected     int64         `json:"signals_rejected"`
	SignalsDropped      int64         `json:"signals_dropped"`
	RulesTriggered      int64         `json:"rules_triggered"`
	NodesConnected      int           `json:"nodes_connected"`
	NodesDisconnected   int64         `json:"nodes_disconnected"`
	ErrorsEncountered   int64         `json:"errors_encountered"`
	AverageResponseTime time.Duration `json:"average_response_time_ns"`
	AlarmsRaised        int64         `json:"alarms_raised"`
	LoopExecutions      int64         `json:"loop_executions"`
}

// SystemStatus is the network state for status queries.
type SystemStatus struct {
	Mode              Mode              `json:"mode"`
	ActiveControllers int               `json:"active_controllers"`
	NetworkHealth     float64           `json:"network_health"`
	Metrics           Metrics           `json:"metrics"`
	Nodes             []node.Node       `json:"nodes"`
	Rules             []automation.Info `json:"rules"`
	Safety            safety.Snapshot   `json:"safety"`
	RemoteSites       []remote.Site     `json:"remote_sites"`
	Uptime            time.Duration     `json:"uptime_ns"`
}

// GetSystemStatus returns the current network state. Emergency mode is
// reflected as soon as a stop activates, without waiting for a health check.
func (rt *Runtime) GetSystemStatus() SystemStatus {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return SystemStatus{
		Mode:              rt.mode(),
		ActiveControllers: rt.loops.ActiveCount(),
		NetworkHealth:     rt.health,
		Metrics:           rt.metrics(),
		Nodes:             rt.nodes.List(),
		Rules:             rt.rules.Rules(),
		Safety:            rt.safety.Snapshot(),
		RemoteSites:       rt.remote.Sites(),
		Uptime:            rt.clock.Now().Sub(rt.started),
	}
}

// GetMetrics returns the network-wide counters.
func (rt *Runtime) GetMetrics() Metrics {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.metrics()
}

// Mode returns the current operating mode.
func (rt *Runtime) Mode() Mode {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.mode()
}

func (rt *Runtime) metrics() Metrics {
	stats := rt.router.Stats()
	return Metrics{
		SignalsProcessed:    stats.SignalsProcessed,
		SignalsRejected:     stats.SignalsRejected,
		SignalsDropped:      stats.SignalsDropped,
		RulesTriggered:      rt.rules.Triggered(),
		NodesConnected:      rt.nodes.Count(),
		NodesDisconnected:   rt.nodes.Disconnected(),
		ErrorsEncountered:   stats.SignalsRejected + rt.rules.Errors() + rt.loops.Errors(),
		LoopExecutions:      rt.loops.Executions(),
		AverageResponseTime: stats.AverageResponseTime,
		AlarmsRaised:        rt.alarms.total,
	}
}
