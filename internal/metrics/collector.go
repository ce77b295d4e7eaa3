package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/controlnet-core/internal/eventbus"
)

const namespace = "controlnet"

// Subscriber is the part of the event source the collector needs. Both
// *eventbus.Bus and *network.Runtime satisfy it.
type Subscriber interface {
	SubscribeAll(h eventbus.Handler) eventbus.Subscription
}

// Collector holds event-driven Prometheus metrics.
type Collector struct {
	signalsProcessed *prometheus.CounterVec
	responseTime     prometheus.Histogram
	rulesTriggered   *prometheus.CounterVec
	loopOutput       *prometheus.GaugeVec
	loopError        *prometheus.GaugeVec
	loopsDisabled    *prometheus.CounterVec
	alarms           *prometheus.CounterVec
	interlocks       *prometheus.CounterVec
	emergencyStops   *prometheus.CounterVec
	emergencyActive  prometheus.Gauge
	permitsExpired   prometheus.Counter
	remoteStatus     *prometheus.GaugeVec
	networkHealth    prometheus.Gauge
	nodeEvents       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		signalsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "processed_total",
			Help:      "Signals processed, by signal type",
		}, []string{"type"}),

		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "response_seconds",
			Help:      "Time from signal creation to the end of rule evaluation",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),

		rulesTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rule",
			Name:      "triggers_total",
			Help:      "Rule actions executed, by rule and result",
		}, []string{"rule", "result"}),

		loopOutput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "output",
			Help:      "Last control loop output",
		}, []string{"loop", "type"}),

		loopError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "error",
			Help:      "Last control loop error (setpoint minus process variable)",
		}, []string{"loop", "type"}),

		loopsDisabled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "disabled_total",
			Help:      "Loops disabled, by loop",
		}, []string{"loop"}),

		alarms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "raised_total",
			Help:      "Alarms raised, by severity",
		}, []string{"severity"}),

		interlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "interlock_triggers_total",
			Help:      "Interlock triggers, by interlock and type",
		}, []string{"interlock", "type"}),

		emergencyStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "emergency_stops_total",
			Help:      "Emergency stop activations, by stop",
		}, []string{"estop"}),

		emergencyActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "emergency_active",
			Help:      "1 while the network is in emergency mode",
		}),

		permitsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "permits_expired_total",
			Help:      "Permits that reached their expiry",
		}),

		remoteStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "site_status",
			Help:      "1 for the current status of each remote site, 0 otherwise",
		}, []string{"site", "status"}),

		networkHealth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_health",
			Help:      "Network health score in [0,1] from the last health check",
		}),

		nodeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "events_total",
			Help:      "Node registrations and disconnections",
		}, []string{"event"}),
	}

	for _, col := range []prometheus.Collector{
		c.signalsProcessed, c.responseTime, c.rulesTriggered,
		c.loopOutput, c.loopError, c.loopsDisabled,
		c.alarms, c.interlocks, c.emergencyStops, c.emergencyActive,
		c.permitsExpired, c.remoteStatus, c.networkHealth, c.nodeEvents,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	c.networkHealth.Set(1)
	return c, nil
}

// Attach subscribes Handle to every event.
func (c *Collector) Attach(src Subscriber) eventbus.Subscription {
	return src.SubscribeAll(c.Handle)
}

// Handle updates metrics from one event.
func (c *Collector) Handle(ev eventbus.Event) {
	switch p := ev.Payload.(type) {
	case eventbus.SignalEvent:
		c.signalsProcessed.WithLabelValues(p.Signal.Type).Inc()
		c.responseTime.Observe(p.ResponseTime.Seconds())
	case eventbus.RuleEvent:
		result := "success"
		if !p.Success {
			result = "error"
		}
		c.rulesTriggered.WithLabelValues(p.RuleID, result).Inc()
	case eventbus.LoopEvent:
		if ev.Name == eventbus.LoopDisabled {
			c.loopsDisabled.WithLabelValues(p.LoopID).Inc()
		}
		c.loopOutput.WithLabelValues(p.LoopID, p.LoopType).Set(p.Output)
		c.loopError.WithLabelValues(p.LoopID, p.LoopType).Set(p.Error)
	case eventbus.AlarmEvent:
		c.alarms.WithLabelValues(p.Severity).Inc()
	case eventbus.InterlockEvent:
		c.interlocks.WithLabelValues(p.InterlockID, p.Type).Inc()
	case eventbus.EmergencyEvent:
		switch ev.Name {
		case eventbus.EmergencyStopActivated:
			c.emergencyStops.WithLabelValues(p.EStopID).Inc()
			c.emergencyActive.Set(1)
		case eventbus.EmergencyModeReset:
			c.emergencyActive.Set(0)
		}
	case eventbus.PermitEvent:
		c.permitsExpired.Inc()
	case eventbus.RemoteSiteEvent:
		if p.Previous != "" {
			c.remoteStatus.WithLabelValues(p.SiteID, p.Previous).Set(0)
		}
		c.remoteStatus.WithLabelValues(p.SiteID, p.Status).Set(1)
	case eventbus.HealthEvent:
		c.networkHealth.Set(p.NetworkHealth)
	case eventbus.NodeEvent:
		c.nodeEvents.WithLabelValues(string(ev.Name)).Inc()
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
