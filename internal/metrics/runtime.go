package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/controlnet-core/internal/network"
)

// MetricsSource provides the network-wide counters. *network.Runtime
// satisfies it.
type MetricsSource interface {
	GetMetrics() network.Metrics
}

// RuntimeCollector reports network.Metrics at scrape time.
type RuntimeCollector struct {
	src MetricsSource

	signalsProcessed  *prometheus.Desc
	signalsRejected   *prometheus.Desc
	signalsDropped    *prometheus.Desc
	rulesTriggered    *prometheus.Desc
	nodesConnected    *prometheus.Desc
	nodesDisconnected *prometheus.Desc
	errors            *prometheus.Desc
	avgResponse       *prometheus.Desc
	alarmsRaised      *prometheus.Desc
	loopExecutions    *prometheus.Desc
}

// NewRuntimeCollector creates a collector over src.
func NewRuntimeCollector(src MetricsSource) *RuntimeCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "runtime", name), help, nil, nil)
	}
	return &RuntimeCollector{
		src:               src,
		signalsProcessed:  desc("signals_processed_total", "Signals accepted and evaluated"),
		signalsRejected:   desc("signals_rejected_total", "Signals rejected before evaluation"),
		signalsDropped:    desc("signals_dropped_total", "Deferred signals dropped at the depth bound"),
		rulesTriggered:    desc("rules_triggered_total", "Rule actions executed"),
		nodesConnected:    desc("nodes_connected", "Registered control nodes"),
		nodesDisconnected: desc("nodes_disconnected_total", "Nodes unregistered or evicted"),
		errors:            desc("errors_total", "Rejected signals plus rule and loop errors"),
		avgResponse:       desc("average_response_seconds", "Mean signal response time"),
		alarmsRaised:      desc("alarms_raised_total", "Alarms raised"),
		loopExecutions:    desc("loop_executions_total", "Control loop executions"),
	}
}

// Describe implements prometheus.Collector.
func (c *RuntimeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.signalsProcessed
	ch <- c.signalsRejected
	ch <- c.signalsDropped
	ch <- c.rulesTriggered
	ch <- c.nodesConnected
	ch <- c.nodesDisconnected
	ch <- c.errors
	ch <- c.avgResponse
	ch <- c.alarmsRaised
	ch <- c.loopExecutions
}

// Collect implements prometheus.Collector.
func (c *RuntimeCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.src.GetMetrics()

	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.signalsProcessed, float64(m.SignalsProcessed))
	counter(c.signalsRejected, float64(m.SignalsRejected))
	counter(c.signalsDropped, float64(m.SignalsDropped))
	counter(c.rulesTriggered, float64(m.RulesTriggered))
	gauge(c.nodesConnected, float64(m.NodesConnected))
	counter(c.nodesDisconnected, float64(m.NodesDisconnected))
	counter(c.errors, float64(m.ErrorsEncountered))
	gauge(c.avgResponse, m.AverageResponseTime.Seconds())
	counter(c.alarmsRaised, float64(m.AlarmsRaised))
	counter(c.loopExecutions, float64(m.LoopExecutions))
}
