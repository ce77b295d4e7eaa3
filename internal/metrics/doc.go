// Package metrics exposes control network activity as Prometheus metrics.
//
// Two collectors are provided. Collector follows the event bus and keeps
// labelled counters and gauges (per signal type, per rule, per loop, per
// remote site). RuntimeCollector reads the network-wide counters from the
// runtime at scrape time.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	c, err := metrics.New(reg)
//	c.Attach(rt)
//	reg.MustRegister(metrics.NewRuntimeCollector(rt))
//	router.Handle("/metrics", metrics.Handler(reg))
package metrics
