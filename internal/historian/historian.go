// Package historian records control network activity as InfluxDB points.
//
// Loop outputs and health checks are written one point per event. Signals
// are counted per type and written as one point per type on each flush, so
// the write rate is bounded by the flush interval rather than the signal
// rate.
package historian

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
)

// Measurement names.
const (
	MeasurementLoop    = "loop_output"
	MeasurementSignals = "signal_processed"
	MeasurementHealth  = "network_health"
)

// DefaultFlushInterval is used by Run when interval is not positive.
const DefaultFlushInterval = 10 * time.Second

// PointWriter accepts points. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// Subscriber is the part of the event source the historian needs.
type Subscriber interface {
	Subscribe(name eventbus.Name, h eventbus.Handler) eventbus.Subscription
}

type signalCount struct {
	count        int64
	rulesFired   int64
	responseTime time.Duration
}

// Historian turns bus events into points.
type Historian struct {
	w     PointWriter
	clock clock.Clock

	mu      sync.Mutex
	signals map[string]*signalCount
	written int64
}

// New creates a historian writing to w.
func New(w PointWriter, clk clock.Clock) *Historian {
	if clk == nil {
		clk = clock.System{}
	}
	return &Historian{
		w:       w,
		clock:   clk,
		signals: make(map[string]*signalCount),
	}
}

// Attach subscribes to loop output, signal and health events.
func (h *Historian) Attach(src Subscriber) []eventbus.Subscription {
	return []eventbus.Subscription{
		src.Subscribe(eventbus.LoopOutput, h.Handle),
		src.Subscribe(eventbus.SignalProcessed, h.Handle),
		src.Subscribe(eventbus.HealthChecked, h.Handle),
	}
}

// Handle processes one event.
func (h *Historian) Handle(ev eventbus.Event) {
	ts := ev.Time
	if ts.IsZero() {
		ts = h.clock.Now()
	}

	switch p := ev.Payload.(type) {
	case eventbus.LoopEvent:
		h.write(write.NewPoint(MeasurementLoop,
			map[string]string{"loop_id": p.LoopID, "type": p.LoopType, "mode": p.Mode},
			map[string]any{
				"setpoint":         p.Setpoint,
				"process_variable": p.ProcessVariable,
				"output":           p.Output,
				"error":            p.Error,
			},
			ts))
	case eventbus.SignalEvent:
		h.mu.Lock()
		c, ok := h.signals[p.Signal.Type]
		if !ok {
			c = &signalCount{}
			h.signals[p.Signal.Type] = c
		}
		c.count++
		c.rulesFired += int64(p.RulesFired)
		c.responseTime += p.ResponseTime
		h.mu.Unlock()
	case eventbus.HealthEvent:
		h.write(write.NewPoint(MeasurementHealth,
			map[string]string{"mode": p.Mode},
			map[string]any{"score": p.NetworkHealth},
			ts))
	}
}

// Flush writes one signal-count point per signal type seen since the last
// flush and resets the counters. It returns the number of points written.
func (h *Historian) Flush() int {
	h.mu.Lock()
	counts := h.signals
	h.signals = make(map[string]*signalCount)
	h.mu.Unlock()

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	now := h.clock.Now()
	for _, t := range types {
		c := counts[t]
		h.write(write.NewPoint(MeasurementSignals,
			map[string]string{"type": t},
			map[string]any{
				"count":            c.count,
				"rules_fired":      c.rulesFired,
				"avg_response_sec": c.responseTime.Seconds() / float64(c.count),
			},
			now))
	}
	return len(types)
}

// Run flushes signal counts every interval until ctx is done, then flushes
// once more.
func (h *Historian) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Flush()
			return
		case <-ticker.C:
			h.Flush()
		}
	}
}

// Written returns the number of points handed to the writer.
func (h *Historian) Written() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.written
}

func (h *Historian) write(p *write.Point) {
	h.w.WritePoint(p)
	h.mu.Lock()
	h.written++
	h.mu.Unlock()
}
