package historian

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

type mockWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (m *mockWriter) WritePoint(p *write.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, p)
}

func (m *mockWriter) all() []*write.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*write.Point(nil), m.points...)
}

func field(p *write.Point, key string) any {
	for _, f := range p.FieldList() {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

func tag(p *write.Point, key string) string {
	for _, t := range p.TagList() {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

func TestHistorian_LoopOutput(t *testing.T) {
	w := &mockWriter{}
	h := New(w, clock.NewManual(epoch))

	h.Handle(eventbus.Event{
		Name: eventbus.LoopOutput,
		Time: epoch.Add(time.Second),
		Payload: eventbus.LoopEvent{
			LoopID: "tank-level", LoopType: "PID", Mode: "AUTO",
			Setpoint: 50, ProcessVariable: 48, Output: 12.5, Error: 2,
		},
	})

	pts := w.all()
	if len(pts) != 1 {
		t.Fatalf("points = %d, want 1", len(pts))
	}
	p := pts[0]
	if p.Name() != MeasurementLoop || tag(p, "loop_id") != "tank-level" || tag(p, "mode") != "AUTO" {
		t.Errorf("point = %s %v", p.Name(), p.TagList())
	}
	if field(p, "output") != 12.5 {
		t.Errorf("output = %v, want 12.5", field(p, "output"))
	}
	if !p.Time().Equal(epoch.Add(time.Second)) {
		t.Errorf("time = %v, want event time", p.Time())
	}
}

func TestHistorian_SignalCountsFlush(t *testing.T) {
	w := &mockWriter{}
	clk := clock.NewManual(epoch)
	h := New(w, clk)

	for i := 0; i < 3; i++ {
		h.Handle(eventbus.Event{Name: eventbus.SignalProcessed, Payload: eventbus.SignalEvent{
			Signal: signal.Signal{Type: "temperature"}, RulesFired: 1, ResponseTime: 2 * time.Millisecond,
		}})
	}
	h.Handle(eventbus.Event{Name: eventbus.SignalProcessed, Payload: eventbus.SignalEvent{
		Signal: signal.Signal{Type: "pressure"},
	}})

	if n := len(w.all()); n != 0 {
		t.Fatalf("points before flush = %d, want 0", n)
	}

	clk.Advance(10 * time.Second)
	if n := h.Flush(); n != 2 {
		t.Fatalf("Flush() = %d, want 2", n)
	}

	pts := w.all()
	// Sorted by type.
	if tag(pts[0], "type") != "pressure" || tag(pts[1], "type") != "temperature" {
		t.Errorf("types = %s, %s", tag(pts[0], "type"), tag(pts[1], "type"))
	}
	if field(pts[1], "count") != int64(3) || field(pts[1], "rules_fired") != int64(3) {
		t.Errorf("temperature fields = %v", pts[1].FieldList())
	}
	if got := field(pts[1], "avg_response_sec").(float64); got < 0.0019 || got > 0.0021 {
		t.Errorf("avg_response_sec = %v, want 0.002", got)
	}
	if !pts[0].Time().Equal(epoch.Add(10 * time.Second)) {
		t.Errorf("time = %v, want flush time", pts[0].Time())
	}

	if n := h.Flush(); n != 0 {
		t.Errorf("second Flush() = %d, want 0", n)
	}
	if h.Written() != 2 {
		t.Errorf("Written() = %d, want 2", h.Written())
	}
}

func TestHistorian_AttachHealth(t *testing.T) {
	w := &mockWriter{}
	bus := eventbus.New()
	h := New(w, clock.NewManual(epoch))
	if subs := h.Attach(bus); len(subs) != 3 {
		t.Fatalf("Attach() = %d subscriptions, want 3", len(subs))
	}

	bus.Publish(eventbus.Event{Name: eventbus.HealthChecked, Payload: eventbus.HealthEvent{Mode: "DEGRADED", NetworkHealth: 0.5}})
	bus.Publish(eventbus.Event{Name: eventbus.AlarmRaised, Payload: eventbus.AlarmEvent{}})

	pts := w.all()
	if len(pts) != 1 || pts[0].Name() != MeasurementHealth || field(pts[0], "score") != 0.5 {
		t.Errorf("points = %v", pts)
	}
	if !pts[0].Time().Equal(epoch) {
		t.Errorf("zero event time should fall back to the clock, got %v", pts[0].Time())
	}
}

func TestHistorian_RunFlushesOnCancel(t *testing.T) {
	w := &mockWriter{}
	h := New(w, clock.NewManual(epoch))
	h.Handle(eventbus.Event{Name: eventbus.SignalProcessed, Payload: eventbus.SignalEvent{Signal: signal.Signal{Type: "flow"}}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if n := len(w.all()); n != 1 {
		t.Errorf("points = %d, want 1 from the final flush", n)
	}
}
