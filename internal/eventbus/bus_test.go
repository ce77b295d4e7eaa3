package eventbus

import (
	"sync"
	"testing"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func TestBus_PublishOrder(t *testing.T) {
	b := New()
	var got []string

	b.Subscribe(RuleTriggered, func(Event) { got = append(got, "first") })
	b.SubscribeAll(func(Event) { got = append(got, "wildcard") })
	b.Subscribe(RuleTriggered, func(Event) { got = append(got, "second") })
	b.Subscribe(LoopOutput, func(Event) { got = append(got, "other") })

	b.Publish(Event{Name: RuleTriggered})

	want := []string{"first", "second", "wildcard"}
	if len(got) != len(want) {
		t.Fatalf("handlers called = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handler %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBus_PanicIsolated(t *testing.T) {
	b := New()
	logger := &recordingLogger{}
	b.SetLogger(logger)

	called := false
	b.Subscribe(AlarmRaised, func(Event) { panic("boom") })
	b.Subscribe(AlarmRaised, func(Event) { called = true })

	b.Publish(Event{Name: AlarmRaised, Source: "test"})

	if !called {
		t.Error("handler after panicking handler was not called")
	}
	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %d, want 1", len(logger.errors))
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	count := 0
	sub := b.Subscribe(NodeRegistered, func(Event) { count++ })
	all := b.SubscribeAll(func(Event) { count++ })

	b.Publish(Event{Name: NodeRegistered})
	b.Unsubscribe(sub)
	b.Unsubscribe(all)
	b.Unsubscribe(sub) // second call is ignored
	b.Publish(Event{Name: NodeRegistered})

	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if n := b.SubscriberCount(NodeRegistered); n != 0 {
		t.Errorf("SubscriberCount = %d, want 0", n)
	}
}

func TestBus_SubscribeDuringPublish(t *testing.T) {
	b := New()
	late := 0
	b.Subscribe(LoopOutput, func(Event) {
		b.Subscribe(LoopOutput, func(Event) { late++ })
	})

	b.Publish(Event{Name: LoopOutput})
	if late != 0 {
		t.Errorf("handler added during publish ran in the same publish")
	}
	b.Publish(Event{Name: LoopOutput})
	if late != 1 {
		t.Errorf("late = %d, want 1", late)
	}
}

func TestBus_NestedPublish(t *testing.T) {
	b := New()
	var order []Name
	b.Subscribe(AlarmRaised, func(ev Event) {
		order = append(order, ev.Name)
		b.Publish(Event{Name: EmergencyStopActivated})
	})
	b.Subscribe(EmergencyStopActivated, func(ev Event) {
		order = append(order, ev.Name)
	})

	b.Publish(Event{Name: AlarmRaised})

	if len(order) != 2 || order[0] != AlarmRaised || order[1] != EmergencyStopActivated {
		t.Errorf("order = %v", order)
	}
}

func TestBus_Close(t *testing.T) {
	b := New()
	b.Subscribe(SignalProcessed, func(Event) { t.Error("handler called after Close") })
	b.Close()
	b.Publish(Event{Name: SignalProcessed})
}
