package node

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	l := NewRateLimiter(3, time.Minute)
	start := epoch

	for i := 0; i < 3; i++ {
		if !l.Allow("k", start.Add(time.Duration(i)*10*time.Second)) {
			t.Fatalf("event %d rejected", i)
		}
	}
	if l.Allow("k", start.Add(30*time.Second)) {
		t.Error("fourth event inside window accepted")
	}
	// The first event sits exactly on the cutoff and is no longer counted.
	if !l.Allow("k", start.Add(time.Minute)) {
		t.Error("event rejected after the oldest entry left the window")
	}
	if got := l.Count("k", start.Add(time.Minute)); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}

func TestRateLimiter_WindowHoldsOnlyLiveEntries(t *testing.T) {
	l := NewRateLimiter(10, time.Second)
	for i := 0; i < 5; i++ {
		l.Allow("k", epoch.Add(time.Duration(i)*100*time.Millisecond))
	}
	now := epoch.Add(1250 * time.Millisecond)
	l.Allow("k", now)

	cutoff := now.Add(-time.Second)
	for _, ts := range l.windows["k"] {
		if !ts.After(cutoff) {
			t.Errorf("window holds expired timestamp %v", ts)
		}
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	l := NewRateLimiter(0, 0)
	if l.Max() != DefaultRateLimitMax || l.Window() != DefaultRateLimitWindow {
		t.Fatalf("defaults = %d/%v", l.Max(), l.Window())
	}
	l.Allow("a", epoch)
	l.Allow("b", epoch.Add(50*time.Second))

	if dropped := l.Sweep(epoch.Add(90 * time.Second)); dropped != 1 {
		t.Errorf("Sweep() dropped = %d, want 1", dropped)
	}
	if _, ok := l.windows["a"]; ok {
		t.Error("empty window for a not dropped")
	}
	if got := l.Remaining("b", epoch.Add(90*time.Second)); got != DefaultRateLimitMax-1 {
		t.Errorf("Remaining(b) = %d", got)
	}
}
