package node

import "time"

// Rate limiter defaults.
const (
	DefaultRateLimitMax    = 100
	DefaultRateLimitWindow = 60 * time.Second
)

// RateLimiter is a per-key sliding-window limiter.
//
// A window only ever holds timestamps strictly newer than now - window; older
// entries are dropped on every check. RateLimiter is not safe for concurrent
// use; the owning registry serialises access.
type RateLimiter struct {
	max     int
	window  time.Duration
	windows map[string][]time.Time
}

// NewRateLimiter creates a limiter allowing limit events per window.
// Non-positive arguments select the defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitMax
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RateLimiter{
		max:     limit,
		window:  window,
		windows: make(map[string][]time.Time),
	}
}

// Allow records an event for key at now and reports whether it fits within
// the budget. A rejected event is not recorded.
func (l *RateLimiter) Allow(key string, now time.Time) bool {
	w := l.prune(key, now)
	if len(w) >= l.max {
		l.windows[key] = w
		return false
	}
	l.windows[key] = append(w, now)
	return true
}

// Count returns the number of events in key's current window.
func (l *RateLimiter) Count(key string, now time.Time) int {
	w := l.prune(key, now)
	if len(w) == 0 {
		delete(l.windows, key)
		return 0
	}
	l.windows[key] = w
	return len(w)
}

// Remaining returns how many more events key may submit right now.
func (l *RateLimiter) Remaining(key string, now time.Time) int {
	return l.max - l.Count(key, now)
}

// Forget drops key's window.
func (l *RateLimiter) Forget(key string) {
	delete(l.windows, key)
}

// Sweep drops every window with no live entries and returns how many were
// dropped.
func (l *RateLimiter) Sweep(now time.Time) int {
	dropped := 0
	for key := range l.windows {
		if w := l.prune(key, now); len(w) == 0 {
			delete(l.windows, key)
			dropped++
		} else {
			l.windows[key] = w
		}
	}
	return dropped
}

// Max returns the configured budget.
func (l *RateLimiter) Max() int { return l.max }

// Window returns the configured window length.
func (l *RateLimiter) Window() time.Duration { return l.window }

func (l *RateLimiter) prune(key string, now time.Time) []time.Time {
	w := l.windows[key]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(w) && !w[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return w
	}
	// Copy down so the backing array does not grow without bound.
	n := copy(w, w[i:])
	return w[:n]
}
