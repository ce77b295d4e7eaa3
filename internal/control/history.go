package control

import "time"

// DefaultHistorySize is the number of samples a loop keeps.
const DefaultHistorySize = 100

// Sample is one recorded loop execution.
type Sample struct {
	Time            time.Time `json:"time"`
	Error           float64   `json:"error"`
	Output          float64   `json:"output"`
	ProcessVariable float64   `json:"process_variable"`
}

// History is a fixed-size ring buffer of samples. Once full, each Push
// overwrites the oldest sample.
type History struct {
	buf   []Sample
	start int
	n     int
}

// NewHistory creates a ring buffer holding size samples.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]Sample, size)}
}

// Push appends a sample.
func (h *History) Push(s Sample) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// Last returns the most recent sample.
func (h *History) Last() (Sample, bool) {
	if h.n == 0 {
		return Sample{}, false
	}
	return h.buf[(h.start+h.n-1)%len(h.buf)], true
}

// Samples returns the samples oldest first.
func (h *History) Samples() []Sample {
	out := make([]Sample, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of stored samples.
func (h *History) Len() int { return h.n }

// Cap returns the buffer size.
func (h *History) Cap() int { return len(h.buf) }

// Reset drops every sample.
func (h *History) Reset() {
	h.start, h.n = 0, 0
}
