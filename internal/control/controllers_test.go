package control

import (
	"math"
	"testing"
)

func TestComputePID_ZeroError(t *testing.T) {
	l := &Loop{
		ID:              "pid",
		Setpoint:        42,
		ProcessVariable: 42,
		Params:          PIDParams{Kp: 2, Ki: 1, Kd: 0.5},
		History:         NewHistory(10),
	}
	out, err := compute(l, 0.1)
	if err != nil {
		t.Fatalf("compute() error = %v", err)
	}
	if out != 0 {
		t.Errorf("output = %v, want 0", out)
	}
}

func TestComputePID_Terms(t *testing.T) {
	l := &Loop{
		Setpoint: 1,
		Params:   PIDParams{Kp: 2, Ki: 1, Kd: 0.5},
		History:  NewHistory(10),
	}
	// First step: no derivative, integral = 1·0.5.
	out, _ := compute(l, 0.5)
	if want := 2*1.0 + 1*0.5; math.Abs(out-want) > 1e-12 {
		t.Errorf("first output = %v, want %v", out, want)
	}
	l.History.Push(Sample{Error: 1})

	// Error drops to 0.5: integral 0.75, derivative (0.5-1)/0.5 = -1.
	l.ProcessVariable = 0.5
	out, _ = compute(l, 0.5)
	if want := 2*0.5 + 1*0.75 + 0.5*-1; math.Abs(out-want) > 1e-12 {
		t.Errorf("second output = %v, want %v", out, want)
	}
}

func TestComputeOnOff_Hysteresis(t *testing.T) {
	p := OnOffParams{Threshold: 0.5, Hysteresis: 0.05}
	tests := []struct {
		name     string
		err      float64
		previous float64
		want     float64
	}{
		{"above band", 0.56, 0, 1},
		{"below band", 0.44, 1, 0},
		{"inside band holds high", 0.50, 1, 1},
		{"inside band holds low", 0.50, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeOnOff(tt.previous, p, tt.err); got != tt.want {
				t.Errorf("computeOnOff(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestComputeFuzzy(t *testing.T) {
	p := FuzzyParams{ErrorScale: 1}
	zero := computeFuzzy(0, p, 0)
	if math.Abs(zero-0.5) > 1e-9 {
		t.Errorf("zero error output = %v, want 0.5", zero)
	}
	high := computeFuzzy(0, p, 1)
	low := computeFuzzy(0, p, -1)
	if high <= zero || low >= zero {
		t.Errorf("outputs not ordered: low %v, zero %v, high %v", low, zero, high)
	}
	if high < 0 || high > 1 || low < 0 || low > 1 {
		t.Errorf("outputs outside [0,1]: %v %v", low, high)
	}
	// Large errors saturate at the edge of the universe.
	if got := computeFuzzy(0, p, 50); math.Abs(got-high) > 1e-9 {
		t.Errorf("saturated output = %v, want %v", got, high)
	}
}

func TestComputeMPC(t *testing.T) {
	tests := []struct {
		name   string
		sp, pv float64
		output float64
		params MPCParams
		want   float64
	}{
		{"reaches setpoint", 0.7, 0, 0, MPCParams{ErrorWeight: 1, OutputWeight: 0}, 0.7},
		{"already there", 0.3, 0.3, 0, MPCParams{ErrorWeight: 1, OutputWeight: 0}, 0},
		{"move penalty holds", 1, 0, 0.2, MPCParams{ErrorWeight: 0, OutputWeight: 1}, 0.2},
		{"gain scales", 1, 0, 0, MPCParams{ErrorWeight: 1, Gain: 2}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &Loop{Setpoint: tt.sp, ProcessVariable: tt.pv, Output: tt.output}
			got := computeMPC(l, tt.params)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("computeMPC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimit(t *testing.T) {
	lim := Limits{OutputMin: 0, OutputMax: 1, RateOfChangeLimit: 0.5}
	tests := []struct {
		name          string
		raw, previous float64
		dt            float64
		want          float64
	}{
		{"rate limited up", 1, 0, 0.1, 0.05},
		{"rate limited down", 0, 1, 0.2, 0.9},
		{"within rate", 0.52, 0.5, 0.1, 0.52},
		{"clamp after rate", 5, 0.99, 1, 1},
		{"clamp low", -3, 0, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := limit(tt.raw, tt.previous, tt.dt, lim); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("limit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHistory_Ring(t *testing.T) {
	h := NewHistory(3)
	if _, ok := h.Last(); ok {
		t.Error("Last() on empty history reported a sample")
	}
	for i := 1; i <= 5; i++ {
		h.Push(Sample{Output: float64(i)})
	}
	got := h.Samples()
	if len(got) != 3 || got[0].Output != 3 || got[2].Output != 5 {
		t.Errorf("Samples() = %v, want outputs 3,4,5", got)
	}
	if last, _ := h.Last(); last.Output != 5 {
		t.Errorf("Last() = %v", last)
	}
	h.Reset()
	if h.Len() != 0 || h.Cap() != 3 {
		t.Errorf("after Reset: len %d cap %d", h.Len(), h.Cap())
	}
}
