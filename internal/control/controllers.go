package control

import (
	"fmt"
	"math"
)

// Parameters is one of the algorithm parameter sets defined in this package.
// The concrete type selects the controller.
type Parameters interface {
	LoopType() LoopType
	isParameters()
}

// PIDParams are proportional, integral and derivative gains.
type PIDParams struct {
	Kp float64 `json:"kp" yaml:"kp"`
	Ki float64 `json:"ki" yaml:"ki"`
	Kd float64 `json:"kd" yaml:"kd"`
}

// OnOffParams define the switching band [Threshold-Hysteresis,
// Threshold+Hysteresis] on the control error.
type OnOffParams struct {
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	Hysteresis float64 `json:"hysteresis" yaml:"hysteresis"`
}

// FuzzyParams scale the control error into the [-1,1] universe.
type FuzzyParams struct {
	ErrorScale float64 `json:"error_scale" yaml:"error_scale"`
}

// MPCParams weight the one-step cost. Gain is the assumed process gain used to
// predict the next error.
type MPCParams struct {
	ErrorWeight  float64 `json:"error_weight" yaml:"error_weight"`
	OutputWeight float64 `json:"output_weight" yaml:"output_weight"`
	Gain         float64 `json:"gain" yaml:"gain"`
}

func (PIDParams) LoopType() LoopType   { return TypePID }
func (OnOffParams) LoopType() LoopType { return TypeOnOff }
func (FuzzyParams) LoopType() LoopType { return TypeFuzzy }
func (MPCParams) LoopType() LoopType   { return TypeMPC }

func (PIDParams) isParameters()   {}
func (OnOffParams) isParameters() {}
func (FuzzyParams) isParameters() {}
func (MPCParams) isParameters()   {}

// DefaultParameters returns the default parameter set for a controller type.
func DefaultParameters(t LoopType) (Parameters, error) {
	switch t {
	case TypePID:
		return PIDParams{Kp: 1.0, Ki: 0.1, Kd: 0.05}, nil
	case TypeOnOff:
		return OnOffParams{Threshold: 0, Hysteresis: 0.05}, nil
	case TypeFuzzy:
		return FuzzyParams{ErrorScale: 1.0}, nil
	case TypeMPC:
		return MPCParams{ErrorWeight: 1.0, OutputWeight: 0.1, Gain: 1.0}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

// compute runs the loop's algorithm for one step of dt seconds and returns the
// raw output before rate limiting and clamping.
func compute(l *Loop, dt float64) (float64, error) {
	e := l.Setpoint - l.ProcessVariable

	switch p := l.Params.(type) {
	case PIDParams:
		return computePID(l, p, e, dt), nil
	case OnOffParams:
		return computeOnOff(l.Output, p, e), nil
	case FuzzyParams:
		return computeFuzzy(l.Output, p, e), nil
	case MPCParams:
		return computeMPC(l, p), nil
	case nil:
		return 0, fmt.Errorf("%w: loop %s has no parameters", ErrUnknownType, l.ID)
	default:
		return 0, fmt.Errorf("%w: parameters %T", ErrUnknownType, l.Params)
	}
}

// computePID integrates without anti-windup. The derivative uses the previous
// error from history and is zero on the first execution.
func computePID(l *Loop, p PIDParams, e, dt float64) float64 {
	l.integral += e * dt
	derivative := 0.0
	if prev, ok := l.History.Last(); ok && dt > 0 {
		derivative = (e - prev.Error) / dt
	}
	return p.Kp*e + p.Ki*l.integral + p.Kd*derivative
}

// computeOnOff switches to 1 above the band, to 0 below it and holds inside.
func computeOnOff(current float64, p OnOffParams, e float64) float64 {
	switch {
	case e > p.Threshold+p.Hysteresis:
		return 1
	case e < p.Threshold-p.Hysteresis:
		return 0
	default:
		return current
	}
}

// triangle is a triangular membership function with feet a, c and peak b.
// a == b or b == c gives a shoulder.
type triangle struct{ a, b, c float64 }

func (t triangle) membership(x float64) float64 {
	switch {
	case x < t.a || x > t.c:
		return 0
	case x == t.b:
		return 1
	case x < t.b:
		return (x - t.a) / (t.b - t.a)
	default:
		return (t.c - x) / (t.c - t.b)
	}
}

// Fuzzy sets. Negative error drives the output low, positive error high.
var (
	errorNegative = triangle{-1, -1, 0}
	errorZero     = triangle{-0.5, 0, 0.5}
	errorPositive = triangle{0, 1, 1}

	outputLow    = triangle{0, 0, 0.5}
	outputMedium = triangle{0.25, 0.5, 0.75}
	outputHigh   = triangle{0.5, 1, 1}
)

const fuzzyStep = 0.01

// computeFuzzy fuzzifies the scaled error, fires the fixed rule map
// (negative→low, zero→medium, positive→high) with min implication, combines by
// max and returns the centroid over [0,1]. With no rule firing the output is
// held.
func computeFuzzy(current float64, p FuzzyParams, e float64) float64 {
	scale := p.ErrorScale
	if scale <= 0 {
		scale = 1
	}
	x := math.Max(-1, math.Min(1, e/scale))

	neg := errorNegative.membership(x)
	zero := errorZero.membership(x)
	pos := errorPositive.membership(x)

	var num, den float64
	steps := int(math.Round(1 / fuzzyStep))
	for i := 0; i <= steps; i++ {
		y := float64(i) * fuzzyStep
		mu := math.Max(
			math.Min(neg, outputLow.membership(y)),
			math.Max(
				math.Min(zero, outputMedium.membership(y)),
				math.Min(pos, outputHigh.membership(y)),
			),
		)
		num += y * mu
		den += mu
	}
	if den == 0 {
		return current
	}
	return num / den
}

const mpcStep = 0.1

// computeMPC searches candidate outputs 0, 0.1, ..., 1 for the lowest one-step
// cost ErrorWeight·e'² + OutputWeight·(u-current)², where e' is the error
// predicted for the candidate. Ties keep the lower candidate.
func computeMPC(l *Loop, p MPCParams) float64 {
	gain := p.Gain
	if gain == 0 {
		gain = 1
	}
	best, bestCost := 0.0, math.Inf(1)
	steps := int(math.Round(1 / mpcStep))
	for i := 0; i <= steps; i++ {
		u := float64(i) * mpcStep
		predicted := l.Setpoint - (l.ProcessVariable + gain*u)
		move := u - l.Output
		cost := p.ErrorWeight*predicted*predicted + p.OutputWeight*move*move
		if cost < bestCost {
			best, bestCost = u, cost
		}
	}
	return best
}

// limit applies the rate-of-change limit for a step of dt seconds, then clamps
// to the output range.
func limit(raw, previous, dt float64, lim Limits) float64 {
	out := raw
	if lim.RateOfChangeLimit > 0 && dt > 0 {
		maxDelta := lim.RateOfChangeLimit * dt
		out = math.Max(previous-maxDelta, math.Min(previous+maxDelta, out))
	}
	return math.Max(lim.OutputMin, math.Min(lim.OutputMax, out))
}
