package control

import "time"

// LoopType selects the controller algorithm.
type LoopType string

// Controller types. The set is closed.
const (
	TypePID   LoopType = "PID"
	TypeFuzzy LoopType = "FUZZY"
	TypeOnOff LoopType = "ON_OFF"
	TypeMPC   LoopType = "MPC"
)

// Valid reports whether t is a known controller type.
func (t LoopType) Valid() bool {
	switch t {
	case TypePID, TypeFuzzy, TypeOnOff, TypeMPC:
		return true
	}
	return false
}

// Mode is the loop operating mode.
type Mode string

const (
	ModeAuto    Mode = "AUTO"
	ModeManual  Mode = "MANUAL"
	ModeCascade Mode = "CASCADE"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeManual, ModeCascade:
		return true
	}
	return false
}

// State is the scheduler's lifecycle state for a loop.
type State string

const (
	StateRegistered State = "REGISTERED"
	StateActive     State = "ACTIVE"
	StateDisabled   State = "DISABLED"
	StateRemoved    State = "REMOVED"
)

// DefaultExecutionRate is the per-loop cadence when none is configured.
const DefaultExecutionRate = 100 * time.Millisecond

// Limits bound the controller output. A zero RateOfChangeLimit disables rate
// limiting.
type Limits struct {
	OutputMin         float64 `json:"output_min" yaml:"output_min"`
	OutputMax         float64 `json:"output_max" yaml:"output_max"`
	RateOfChangeLimit float64 `json:"rate_of_change_limit" yaml:"rate_of_change_limit"`
}

// DefaultLimits returns the [0,1] output range with no rate limit.
func DefaultLimits() Limits {
	return Limits{OutputMin: 0, OutputMax: 1}
}

// Input binds a loop's process variable to a field of routed signals.
type Input struct {
	SignalType string `json:"signal_type" yaml:"signal_type"`
	Field      string `json:"field" yaml:"field"`
}

// Plant is a first-order process model. After each execution the process
// variable relaxes toward Gain·Output with time constant TimeConstant.
type Plant struct {
	Gain         float64       `json:"gain" yaml:"gain"`
	TimeConstant time.Duration `json:"time_constant" yaml:"time_constant"`
}

// Cascade makes a loop take its setpoint from another loop's output:
// setpoint = Gain·source.Output + Bias.
type Cascade struct {
	Source string  `json:"source" yaml:"source"`
	Gain   float64 `json:"gain" yaml:"gain"`
	Bias   float64 `json:"bias" yaml:"bias"`
}

// Metrics are per-loop counters. Errors are absolute control errors.
type Metrics struct {
	ExecutionCount int64   `json:"execution_count"`
	TotalError     float64 `json:"total_error"`
	AverageError   float64 `json:"average_error"`
	MaxError       float64 `json:"max_error"`
	ErrorCount     int64   `json:"error_count"`
}

// Loop is a control loop owned by a Scheduler.
type Loop struct {
	ID              string
	Type            LoopType
	Setpoint        float64
	ProcessVariable float64
	Output          float64
	ManualOutput    float64
	Params          Parameters
	Limits          Limits
	Mode            Mode
	Enabled         bool
	State           State
	ExecutionRate   time.Duration
	LastExecution   time.Time
	Input           *Input
	Plant           *Plant
	Cascade         *Cascade
	Profile         string
	History         *History
	Metrics         Metrics
	LastError       string

	integral float64
}

// Definition describes a loop at registration.
type Definition struct {
	Type            LoopType
	Setpoint        float64
	ProcessVariable float64
	// Params defaults to the controller type's defaults when nil.
	Params Parameters
	// Limits defaults to DefaultLimits when nil.
	Limits        *Limits
	Mode          Mode
	ExecutionRate time.Duration
	Disabled      bool
	Input         *Input
	Plant         *Plant
	Cascade       *Cascade
	HistorySize   int
}

// Update changes selected fields of a registered loop. Nil fields are left
// as they are.
type Update struct {
	Setpoint        *float64       `json:"setpoint,omitempty"`
	ProcessVariable *float64       `json:"process_variable,omitempty"`
	ManualOutput    *float64       `json:"manual_output,omitempty"`
	Mode            *Mode          `json:"mode,omitempty"`
	Enabled         *bool          `json:"enabled,omitempty"`
	Limits          *Limits        `json:"limits,omitempty"`
	ExecutionRate   *time.Duration `json:"execution_rate,omitempty"`
	Params          Parameters     `json:"-"`
	Cascade         *Cascade       `json:"cascade,omitempty"`
}

// Info is a read-only view of a loop.
type Info struct {
	ID              string        `json:"id"`
	Type            LoopType      `json:"type"`
	Mode            Mode          `json:"mode"`
	State           State         `json:"state"`
	Enabled         bool          `json:"enabled"`
	Setpoint        float64       `json:"setpoint"`
	ProcessVariable float64       `json:"process_variable"`
	Output          float64       `json:"output"`
	Params          Parameters    `json:"parameters"`
	Limits          Limits        `json:"limits"`
	ExecutionRate   time.Duration `json:"execution_rate_ns"`
	LastExecution   time.Time     `json:"last_execution,omitzero"`
	Profile         string        `json:"profile,omitempty"`
	Cascade         *Cascade      `json:"cascade,omitempty"`
	Metrics         Metrics       `json:"metrics"`
	LastError       string        `json:"last_error,omitempty"`
	HistoryLen      int           `json:"history_len"`
}

func (l *Loop) info() Info {
	in := Info{
		ID:              l.ID,
		Type:            l.Type,
		Mode:            l.Mode,
		State:           l.State,
		Enabled:         l.Enabled,
		Setpoint:        l.Setpoint,
		ProcessVariable: l.ProcessVariable,
		Output:          l.Output,
		Params:          l.Params,
		Limits:          l.Limits,
		ExecutionRate:   l.ExecutionRate,
		LastExecution:   l.LastExecution,
		Profile:         l.Profile,
		Metrics:         l.Metrics,
		LastError:       l.LastError,
		HistoryLen:      l.History.Len(),
	}
	if l.Cascade != nil {
		c := *l.Cascade
		in.Cascade = &c
	}
	return in
}
