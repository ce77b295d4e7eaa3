// Package control runs the network's feedback control loops.
//
// Each loop binds a setpoint and process variable to one of four controller
// algorithms (PID, on-off, fuzzy, a one-step MPC search). The Scheduler is
// ticked at a fast base rate; each loop executes on its own ExecutionRate.
// After the algorithm runs the output is rate limited, then clamped, then
// recorded in the loop's history and metrics.
//
// A loop whose algorithm fails is disabled; the other loops keep running.
package control

import (
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/controlnet-core/internal/arena"
	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher is the part of the event bus the scheduler needs.
type Publisher interface {
	Publish(ev eventbus.Event)
}

// Config holds scheduler-wide defaults.
type Config struct {
	HistorySize          int
	DefaultExecutionRate time.Duration
}

// Scheduler owns the control loops.
//
// Scheduler holds no locks. The network runtime serialises every call.
type Scheduler struct {
	loops    *arena.Keyed[*Loop]
	profiles map[string]Profile
	cfg      Config
	clock    clock.Clock
	bus      Publisher
	logger   Logger

	executions int64
	errors     int64
}

// NewScheduler creates a scheduler with the built-in tuning profiles.
func NewScheduler(cfg Config, clk clock.Clock, bus Publisher) *Scheduler {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.DefaultExecutionRate <= 0 {
		cfg.DefaultExecutionRate = DefaultExecutionRate
	}
	if clk == nil {
		clk = clock.System{}
	}
	s := &Scheduler{
		loops:    arena.NewKeyed[*Loop](),
		profiles: make(map[string]Profile),
		cfg:      cfg,
		clock:    clk,
		bus:      bus,
		logger:   noopLogger{},
	}
	for _, p := range builtinProfiles() {
		s.profiles[profileKey(p.Type, p.Name)] = p
	}
	return s
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Register adds a loop.
//
// Returns:
//   - ErrInvalidLoop if id is empty, the mode is unknown, the limits are
//     inverted or the parameters belong to another controller type
//   - ErrUnknownType if def.Type is not a known controller type
//   - ErrAlreadyRegistered if a loop with id exists
func (s *Scheduler) Register(id string, def Definition) (Info, error) {
	if id == "" {
		return Info{}, fmt.Errorf("%w: empty id", ErrInvalidLoop)
	}
	if !def.Type.Valid() {
		return Info{}, fmt.Errorf("%w: %q", ErrUnknownType, def.Type)
	}
	if _, exists := s.loops.Get(id); exists {
		return Info{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	params := def.Params
	if params == nil {
		params, _ = DefaultParameters(def.Type)
	}
	if params.LoopType() != def.Type {
		return Info{}, fmt.Errorf("%w: %s parameters for a %s loop", ErrInvalidLoop, params.LoopType(), def.Type)
	}
	limits := DefaultLimits()
	if def.Limits != nil {
		limits = *def.Limits
	}
	if err := validateLimits(limits); err != nil {
		return Info{}, err
	}
	mode := def.Mode
	if mode == "" {
		mode = ModeAuto
	}
	if !mode.Valid() {
		return Info{}, fmt.Errorf("%w: mode %q", ErrInvalidLoop, mode)
	}
	rate := def.ExecutionRate
	if rate <= 0 {
		rate = s.cfg.DefaultExecutionRate
	}
	size := def.HistorySize
	if size <= 0 {
		size = s.cfg.HistorySize
	}

	l := &Loop{
		ID:              id,
		Type:            def.Type,
		Setpoint:        def.Setpoint,
		ProcessVariable: def.ProcessVariable,
		Params:          params,
		Limits:          limits,
		Mode:            mode,
		Enabled:         !def.Disabled,
		State:           StateRegistered,
		ExecutionRate:   rate,
		Input:           def.Input,
		Plant:           def.Plant,
		Cascade:         def.Cascade,
		History:         NewHistory(size),
	}
	if l.Enabled {
		l.State = StateActive
	}
	s.loops.Add(id, l)

	s.logger.Info("control loop registered",
		"loop_id", id,
		"type", string(def.Type),
		"mode", string(mode),
		"execution_rate", rate.String(),
	)
	return l.info(), nil
}

func validateLimits(lim Limits) error {
	if lim.OutputMin > lim.OutputMax {
		return fmt.Errorf("%w: output_min %v above output_max %v", ErrInvalidLoop, lim.OutputMin, lim.OutputMax)
	}
	if lim.RateOfChangeLimit < 0 {
		return fmt.Errorf("%w: negative rate_of_change_limit", ErrInvalidLoop)
	}
	return nil
}

// Update applies the non-nil fields of u to a loop. The update is validated
// as a whole before anything changes.
func (s *Scheduler) Update(id string, u Update) (Info, error) {
	l, ok := s.loops.Get(id)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	if u.Mode != nil && !u.Mode.Valid() {
		return Info{}, fmt.Errorf("%w: mode %q", ErrInvalidLoop, *u.Mode)
	}
	if u.Limits != nil {
		if err := validateLimits(*u.Limits); err != nil {
			return Info{}, err
		}
	}
	if u.Params != nil && u.Params.LoopType() != l.Type {
		return Info{}, fmt.Errorf("%w: %s parameters for a %s loop", ErrInvalidLoop, u.Params.LoopType(), l.Type)
	}
	if u.ExecutionRate != nil && *u.ExecutionRate <= 0 {
		return Info{}, fmt.Errorf("%w: execution rate must be positive", ErrInvalidLoop)
	}

	if u.Setpoint != nil {
		l.Setpoint = *u.Setpoint
	}
	if u.ProcessVariable != nil {
		l.ProcessVariable = *u.ProcessVariable
	}
	if u.ManualOutput != nil {
		l.ManualOutput = *u.ManualOutput
	}
	if u.Mode != nil {
		if *u.Mode == ModeManual && l.Mode != ModeManual && u.ManualOutput == nil {
			// Bumpless transfer: hold the last automatic output.
			l.ManualOutput = l.Output
		}
		l.Mode = *u.Mode
	}
	if u.Limits != nil {
		l.Limits = *u.Limits
	}
	if u.ExecutionRate != nil {
		l.ExecutionRate = *u.ExecutionRate
	}
	if u.Params != nil {
		l.Params = u.Params
		l.Profile = ""
	}
	if u.Cascade != nil {
		c := *u.Cascade
		l.Cascade = &c
	}
	if u.Enabled != nil {
		if *u.Enabled {
			s.enable(l)
		} else {
			s.disable(l, "updated")
		}
	}
	return l.info(), nil
}

// Remove deletes a loop. It returns false if the loop is absent.
func (s *Scheduler) Remove(id string) bool {
	l, ok := s.loops.Remove(id)
	if !ok {
		return false
	}
	l.State = StateRemoved
	l.Enabled = false
	s.logger.Info("control loop removed", "loop_id", id)
	return true
}

// Enable re-enables a loop, clearing its last error. Enabling an enabled loop
// is a no-op.
func (s *Scheduler) Enable(id string) error {
	l, ok := s.loops.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	s.enable(l)
	return nil
}

// Disable stops a loop from executing. Its output is kept.
func (s *Scheduler) Disable(id, reason string) error {
	l, ok := s.loops.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	s.disable(l, reason)
	return nil
}

func (s *Scheduler) enable(l *Loop) {
	if l.Enabled {
		return
	}
	l.Enabled = true
	l.State = StateActive
	l.LastError = ""
	// Restart the cadence so the first execution uses a nominal dt.
	l.LastExecution = time.Time{}
	s.logger.Info("control loop enabled", "loop_id", l.ID)
}

func (s *Scheduler) disable(l *Loop, reason string) {
	if !l.Enabled && l.State == StateDisabled {
		return
	}
	l.Enabled = false
	l.State = StateDisabled
	s.logger.Info("control loop disabled", "loop_id", l.ID, "reason", reason)
	s.publish(eventbus.LoopDisabled, l, reason)
}

// SetSetpoint changes a loop's setpoint. The loop uses it on its next
// execution.
func (s *Scheduler) SetSetpoint(id string, setpoint float64) error {
	l, ok := s.loops.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	if math.IsNaN(setpoint) || math.IsInf(setpoint, 0) {
		return fmt.Errorf("%w: setpoint must be finite", ErrInvalidLoop)
	}
	l.Setpoint = setpoint
	return nil
}

// SetProcessVariable records a new measurement for a loop.
func (s *Scheduler) SetProcessVariable(id string, pv float64) error {
	l, ok := s.loops.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	if math.IsNaN(pv) || math.IsInf(pv, 0) {
		return fmt.Errorf("%w: process variable must be finite", ErrInvalidLoop)
	}
	l.ProcessVariable = pv
	return nil
}

// Tune applies a named tuning profile and resets the PID integral.
func (s *Scheduler) Tune(id, profile string) (Info, error) {
	l, ok := s.loops.Get(id)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	p, err := s.lookupProfile(l.Type, profile)
	if err != nil {
		return Info{}, err
	}
	l.Params = p.Apply(l.Params)
	l.Profile = profile
	l.integral = 0
	s.logger.Info("control loop tuned", "loop_id", id, "profile", profile)
	return l.info(), nil
}

// ApplySignal updates the process variable of every loop whose Input matches
// the signal type and returns how many loops changed.
func (s *Scheduler) ApplySignal(sig signal.Signal) int {
	updated := 0
	s.loops.Each(func(_ string, l *Loop) bool {
		if l.Input == nil || l.Input.SignalType != sig.Type {
			return true
		}
		if v, ok := sig.Number(l.Input.Field); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			l.ProcessVariable = v
			updated++
		}
		return true
	})
	return updated
}

// Tick executes every enabled loop whose cadence has elapsed and returns how
// many ran. Loops run in registration order.
func (s *Scheduler) Tick() int {
	now := s.clock.Now()
	ran := 0
	s.loops.Each(func(_ string, l *Loop) bool {
		if !l.Enabled {
			return true
		}
		if !l.LastExecution.IsZero() && now.Sub(l.LastExecution) < l.ExecutionRate {
			return true
		}
		if err := s.execute(l, now); err != nil {
			l.Metrics.ErrorCount++
			s.errors++
			l.LastError = err.Error()
			s.logger.Error("control loop failed", "loop_id", l.ID, "type", string(l.Type), "error", err)
			s.disable(l, err.Error())
			return true
		}
		ran++
		return true
	})
	return ran
}

// execute runs one loop step. Panics and non-finite outputs are errors.
func (s *Scheduler) execute(l *Loop, now time.Time) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrExecution, l.Type, rec)
		}
	}()

	dt := l.ExecutionRate.Seconds()
	if !l.LastExecution.IsZero() {
		dt = now.Sub(l.LastExecution).Seconds()
	}

	if l.Mode == ModeCascade && l.Cascade != nil {
		if src, ok := s.loops.Get(l.Cascade.Source); ok && src != l {
			gain := l.Cascade.Gain
			if gain == 0 {
				gain = 1
			}
			l.Setpoint = gain*src.Output + l.Cascade.Bias
		}
	}

	var raw float64
	if l.Mode == ModeManual {
		raw = l.ManualOutput
	} else {
		raw, err = compute(l, dt)
		if err != nil {
			return err
		}
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return fmt.Errorf("%w: %s produced non-finite output %v", ErrExecution, l.Type, raw)
	}

	// Manual output bypasses the rate limit; the operator sets it directly.
	if l.Mode == ModeManual {
		l.Output = limit(raw, l.Output, 0, l.Limits)
	} else {
		l.Output = limit(raw, l.Output, dt, l.Limits)
	}
	e := l.Setpoint - l.ProcessVariable
	l.LastExecution = now
	l.History.Push(Sample{Time: now, Error: e, Output: l.Output, ProcessVariable: l.ProcessVariable})
	s.recordMetrics(l, e)

	if l.Plant != nil {
		l.ProcessVariable = l.Plant.step(l.ProcessVariable, l.Output, dt)
	}

	s.publish(eventbus.LoopOutput, l, "")
	return nil
}

func (s *Scheduler) recordMetrics(l *Loop, e float64) {
	abs := math.Abs(e)
	l.Metrics.ExecutionCount++
	s.executions++
	l.Metrics.TotalError += abs
	l.Metrics.AverageError = l.Metrics.TotalError / float64(l.Metrics.ExecutionCount)
	if abs > l.Metrics.MaxError {
		l.Metrics.MaxError = abs
	}
}

// step advances a first-order lag by dt seconds.
func (p *Plant) step(pv, output, dt float64) float64 {
	target := p.Gain * output
	tau := p.TimeConstant.Seconds()
	if tau <= 0 {
		return target
	}
	return pv + (target-pv)*(1-math.Exp(-dt/tau))
}

// DisableAll disables every loop and forces its output to zero. It returns
// the number of loops stopped.
func (s *Scheduler) DisableAll(reason string) int {
	stopped := 0
	s.loops.Each(func(_ string, l *Loop) bool {
		l.Output = 0
		l.ManualOutput = 0
		if l.Enabled || l.State != StateDisabled {
			stopped++
		}
		l.Enabled = false
		l.State = StateDisabled
		return true
	})
	s.logger.Warn("all control loops disabled", "reason", reason, "loops", stopped)
	return stopped
}

// Loop returns a view of one loop.
func (s *Scheduler) Loop(id string) (Info, error) {
	l, ok := s.loops.Get(id)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	return l.info(), nil
}

// History returns a loop's samples, oldest first.
func (s *Scheduler) History(id string) ([]Sample, error) {
	l, ok := s.loops.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLoopNotFound, id)
	}
	return l.History.Samples(), nil
}

// Loops returns views of every loop in registration order.
func (s *Scheduler) Loops() []Info {
	out := make([]Info, 0, s.loops.Len())
	s.loops.Each(func(_ string, l *Loop) bool {
		out = append(out, l.info())
		return true
	})
	return out
}

// Count returns the number of loops.
func (s *Scheduler) Count() int { return s.loops.Len() }

// Executions returns the total number of successful loop runs, including
// runs of loops since removed.
func (s *Scheduler) Executions() int64 { return s.executions }

// Errors returns the total number of failed loop runs, including failures
// of loops since removed.
func (s *Scheduler) Errors() int64 { return s.errors }

// ActiveCount returns the number of enabled loops.
func (s *Scheduler) ActiveCount() int {
	n := 0
	s.loops.Each(func(_ string, l *Loop) bool {
		if l.Enabled {
			n++
		}
		return true
	})
	return n
}

// FaultedCount returns the number of loops disabled by an algorithm error.
func (s *Scheduler) FaultedCount() int {
	n := 0
	s.loops.Each(func(_ string, l *Loop) bool {
		if !l.Enabled && l.LastError != "" {
			n++
		}
		return true
	})
	return n
}

// Shutdown drops every loop.
func (s *Scheduler) Shutdown() {
	s.loops.Each(func(_ string, l *Loop) bool {
		l.Enabled = false
		l.State = StateRemoved
		return true
	})
	s.loops.Clear()
}

func (s *Scheduler) publish(name eventbus.Name, l *Loop, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Name:   name,
		Source: "control",
		Time:   s.clock.Now(),
		Payload: eventbus.LoopEvent{
			LoopID:          l.ID,
			LoopType:        string(l.Type),
			Mode:            string(l.Mode),
			Setpoint:        l.Setpoint,
			ProcessVariable: l.ProcessVariable,
			Output:          l.Output,
			Error:           l.Setpoint - l.ProcessVariable,
			Reason:          reason,
		},
	})
}
