package automation

import (
	"fmt"

	"github.com/nerrad567/controlnet-core/internal/signal"
)

// ActionKind names an action variant.
type ActionKind string

// Action kinds. The set is closed.
const (
	ActionSendSignal     ActionKind = "send_signal"
	ActionUpdateSetpoint ActionKind = "update_setpoint"
	ActionRaiseAlarm     ActionKind = "raise_alarm"
	ActionLogEvent       ActionKind = "log_event"
	ActionRunScript      ActionKind = "run_script"
	ActionToggleRule     ActionKind = "toggle_rule"
	ActionSystemControl  ActionKind = "system_control"
)

// Action is one of the action variants defined in this package.
type Action interface {
	Kind() ActionKind
	isAction()
}

// SendSignalAction queues a new signal. It is routed after the current
// evaluation pass finishes. An empty Source reuses the triggering signal's
// source.
type SendSignalAction struct {
	SignalType string
	Data       map[string]any
	Source     string
	Priority   signal.Priority
}

// UpdateSetpointAction changes a loop setpoint. When FromField is set the new
// setpoint is read from that field of the triggering signal instead of
// Setpoint.
type UpdateSetpointAction struct {
	LoopID    string
	Setpoint  float64
	FromField string
}

// RaiseAlarmAction raises an alarm with the given severity.
type RaiseAlarmAction struct {
	Severity string
	Message  string
}

// LogEventAction writes a log line at Level (debug, info, warn, error).
type LogEventAction struct {
	Level   string
	Message string
}

// RunScriptAction invokes a script registered with Engine.RegisterScript.
type RunScriptAction struct {
	Script string
	Args   map[string]any
}

// ToggleRuleAction enables or disables another rule, or every rule in Group
// when RuleID is empty.
type ToggleRuleAction struct {
	RuleID string
	Group  string
	Enable bool
}

// SystemCommand is a system-control verb.
type SystemCommand string

const (
	CommandEmergencyStop   SystemCommand = "EMERGENCY_STOP"
	CommandResetEmergency  SystemCommand = "RESET_EMERGENCY"
	CommandEnableLoop      SystemCommand = "ENABLE_LOOP"
	CommandDisableLoop     SystemCommand = "DISABLE_LOOP"
	CommandDisableAllLoops SystemCommand = "DISABLE_ALL_LOOPS"
	CommandSweepStaleNodes SystemCommand = "SWEEP_STALE_NODES"
)

// Valid reports whether c is a known command.
func (c SystemCommand) Valid() bool {
	switch c {
	case CommandEmergencyStop, CommandResetEmergency, CommandEnableLoop,
		CommandDisableLoop, CommandDisableAllLoops, CommandSweepStaleNodes:
		return true
	}
	return false
}

// SystemControlAction issues a system-level command. Target names the loop
// or emergency stop the command applies to, where relevant.
type SystemControlAction struct {
	Command SystemCommand
	Target  string
	Reason  string
}

func (SendSignalAction) Kind() ActionKind     { return ActionSendSignal }
func (UpdateSetpointAction) Kind() ActionKind { return ActionUpdateSetpoint }
func (RaiseAlarmAction) Kind() ActionKind     { return ActionRaiseAlarm }
func (LogEventAction) Kind() ActionKind       { return ActionLogEvent }
func (RunScriptAction) Kind() ActionKind      { return ActionRunScript }
func (ToggleRuleAction) Kind() ActionKind     { return ActionToggleRule }
func (SystemControlAction) Kind() ActionKind  { return ActionSystemControl }

func (SendSignalAction) isAction()     {}
func (UpdateSetpointAction) isAction() {}
func (RaiseAlarmAction) isAction()     {}
func (LogEventAction) isAction()       {}
func (RunScriptAction) isAction()      {}
func (ToggleRuleAction) isAction()     {}
func (SystemControlAction) isAction()  {}

// ActionHost is the side-effect surface actions reach through. The network
// runtime implements it.
type ActionHost interface {
	// QueueSignal defers a signal until the current evaluation pass ends.
	QueueSignal(signalType string, data map[string]any, source string, priority signal.Priority) error

	// UpdateSetpoint changes a loop's setpoint.
	UpdateSetpoint(loopID string, setpoint float64) error

	// RaiseAlarm records an alarm and publishes it.
	RaiseAlarm(severity, message, source string, data map[string]any) error

	// SystemControl performs a system-level command.
	SystemControl(cmd SystemCommand, target, reason string) error
}

// ScriptContext is passed to a script when a run-script action fires.
type ScriptContext struct {
	RuleID string
	Signal *signal.Signal
	State  State
	Args   map[string]any
	Host   ActionHost
}

// Script is a named Go function a run-script action can invoke.
type Script func(ctx ScriptContext) error

// execute runs the action bound to r. Panics are converted to errors.
func (e *Engine) execute(r *Rule, sig *signal.Signal, st State) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrExecution, r.Action.Kind(), rec)
		}
	}()

	switch act := r.Action.(type) {
	case SendSignalAction:
		if e.host == nil {
			return ErrNoHost
		}
		source := act.Source
		if source == "" && sig != nil {
			source = sig.Source
		}
		return e.host.QueueSignal(act.SignalType, signal.CloneData(act.Data), source, act.Priority)

	case UpdateSetpointAction:
		if e.host == nil {
			return ErrNoHost
		}
		setpoint := act.Setpoint
		if act.FromField != "" {
			if sig == nil {
				return fmt.Errorf("%w: field %q needs a signal", ErrExecution, act.FromField)
			}
			v, ok := sig.Number(act.FromField)
			if !ok {
				return fmt.Errorf("%w: signal field %q is not numeric", ErrExecution, act.FromField)
			}
			setpoint = v
		}
		return e.host.UpdateSetpoint(act.LoopID, setpoint)

	case RaiseAlarmAction:
		if e.host == nil {
			return ErrNoHost
		}
		var data map[string]any
		if sig != nil {
			data = map[string]any{"signal_id": sig.ID, "signal_type": sig.Type}
		}
		return e.host.RaiseAlarm(act.Severity, act.Message, "rule:"+r.ID, data)

	case LogEventAction:
		args := []any{"rule_id", r.ID}
		if sig != nil {
			args = append(args, "signal_id", sig.ID, "signal_type", sig.Type)
		}
		switch act.Level {
		case "debug":
			e.logger.Debug(act.Message, args...)
		case "warn", "warning":
			e.logger.Warn(act.Message, args...)
		case "error":
			e.logger.Error(act.Message, args...)
		default:
			e.logger.Info(act.Message, args...)
		}
		return nil

	case RunScriptAction:
		script, ok := e.scripts[act.Script]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownScript, act.Script)
		}
		if err := script(ScriptContext{RuleID: r.ID, Signal: sig, State: st, Args: act.Args, Host: e.host}); err != nil {
			return fmt.Errorf("%w: script %s: %w", ErrExecution, act.Script, err)
		}
		return nil

	case ToggleRuleAction:
		if act.RuleID == "" {
			if act.Enable {
				e.EnableGroup(act.Group)
			} else {
				e.DisableGroup(act.Group)
			}
			return nil
		}
		if act.Enable {
			return e.EnableRule(act.RuleID)
		}
		return e.DisableRule(act.RuleID)

	case SystemControlAction:
		if e.host == nil {
			return ErrNoHost
		}
		reason := act.Reason
		if reason == "" {
			reason = "rule " + r.ID
		}
		return e.host.SystemControl(act.Command, act.Target, reason)

	default:
		return fmt.Errorf("%w: action %T", ErrUnknownType, r.Action)
	}
}
