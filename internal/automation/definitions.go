package automation

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/controlnet-core/internal/signal"
)

// RuleSpec is the declarative form of a rule, as read from the config file
// or posted to the API.
//
// Example (YAML):
//
//	- id: high-temp-alarm
//	  group: thermal
//	  cooldown: 30s
//	  condition:
//	    type: threshold
//	    signal_type: temperature
//	    field: value
//	    operator: ">"
//	    value: 80
//	  action:
//	    type: raise_alarm
//	    severity: warning
//	    message: temperature above 80
type RuleSpec struct {
	ID                 string        `yaml:"id" json:"id"`
	Name               string        `yaml:"name" json:"name,omitempty"`
	Group              string        `yaml:"group" json:"group,omitempty"`
	Priority           int           `yaml:"priority" json:"priority,omitempty"`
	Disabled           bool          `yaml:"disabled" json:"disabled,omitempty"`
	Cooldown           time.Duration `yaml:"cooldown" json:"cooldown,omitempty"`
	EvaluationInterval time.Duration `yaml:"evaluation_interval" json:"evaluation_interval,omitempty"`
	Condition          ConditionSpec `yaml:"condition" json:"condition"`
	Action             ActionSpec    `yaml:"action" json:"action"`
}

// ConditionSpec is the declarative form of a Condition. Type selects the
// variant; only the fields that variant uses are read.
type ConditionSpec struct {
	Type string `yaml:"type" json:"type"`

	// signal_type
	SignalTypes []string `yaml:"signal_types" json:"signal_types,omitempty"`

	// threshold (SignalType optional), node_count, system_health
	SignalType string  `yaml:"signal_type" json:"signal_type,omitempty"`
	Field      string  `yaml:"field" json:"field,omitempty"`
	Operator   string  `yaml:"operator" json:"operator,omitempty"`
	Value      float64 `yaml:"value" json:"value,omitempty"`
	NodeType   string  `yaml:"node_type" json:"node_type,omitempty"`
	Count      int     `yaml:"count" json:"count,omitempty"`
	Mode       string  `yaml:"mode" json:"mode,omitempty"`

	// schedule: "HH:MM" times, weekday names
	Start    string   `yaml:"start" json:"start,omitempty"`
	End      string   `yaml:"end" json:"end,omitempty"`
	Weekdays []string `yaml:"weekdays" json:"weekdays,omitempty"`
	Timezone string   `yaml:"timezone" json:"timezone,omitempty"`

	// composite
	Logic      string          `yaml:"logic" json:"logic,omitempty"`
	Conditions []ConditionSpec `yaml:"conditions" json:"conditions,omitempty"`
}

// ActionSpec is the declarative form of an Action.
type ActionSpec struct {
	Type string `yaml:"type" json:"type"`

	SignalType string         `yaml:"signal_type" json:"signal_type,omitempty"`
	Data       map[string]any `yaml:"data" json:"data,omitempty"`
	Source     string         `yaml:"source" json:"source,omitempty"`
	Priority   string         `yaml:"priority" json:"priority,omitempty"`

	LoopID    string  `yaml:"loop_id" json:"loop_id,omitempty"`
	Setpoint  float64 `yaml:"setpoint" json:"setpoint,omitempty"`
	FromField string  `yaml:"from_field" json:"from_field,omitempty"`

	Severity string `yaml:"severity" json:"severity,omitempty"`
	Message  string `yaml:"message" json:"message,omitempty"`
	Level    string `yaml:"level" json:"level,omitempty"`

	Script string         `yaml:"script" json:"script,omitempty"`
	Args   map[string]any `yaml:"args" json:"args,omitempty"`

	RuleID string `yaml:"rule_id" json:"rule_id,omitempty"`
	Group  string `yaml:"group" json:"group,omitempty"`
	Enable bool   `yaml:"enable" json:"enable,omitempty"`

	Command string `yaml:"command" json:"command,omitempty"`
	Target  string `yaml:"target" json:"target,omitempty"`
	Reason  string `yaml:"reason" json:"reason,omitempty"`
}

// Definition builds the rule definition described by s.
func (s RuleSpec) Definition() (Definition, error) {
	cond, err := s.Condition.Build()
	if err != nil {
		return Definition{}, fmt.Errorf("rule %s: condition: %w", s.ID, err)
	}
	act, err := s.Action.Build()
	if err != nil {
		return Definition{}, fmt.Errorf("rule %s: action: %w", s.ID, err)
	}
	return Definition{
		Name:               s.Name,
		Group:              s.Group,
		Priority:           s.Priority,
		Condition:          cond,
		Action:             act,
		Disabled:           s.Disabled,
		CooldownPeriod:     s.Cooldown,
		EvaluationInterval: s.EvaluationInterval,
	}, nil
}

// Build converts the spec into a Condition.
func (s ConditionSpec) Build() (Condition, error) {
	switch ConditionKind(s.Type) {
	case ConditionSignalType:
		types := s.SignalTypes
		if len(types) == 0 && s.SignalType != "" {
			types = []string{s.SignalType}
		}
		if len(types) == 0 {
			return nil, fmt.Errorf("%w: signal_type condition needs signal_types", ErrInvalidRule)
		}
		return SignalTypeCondition{Types: types}, nil

	case ConditionThreshold:
		op, err := parseOperator(s.Operator)
		if err != nil {
			return nil, err
		}
		if s.Field == "" {
			return nil, fmt.Errorf("%w: threshold condition needs a field", ErrInvalidRule)
		}
		return ThresholdCondition{SignalType: s.SignalType, Field: s.Field, Operator: op, Value: s.Value}, nil

	case ConditionSchedule:
		return s.buildSchedule()

	case ConditionNodeCount:
		op, err := parseOperator(s.Operator)
		if err != nil {
			return nil, err
		}
		return NodeCountCondition{NodeType: s.NodeType, Operator: op, Count: s.Count}, nil

	case ConditionSystemHealth:
		c := SystemHealthCondition{Value: s.Value, Mode: s.Mode}
		if s.Operator != "" {
			op, err := parseOperator(s.Operator)
			if err != nil {
				return nil, err
			}
			c.Operator = op
		} else if s.Mode == "" {
			return nil, fmt.Errorf("%w: system_health condition needs an operator or a mode", ErrInvalidRule)
		}
		return c, nil

	case ConditionComposite:
		logic := LogicOp(strings.ToUpper(s.Logic))
		switch logic {
		case LogicAnd, LogicOr, LogicNot:
		default:
			return nil, fmt.Errorf("%w: logic operator %q", ErrUnknownType, s.Logic)
		}
		subs := make([]Condition, 0, len(s.Conditions))
		for i, sub := range s.Conditions {
			c, err := sub.Build()
			if err != nil {
				return nil, fmt.Errorf("conditions[%d]: %w", i, err)
			}
			subs = append(subs, c)
		}
		return CompositeCondition{Op: logic, Conditions: subs}, nil

	default:
		return nil, fmt.Errorf("%w: condition %q", ErrUnknownType, s.Type)
	}
}

func (s ConditionSpec) buildSchedule() (Condition, error) {
	start, err := parseClock(s.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(s.End)
	if err != nil {
		return nil, err
	}
	c := ScheduleCondition{Start: start, End: end}
	for _, name := range s.Weekdays {
		wd, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%w: weekday %q", ErrInvalidRule, name)
		}
		c.Weekdays = append(c.Weekdays, wd)
	}
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidRule, s.Timezone, err)
		}
		c.Location = loc
	}
	return c, nil
}

// Build converts the spec into an Action.
func (s ActionSpec) Build() (Action, error) {
	switch ActionKind(s.Type) {
	case ActionSendSignal:
		if s.SignalType == "" {
			return nil, fmt.Errorf("%w: send_signal needs a signal_type", ErrInvalidRule)
		}
		a := SendSignalAction{SignalType: s.SignalType, Data: s.Data, Source: s.Source}
		if s.Priority != "" {
			p, ok := signal.ParsePriority(s.Priority)
			if !ok {
				return nil, fmt.Errorf("%w: priority %q", ErrInvalidRule, s.Priority)
			}
			a.Priority = p
		}
		return a, nil

	case ActionUpdateSetpoint:
		if s.LoopID == "" {
			return nil, fmt.Errorf("%w: update_setpoint needs a loop_id", ErrInvalidRule)
		}
		return UpdateSetpointAction{LoopID: s.LoopID, Setpoint: s.Setpoint, FromField: s.FromField}, nil

	case ActionRaiseAlarm:
		severity := s.Severity
		if severity == "" {
			severity = "warning"
		}
		return RaiseAlarmAction{Severity: severity, Message: s.Message}, nil

	case ActionLogEvent:
		return LogEventAction{Level: s.Level, Message: s.Message}, nil

	case ActionRunScript:
		if s.Script == "" {
			return nil, fmt.Errorf("%w: run_script needs a script", ErrInvalidRule)
		}
		return RunScriptAction{Script: s.Script, Args: s.Args}, nil

	case ActionToggleRule:
		if s.RuleID == "" && s.Group == "" {
			return nil, fmt.Errorf("%w: toggle_rule needs a rule_id or group", ErrInvalidRule)
		}
		return ToggleRuleAction{RuleID: s.RuleID, Group: s.Group, Enable: s.Enable}, nil

	case ActionSystemControl:
		cmd := SystemCommand(strings.ToUpper(s.Command))
		if !cmd.Valid() {
			return nil, fmt.Errorf("%w: system command %q", ErrUnknownType, s.Command)
		}
		return SystemControlAction{Command: cmd, Target: s.Target, Reason: s.Reason}, nil

	default:
		return nil, fmt.Errorf("%w: action %q", ErrUnknownType, s.Type)
	}
}

func parseOperator(s string) (signal.Operator, error) {
	op := signal.Operator(s)
	if !op.Valid() {
		return "", fmt.Errorf("%w: operator %q", ErrUnknownType, s)
	}
	return op, nil
}

// parseClock parses "HH:MM" into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q: want HH:MM", ErrInvalidRule, s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}
