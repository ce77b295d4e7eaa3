package automation

import (
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/controlnet-core/internal/signal"
)

// ConditionKind names a condition variant.
type ConditionKind string

// Condition kinds. The set is closed.
const (
	ConditionSignalType   ConditionKind = "signal_type"
	ConditionThreshold    ConditionKind = "threshold"
	ConditionSchedule     ConditionKind = "schedule"
	ConditionNodeCount    ConditionKind = "node_count"
	ConditionSystemHealth ConditionKind = "system_health"
	ConditionComposite    ConditionKind = "composite"
)

// Condition is one of the condition variants defined in this package.
// The unexported method seals the set.
type Condition interface {
	Kind() ConditionKind
	isCondition()
}

// SignalTypeCondition matches signals whose type is one of Types.
type SignalTypeCondition struct {
	Types []string
}

// ThresholdCondition compares a numeric signal field against Value.
// When SignalType is set, other signal types never match.
type ThresholdCondition struct {
	SignalType string
	Field      string
	Operator   signal.Operator
	Value      float64
}

// ScheduleCondition matches while the clock is inside a daily window.
// Start and End are offsets from midnight; End before Start wraps past
// midnight. An empty Weekdays list matches every day.
type ScheduleCondition struct {
	Start    time.Duration
	End      time.Duration
	Weekdays []time.Weekday
	Location *time.Location
}

// NodeCountCondition compares the number of registered nodes, optionally of a
// single type, against Count.
type NodeCountCondition struct {
	NodeType string
	Operator signal.Operator
	Count    int
}

// SystemHealthCondition compares the network health score against Value.
// When Mode is set the condition also requires that operating mode.
type SystemHealthCondition struct {
	Operator signal.Operator
	Value    float64
	Mode     string
}

// LogicOp combines composite sub-conditions.
type LogicOp string

const (
	LogicAnd LogicOp = "AND"
	LogicOr  LogicOp = "OR"
	LogicNot LogicOp = "NOT"
)

// CompositeCondition combines sub-conditions. NOT negates only the first
// sub-condition and ignores the rest.
type CompositeCondition struct {
	Op         LogicOp
	Conditions []Condition
}

func (SignalTypeCondition) Kind() ConditionKind   { return ConditionSignalType }
func (ThresholdCondition) Kind() ConditionKind    { return ConditionThreshold }
func (ScheduleCondition) Kind() ConditionKind     { return ConditionSchedule }
func (NodeCountCondition) Kind() ConditionKind    { return ConditionNodeCount }
func (SystemHealthCondition) Kind() ConditionKind { return ConditionSystemHealth }
func (CompositeCondition) Kind() ConditionKind    { return ConditionComposite }

func (SignalTypeCondition) isCondition()   {}
func (ThresholdCondition) isCondition()    {}
func (ScheduleCondition) isCondition()     {}
func (NodeCountCondition) isCondition()    {}
func (SystemHealthCondition) isCondition() {}
func (CompositeCondition) isCondition()    {}

// Evaluate evaluates c against an optional signal and the system state.
// sig is nil on the rule tick; signal-bound conditions are then false.
func Evaluate(c Condition, sig *signal.Signal, st State) (bool, error) {
	switch cond := c.(type) {
	case SignalTypeCondition:
		if sig == nil {
			return false, nil
		}
		return slices.Contains(cond.Types, sig.Type), nil

	case ThresholdCondition:
		if sig == nil {
			return false, nil
		}
		if cond.SignalType != "" && cond.SignalType != sig.Type {
			return false, nil
		}
		v, ok := sig.Number(cond.Field)
		if !ok {
			return false, nil
		}
		return cond.Operator.Compare(v, cond.Value)

	case ScheduleCondition:
		return cond.matches(st.Now), nil

	case NodeCountCondition:
		count := st.NodeCount
		if cond.NodeType != "" {
			count = st.NodesByType[cond.NodeType]
		}
		return cond.Operator.Compare(float64(count), float64(cond.Count))

	case SystemHealthCondition:
		if cond.Mode != "" && cond.Mode != st.Mode {
			return false, nil
		}
		if cond.Operator == "" {
			return true, nil
		}
		return cond.Operator.Compare(st.NetworkHealth, cond.Value)

	case CompositeCondition:
		return evaluateComposite(cond, sig, st)

	case nil:
		return false, fmt.Errorf("%w: nil condition", ErrUnknownType)

	default:
		return false, fmt.Errorf("%w: condition %T", ErrUnknownType, c)
	}
}

func evaluateComposite(c CompositeCondition, sig *signal.Signal, st State) (bool, error) {
	switch c.Op {
	case LogicAnd:
		for _, sub := range c.Conditions {
			ok, err := Evaluate(sub, sig, st)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case LogicOr:
		for _, sub := range c.Conditions {
			ok, err := Evaluate(sub, sig, st)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case LogicNot:
		if len(c.Conditions) == 0 {
			return true, nil
		}
		ok, err := Evaluate(c.Conditions[0], sig, st)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, fmt.Errorf("%w: logic operator %q", ErrUnknownType, string(c.Op))
	}
}

func (c ScheduleCondition) matches(now time.Time) bool {
	if now.IsZero() {
		return false
	}
	if c.Location != nil {
		now = now.In(c.Location)
	}
	if len(c.Weekdays) > 0 && !slices.Contains(c.Weekdays, now.Weekday()) {
		return false
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := now.Sub(midnight)
	if c.Start <= c.End {
		return offset >= c.Start && offset < c.End
	}
	return offset >= c.Start || offset < c.End
}

// hasSchedule reports whether a schedule condition appears anywhere in c.
func hasSchedule(c Condition) bool {
	switch cond := c.(type) {
	case ScheduleCondition:
		return true
	case CompositeCondition:
		return slices.ContainsFunc(cond.Conditions, hasSchedule)
	default:
		return false
	}
}
