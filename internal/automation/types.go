package automation

import "time"

// Rule defaults.
const (
	DefaultEvaluationInterval = 100 * time.Millisecond
	DefaultPriority           = 50
)

// Metrics are per-rule counters.
type Metrics struct {
	EvaluationCount  int64         `json:"evaluation_count"`
	TriggerCount     int64         `json:"trigger_count"`
	SuccessCount     int64         `json:"success_count"`
	ErrorCount       int64         `json:"error_count"`
	AvgExecutionTime time.Duration `json:"avg_execution_time_ns"`
	LastError        string        `json:"last_error,omitempty"`
}

// Rule is a registered condition/action pair.
type Rule struct {
	ID                 string
	Name               string
	Group              string
	Priority           int
	Condition          Condition
	Action             Action
	Enabled            bool
	CooldownPeriod     time.Duration
	EvaluationInterval time.Duration
	LastEvaluation     time.Time
	LastTriggered      time.Time
	Metrics            Metrics

	timeBased bool
}

// TimeBased reports whether the rule is evaluated on the rule tick.
func (r *Rule) TimeBased() bool { return r.timeBased }

// inCooldown reports whether the rule fired less than CooldownPeriod ago.
func (r *Rule) inCooldown(now time.Time) bool {
	if r.CooldownPeriod <= 0 || r.LastTriggered.IsZero() {
		return false
	}
	return now.Sub(r.LastTriggered) < r.CooldownPeriod
}

// due reports whether EvaluationInterval has elapsed since the last
// evaluation.
func (r *Rule) due(now time.Time) bool {
	if r.LastEvaluation.IsZero() {
		return true
	}
	return now.Sub(r.LastEvaluation) >= r.EvaluationInterval
}

// Definition is the caller-supplied part of a rule.
type Definition struct {
	Name               string
	Group              string
	Priority           int
	Condition          Condition
	Action             Action
	Disabled           bool
	CooldownPeriod     time.Duration
	EvaluationInterval time.Duration
}

// Info is a read-only view of a rule for status queries.
type Info struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Group              string        `json:"group,omitempty"`
	Priority           int           `json:"priority"`
	Enabled            bool          `json:"enabled"`
	TimeBased          bool          `json:"time_based"`
	ConditionKind      ConditionKind `json:"condition"`
	ActionKind         ActionKind    `json:"action"`
	CooldownPeriod     time.Duration `json:"cooldown_ns"`
	EvaluationInterval time.Duration `json:"evaluation_interval_ns"`
	LastEvaluation     time.Time     `json:"last_evaluation,omitzero"`
	LastTriggered      time.Time     `json:"last_triggered,omitzero"`
	Metrics            Metrics       `json:"metrics"`
}

func (r *Rule) info() Info {
	return Info{
		ID:                 r.ID,
		Name:               r.Name,
		Group:              r.Group,
		Priority:           r.Priority,
		Enabled:            r.Enabled,
		TimeBased:          r.timeBased,
		ConditionKind:      r.Condition.Kind(),
		ActionKind:         r.Action.Kind(),
		CooldownPeriod:     r.CooldownPeriod,
		EvaluationInterval: r.EvaluationInterval,
		LastEvaluation:     r.LastEvaluation,
		LastTriggered:      r.LastTriggered,
		Metrics:            r.Metrics,
	}
}

// State is the live system snapshot conditions are evaluated against.
// The runtime builds one per evaluation pass.
type State struct {
	Now           time.Time
	NodeCount     int
	NodesByType   map[string]int
	NetworkHealth float64
	Mode          string
	Emergency     bool
}
