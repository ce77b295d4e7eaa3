package automation

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/controlnet-core/internal/arena"
	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

// Logger defines the logging interface used by the Engine.
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

// Publisher is the part of the event bus the engine needs.
type Publisher interface {
	Publish(ev eventbus.Event)
}

// Config holds engine-wide defaults.
type Config struct {
	// DefaultEvaluationInterval applies to rules that set none.
	DefaultEvaluationInterval time.Duration
}

// Engine owns the automation rules and evaluates them.
//
// Engine holds no locks. The network runtime serialises every call.
type Engine struct {
	rules   *arena.Keyed[*Rule]
	scripts map[string]Script
	cfg     Config
	clock   clock.Clock
	host    ActionHost
	bus     Publisher
	logger  Logger

	triggered int64
	errors    int64
}

// NewEngine creates an engine. host and bus may be nil; actions that need a
// host then fail with ErrNoHost.
func NewEngine(cfg Config, clk clock.Clock, host ActionHost, bus Publisher) *Engine {
	if cfg.DefaultEvaluationInterval <= 0 {
		cfg.DefaultEvaluationInterval = DefaultEvaluationInterval
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{
		rules:   arena.NewKeyed[*Rule](),
		scripts: make(map[string]Script),
		cfg:     cfg,
		clock:   clk,
		host:    host,
		bus:     bus,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// AddRule registers an enabled rule with default settings.
func (e *Engine) AddRule(id string, cond Condition, act Action) error {
	return e.RegisterRule(id, Definition{Condition: cond, Action: act})
}

// RegisterRule registers a rule from a full definition.
//
// Returns:
//   - ErrInvalidRule if id, condition or action is missing
//   - ErrAlreadyRegistered if a rule with id exists
func (e *Engine) RegisterRule(id string, def Definition) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if def.Condition == nil || def.Action == nil {
		return fmt.Errorf("%w: %s needs a condition and an action", ErrInvalidRule, id)
	}
	if _, exists := e.rules.Get(id); exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	r := &Rule{
		ID:                 id,
		Name:               def.Name,
		Group:              def.Group,
		Priority:           def.Priority,
		Condition:          def.Condition,
		Action:             def.Action,
		Enabled:            !def.Disabled,
		CooldownPeriod:     def.CooldownPeriod,
		EvaluationInterval: def.EvaluationInterval,
		timeBased:          hasSchedule(def.Condition),
	}
	if r.Name == "" {
		r.Name = id
	}
	if r.Priority == 0 {
		r.Priority = DefaultPriority
	}
	if r.EvaluationInterval <= 0 {
		r.EvaluationInterval = e.cfg.DefaultEvaluationInterval
	}
	e.rules.Add(id, r)

	e.logger.Info("rule registered",
		"rule_id", id,
		"group", r.Group,
		"condition", string(r.Condition.Kind()),
		"action", string(r.Action.Kind()),
	)
	return nil
}

// RemoveRule deletes a rule. It returns false if the rule is absent.
func (e *Engine) RemoveRule(id string) bool {
	if _, ok := e.rules.Remove(id); !ok {
		return false
	}
	e.logger.Info("rule removed", "rule_id", id)
	return true
}

// EnableRule enables a rule. Enabling an enabled rule is a no-op.
func (e *Engine) EnableRule(id string) error {
	return e.setEnabled(id, true)
}

// DisableRule disables a rule. Disabling a disabled rule is a no-op.
func (e *Engine) DisableRule(id string) error {
	return e.setEnabled(id, false)
}

func (e *Engine) setEnabled(id string, enabled bool) error {
	r, ok := e.rules.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if r.Enabled != enabled {
		r.Enabled = enabled
		e.logger.Info("rule state changed", "rule_id", id, "enabled", enabled)
	}
	return nil
}

// EnableGroup enables every rule in group and returns how many changed.
func (e *Engine) EnableGroup(group string) int {
	return e.setGroupEnabled(group, true)
}

// DisableGroup disables every rule in group and returns how many changed.
func (e *Engine) DisableGroup(group string) int {
	return e.setGroupEnabled(group, false)
}

func (e *Engine) setGroupEnabled(group string, enabled bool) int {
	changed := 0
	e.rules.Each(func(_ string, r *Rule) bool {
		if r.Group == group && r.Enabled != enabled {
			r.Enabled = enabled
			changed++
		}
		return true
	})
	if changed > 0 {
		e.logger.Info("rule group state changed", "group", group, "enabled", enabled, "rules", changed)
	}
	return changed
}

// Groups returns the distinct non-empty rule groups, sorted.
func (e *Engine) Groups() []string {
	var groups []string
	e.rules.Each(func(_ string, r *Rule) bool {
		if r.Group != "" && !slices.Contains(groups, r.Group) {
			groups = append(groups, r.Group)
		}
		return true
	})
	slices.Sort(groups)
	return groups
}

// ResetRule clears a rule's metrics, cooldown and evaluation gate.
func (e *Engine) ResetRule(id string) error {
	r, ok := e.rules.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	r.Metrics = Metrics{}
	r.LastTriggered = time.Time{}
	r.LastEvaluation = time.Time{}
	return nil
}

// RegisterScript makes fn available to run-script actions under name.
// A later registration under the same name replaces the earlier one.
func (e *Engine) RegisterScript(name string, fn Script) {
	e.scripts[name] = fn
}

// Evaluate offers a routed signal to every enabled rule in registration order
// and returns how many rules fired. Rules whose EvaluationInterval has not
// elapsed are skipped.
func (e *Engine) Evaluate(sig signal.Signal, st State) int {
	return e.evaluate(&sig, st, passSignal)
}

// EvaluateChained is Evaluate for signals queued during an earlier pass, such
// as send-signal chains and safety actuation signals. They arrive at the
// same instant as the signal that caused them, so the interval gate is not
// applied and LastEvaluation is left alone. Cooldowns still apply.
func (e *Engine) EvaluateChained(sig signal.Signal, st State) int {
	return e.evaluate(&sig, st, passChained)
}

// Tick evaluates the time-based rules without a signal and returns how many
// fired.
func (e *Engine) Tick(st State) int {
	return e.evaluate(nil, st, passTick)
}

type pass int

const (
	passSignal pass = iota
	passChained
	passTick
)

func (e *Engine) evaluate(sig *signal.Signal, st State, kind pass) int {
	now := e.clock.Now()
	if st.Now.IsZero() {
		st.Now = now
	}

	// Rules are evaluated against a fixed list so actions that toggle rules
	// only affect later passes, not membership of this one.
	var candidates []*Rule
	e.rules.Each(func(_ string, r *Rule) bool {
		if kind == passTick && !r.timeBased {
			return true
		}
		candidates = append(candidates, r)
		return true
	})

	gated := kind != passChained
	fired := 0
	for _, r := range candidates {
		if !r.Enabled || r.inCooldown(now) {
			continue
		}
		if gated {
			if !r.due(now) {
				continue
			}
			r.LastEvaluation = now
		}
		if e.evaluateRule(r, sig, st, now) {
			fired++
		}
	}
	return fired
}

// evaluateRule runs one rule and reports whether its action fired.
func (e *Engine) evaluateRule(r *Rule, sig *signal.Signal, st State, now time.Time) bool {
	r.Metrics.EvaluationCount++

	ok, err := e.checkCondition(r, sig, st)
	if err != nil {
		r.Metrics.ErrorCount++
		e.errors++
		r.Metrics.LastError = err.Error()
		e.logger.Error("rule condition failed", "rule_id", r.ID, "error", err)
		return false
	}
	if !ok {
		return false
	}

	r.LastTriggered = now
	r.Metrics.TriggerCount++
	e.triggered++

	started := time.Now()
	err = e.execute(r, sig, st)
	elapsed := time.Since(started)
	r.Metrics.AvgExecutionTime += (elapsed - r.Metrics.AvgExecutionTime) / time.Duration(r.Metrics.TriggerCount)

	ev := eventbus.RuleEvent{
		RuleID:   r.ID,
		RuleName: r.Name,
		Group:    r.Group,
		Action:   string(r.Action.Kind()),
		Success:  err == nil,
	}
	if sig != nil {
		ev.SignalID = sig.ID
	}
	if err != nil {
		if !errors.Is(err, ErrExecution) {
			err = fmt.Errorf("%w: %w", ErrExecution, err)
		}
		r.Metrics.ErrorCount++
		e.errors++
		r.Metrics.LastError = err.Error()
		ev.Error = err.Error()
		e.logger.Error("rule action failed", "rule_id", r.ID, "action", string(r.Action.Kind()), "error", err)
	} else {
		r.Metrics.SuccessCount++
		e.logger.Debug("rule triggered", "rule_id", r.ID, "action", string(r.Action.Kind()))
	}

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Name:    eventbus.RuleTriggered,
			Source:  "automation",
			Time:    now,
			Payload: ev,
		})
	}
	return true
}

// checkCondition evaluates the rule's condition, converting panics to errors.
func (e *Engine) checkCondition(r *Rule, sig *signal.Signal, st State) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: condition panicked: %v", ErrExecution, rec)
		}
	}()
	return Evaluate(r.Condition, sig, st)
}

// Rule returns a view of one rule.
func (e *Engine) Rule(id string) (Info, error) {
	r, ok := e.rules.Get(id)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return r.info(), nil
}

// Rules returns views of every rule in registration order.
func (e *Engine) Rules() []Info {
	out := make([]Info, 0, e.rules.Len())
	e.rules.Each(func(_ string, r *Rule) bool {
		out = append(out, r.info())
		return true
	})
	return out
}

// Count returns the number of registered rules.
func (e *Engine) Count() int { return e.rules.Len() }

// Triggered returns the total number of rule firings.
func (e *Engine) Triggered() int64 { return e.triggered }

// Errors returns the total number of condition and action failures. Unlike
// the per-rule counts it survives ResetRule and RemoveRule.
func (e *Engine) Errors() int64 { return e.errors }

// Shutdown drops every rule and script.
func (e *Engine) Shutdown() {
	e.rules.Clear()
	e.scripts = make(map[string]Script)
}
