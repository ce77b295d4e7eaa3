// Package safety holds the network's interlocks and emergency stops and runs
// the emergency cascade.
//
// A critical interlock performs its fixed protective action and escalates to
// the default global emergency stop. Activating an emergency stop disables
// every control loop with zero output, triggers every enabled critical
// interlock and, for GLOBAL scope, broadcasts to remote sites. Only an
// explicit ResetEmergencyMode returns the system to ARMED.
package safety

import (
	"fmt"
	"time"

	"github.com/nerrad567/controlnet-core/internal/arena"
	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/eventbus"
)

// Logger defines the logging interface used by the Manager.
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

// Publisher is the part of the event bus the manager needs.
type Publisher interface {
	Publish(ev eventbus.Event)
}

// LoopController stops control loops.
type LoopController interface {
	// DisableAll disables every loop with zero output and returns how many
	// were stopped.
	DisableAll(reason string) int
}

// Actuator carries out a protective action on the plant.
type Actuator interface {
	Actuate(action Action, interlockID, reason string) error
}

// AlarmRaiser raises operator alarms.
type AlarmRaiser interface {
	RaiseAlarm(severity, message, source string, data map[string]any) error
}

// Broadcaster notifies remote collaborators of a global emergency.
type Broadcaster interface {
	// BroadcastEmergency returns the number of sites notified.
	BroadcastEmergency(reason string) int
}

// Hooks are the collaborators the cascade drives. Nil hooks are skipped.
type Hooks struct {
	Loops    LoopController
	Actuator Actuator
	Alarms   AlarmRaiser
	Remote   Broadcaster
}

// DefaultEStopID names the emergency stop used for escalations.
const DefaultEStopID = "main"

// Config holds manager settings.
type Config struct {
	// DefaultEStop is activated when a critical interlock or alarm
	// escalates. When absent the first GLOBAL stop is used.
	DefaultEStop string
}

// Manager owns interlocks, emergency stops and permits.
//
// Manager holds no locks. The network runtime serialises every call.
type Manager struct {
	interlocks *arena.Keyed[*Interlock]
	estops     *arena.Keyed[*EmergencyStop]
	permits    *arena.Keyed[*Permit]
	status     Status
	cfg        Config
	hooks      Hooks
	clock      clock.Clock
	bus        Publisher
	logger     Logger

	cascading bool
}

// NewManager creates an armed manager with no interlocks or stops.
func NewManager(cfg Config, clk clock.Clock, bus Publisher, hooks Hooks) *Manager {
	if cfg.DefaultEStop == "" {
		cfg.DefaultEStop = DefaultEStopID
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{
		interlocks: arena.NewKeyed[*Interlock](),
		estops:     arena.NewKeyed[*EmergencyStop](),
		permits:    arena.NewKeyed[*Permit](),
		status:     StatusArmed,
		cfg:        cfg,
		hooks:      hooks,
		clock:      clk,
		bus:        bus,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// SetHooks replaces the cascade collaborators.
func (m *Manager) SetHooks(h Hooks) { m.hooks = h }

// AddInterlock registers an interlock. Enabled is taken from il as given.
func (m *Manager) AddInterlock(il Interlock) error {
	if il.ID == "" {
		return fmt.Errorf("%w: interlock needs an id", ErrInvalidDefinition)
	}
	if il.Type != InterlockCritical && il.Type != InterlockWarning {
		return fmt.Errorf("%w: interlock type %q", ErrUnknownType, il.Type)
	}
	if !il.Action.Valid() {
		return fmt.Errorf("%w: interlock action %q", ErrUnknownType, il.Action)
	}
	if il.Condition != nil && il.Condition.Field != "" && !il.Condition.Operator.Valid() {
		return fmt.Errorf("%w: interlock %s operator %q", ErrUnknownType, il.ID, il.Condition.Operator)
	}
	cpy := il
	cpy.Triggered = false
	cpy.TriggerCount = 0
	if il.Condition != nil {
		c := *il.Condition
		cpy.Condition = &c
	}
	if cpy.Name == "" {
		cpy.Name = cpy.ID
	}
	if _, ok := m.interlocks.Add(il.ID, &cpy); !ok {
		return fmt.Errorf("%w: interlock %s", ErrAlreadyRegistered, il.ID)
	}
	m.logger.Info("safety interlock added", "interlock_id", il.ID, "type", string(il.Type), "action", string(il.Action))
	return nil
}

// RemoveInterlock deletes an interlock. It returns false if absent.
func (m *Manager) RemoveInterlock(id string) bool {
	_, ok := m.interlocks.Remove(id)
	return ok
}

// SetInterlockEnabled enables or disables an interlock.
func (m *Manager) SetInterlockEnabled(id string, enabled bool) error {
	il, ok := m.interlocks.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInterlockNotFound, id)
	}
	il.Enabled = enabled
	return nil
}

// AddEmergencyStop registers an emergency stop.
func (m *Manager) AddEmergencyStop(es EmergencyStop) error {
	if es.ID == "" {
		return fmt.Errorf("%w: emergency stop needs an id", ErrInvalidDefinition)
	}
	if es.Scope == "" {
		es.Scope = ScopeGlobal
	}
	if es.Scope != ScopeGlobal && es.Scope != ScopeLocal {
		return fmt.Errorf("%w: scope %q", ErrUnknownType, es.Scope)
	}
	cpy := es
	cpy.Activated = false
	cpy.ActivationCount = 0
	if cpy.Name == "" {
		cpy.Name = cpy.ID
	}
	if _, ok := m.estops.Add(es.ID, &cpy); !ok {
		return fmt.Errorf("%w: emergency stop %s", ErrAlreadyRegistered, es.ID)
	}
	return nil
}

// Trigger fires an interlock. A critical interlock performs its action and,
// unless the system is already stopped, escalates to the default emergency
// stop. A warning interlock raises a warning alarm.
func (m *Manager) Trigger(id, reason string) error {
	il, ok := m.interlocks.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInterlockNotFound, id)
	}
	if !il.Enabled {
		return fmt.Errorf("%w: %s", ErrInterlockDisabled, id)
	}
	m.trigger(il, reason)

	if il.Type == InterlockCritical && m.status != StatusEmergencyStop && !m.cascading {
		estop := m.escalationTarget()
		if estop == "" {
			m.logger.Error("critical interlock has no emergency stop to escalate to",
				"interlock_id", id,
				"severity", "critical",
			)
			return nil
		}
		if _, err := m.ActivateEmergencyStop(estop, fmt.Sprintf("interlock %s: %s", id, reason)); err != nil {
			return fmt.Errorf("escalating interlock %s: %w", id, err)
		}
	}
	return nil
}

// trigger latches the interlock and performs its action without escalating.
func (m *Manager) trigger(il *Interlock, reason string) {
	now := m.clock.Now()
	il.Triggered = true
	il.TriggerCount++
	il.LastTriggered = now
	il.LastReason = reason

	if il.Type == InterlockCritical {
		m.logger.Error("safety interlock triggered",
			"interlock_id", il.ID,
			"action", string(il.Action),
			"reason", reason,
			"severity", "critical",
		)
	} else {
		m.logger.Warn("safety interlock triggered",
			"interlock_id", il.ID,
			"action", string(il.Action),
			"reason", reason,
			"severity", "warning",
		)
	}

	m.perform(il, reason)

	m.publish(eventbus.SafetyInterlockTriggered, eventbus.InterlockEvent{
		InterlockID: il.ID,
		Type:        string(il.Type),
		Action:      string(il.Action),
		Reason:      reason,
	})
}

func (m *Manager) perform(il *Interlock, reason string) {
	var err error
	switch il.Action {
	case ActionStopAllProcesses:
		if m.hooks.Loops != nil {
			m.hooks.Loops.DisableAll("interlock " + il.ID)
		}
		if m.hooks.Actuator != nil {
			err = m.hooks.Actuator.Actuate(il.Action, il.ID, reason)
		}
	case ActionEmergencyCooling, ActionVentToAtmosphere:
		if m.hooks.Actuator != nil {
			err = m.hooks.Actuator.Actuate(il.Action, il.ID, reason)
		}
	case ActionAlertOperator:
		if m.hooks.Alarms != nil {
			err = m.hooks.Alarms.RaiseAlarm(eventbus.SeverityWarning,
				fmt.Sprintf("interlock %s: %s", il.Name, reason),
				"interlock:"+il.ID, nil)
		}
	}
	if err != nil {
		m.logger.Error("interlock action failed",
			"interlock_id", il.ID,
			"action", string(il.Action),
			"error", err,
		)
	}
}

func (m *Manager) escalationTarget() string {
	if _, ok := m.estops.Get(m.cfg.DefaultEStop); ok {
		return m.cfg.DefaultEStop
	}
	target := ""
	m.estops.Each(func(id string, es *EmergencyStop) bool {
		if es.Scope == ScopeGlobal {
			target = id
			return false
		}
		return true
	})
	return target
}

// ActivateEmergencyStop runs the emergency cascade. Every control loop is
// disabled with zero output before it returns.
func (m *Manager) ActivateEmergencyStop(id, reason string) (ActivationReport, error) {
	es, ok := m.estops.Get(id)
	if !ok {
		return ActivationReport{}, fmt.Errorf("%w: %s", ErrEStopNotFound, id)
	}

	m.cascading = true
	defer func() { m.cascading = false }()

	now := m.clock.Now()
	es.Activated = true
	es.ActivationCount++
	es.LastActivated = now
	es.LastReason = reason
	m.status = StatusEmergencyStop

	m.logger.Error("emergency stop activated",
		"estop_id", id,
		"scope", string(es.Scope),
		"reason", reason,
		"severity", "critical",
	)
	m.publish(eventbus.EmergencyStopActivated, eventbus.EmergencyEvent{
		EStopID: id,
		Scope:   string(es.Scope),
		Reason:  reason,
	})

	report := ActivationReport{EStopID: id, Scope: es.Scope}
	if m.hooks.Loops != nil {
		report.LoopsStopped = m.hooks.Loops.DisableAll("emergency stop " + id)
	}

	var critical []*Interlock
	m.interlocks.Each(func(_ string, il *Interlock) bool {
		if il.Enabled && il.Type == InterlockCritical {
			critical = append(critical, il)
		}
		return true
	})
	for _, il := range critical {
		m.trigger(il, "emergency stop "+id)
		report.InterlocksTriggered++
	}

	if es.Scope == ScopeGlobal && m.hooks.Remote != nil {
		report.SitesNotified = m.hooks.Remote.BroadcastEmergency(reason)
	}

	m.publish(eventbus.EmergencyShutdownCompleted, eventbus.EmergencyEvent{
		EStopID:       id,
		Scope:         string(es.Scope),
		Reason:        reason,
		LoopsStopped:  report.LoopsStopped,
		InterlocksHit: report.InterlocksTriggered,
		SitesNotified: report.SitesNotified,
	})
	return report, nil
}

// ResetEmergencyMode clears every activated stop and triggered interlock and
// returns the system to ARMED. Loops stay disabled until re-enabled.
func (m *Manager) ResetEmergencyMode(operator, reason string) error {
	if m.status != StatusEmergencyStop {
		return ErrNotInEmergencyMode
	}
	m.estops.Each(func(_ string, es *EmergencyStop) bool {
		es.Activated = false
		return true
	})
	m.interlocks.Each(func(_ string, il *Interlock) bool {
		il.Triggered = false
		return true
	})
	m.status = StatusArmed

	m.logger.Warn("emergency mode reset", "operator", operator, "reason", reason)
	m.publish(eventbus.EmergencyModeReset, eventbus.EmergencyEvent{
		Reason:   reason,
		Operator: operator,
	})
	return nil
}

// Status returns the overall safety state.
func (m *Manager) Status() Status { return m.status }

// InEmergency reports whether the system is in emergency mode.
func (m *Manager) InEmergency() bool { return m.status == StatusEmergencyStop }

// Interlock returns a copy of one interlock.
func (m *Manager) Interlock(id string) (Interlock, error) {
	il, ok := m.interlocks.Get(id)
	if !ok {
		return Interlock{}, fmt.Errorf("%w: %s", ErrInterlockNotFound, id)
	}
	return copyInterlock(il), nil
}

// EmergencyStop returns a copy of one emergency stop.
func (m *Manager) EmergencyStop(id string) (EmergencyStop, error) {
	es, ok := m.estops.Get(id)
	if !ok {
		return EmergencyStop{}, fmt.Errorf("%w: %s", ErrEStopNotFound, id)
	}
	return *es, nil
}

// Snapshot returns the safety state.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{Status: m.status}
	m.interlocks.Each(func(_ string, il *Interlock) bool {
		snap.Interlocks = append(snap.Interlocks, copyInterlock(il))
		return true
	})
	m.estops.Each(func(_ string, es *EmergencyStop) bool {
		snap.EmergencyStops = append(snap.EmergencyStops, *es)
		return true
	})
	m.permits.Each(func(_ string, p *Permit) bool {
		if p.Status == PermitActive {
			snap.ActivePermits++
		}
		return true
	})
	return snap
}

func copyInterlock(il *Interlock) Interlock {
	cpy := *il
	if il.Condition != nil {
		c := *il.Condition
		cpy.Condition = &c
	}
	return cpy
}

// Shutdown drops every interlock, stop and permit.
func (m *Manager) Shutdown() {
	m.interlocks.Clear()
	m.estops.Clear()
	m.permits.Clear()
}

func (m *Manager) publish(name eventbus.Name, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Name:    name,
		Source:  "safety",
		Time:    m.clock.Now(),
		Payload: payload,
	})
}

// now is used by permits.
func (m *Manager) now() time.Time { return m.clock.Now() }
