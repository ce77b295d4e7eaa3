package safety

import (
	"time"

	"github.com/nerrad567/controlnet-core/internal/signal"
)

// InterlockType is the severity class of an interlock.
type InterlockType string

const (
	InterlockCritical InterlockType = "CRITICAL"
	InterlockWarning  InterlockType = "WARNING"
)

// Action is the protective action an interlock performs.
type Action string

// Interlock actions. The first three are the fixed critical actions.
const (
	ActionStopAllProcesses Action = "STOP_ALL_PROCESSES"
	ActionEmergencyCooling Action = "EMERGENCY_COOLING"
	ActionVentToAtmosphere Action = "VENT_TO_ATMOSPHERE"
	ActionAlertOperator    Action = "ALERT_OPERATOR"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionStopAllProcesses, ActionEmergencyCooling, ActionVentToAtmosphere, ActionAlertOperator:
		return true
	}
	return false
}

// Critical reports whether a is one of the fixed critical actions.
func (a Action) Critical() bool {
	return a == ActionStopAllProcesses || a == ActionEmergencyCooling || a == ActionVentToAtmosphere
}

// Condition trips an interlock from routed signals. An empty Field matches on
// signal type alone.
type Condition struct {
	SignalType string          `json:"signal_type" yaml:"signal_type"`
	Field      string          `json:"field,omitempty" yaml:"field"`
	Operator   signal.Operator `json:"operator,omitempty" yaml:"operator"`
	Threshold  float64         `json:"threshold,omitempty" yaml:"threshold"`
}

// Matches reports whether sig trips the condition.
func (c Condition) Matches(sig signal.Signal) (bool, error) {
	if c.SignalType != sig.Type {
		return false, nil
	}
	if c.Field == "" {
		return true, nil
	}
	v, ok := sig.Number(c.Field)
	if !ok {
		return false, nil
	}
	return c.Operator.Compare(v, c.Threshold)
}

// Interlock is a protective condition/action pair. Triggered latches until
// the emergency mode is reset, or for a warning interlock until a signal shows
// its condition has cleared.
type Interlock struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Type          InterlockType `json:"type"`
	Condition     *Condition    `json:"condition,omitempty"`
	Action        Action        `json:"action"`
	Enabled       bool          `json:"enabled"`
	Triggered     bool          `json:"triggered"`
	TriggerCount  int64         `json:"trigger_count"`
	LastTriggered time.Time     `json:"last_triggered,omitzero"`
	LastReason    string        `json:"last_reason,omitempty"`
}

// Scope is the reach of an emergency stop.
type Scope string

const (
	ScopeGlobal Scope = "GLOBAL"
	ScopeLocal  Scope = "LOCAL"
)

// EmergencyStop is an operator or cascade-activated stop switch.
type EmergencyStop struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Scope           Scope     `json:"scope"`
	Activated       bool      `json:"activated"`
	ActivationCount int64     `json:"activation_count"`
	LastActivated   time.Time `json:"last_activated,omitzero"`
	LastReason      string    `json:"last_reason,omitempty"`
}

// Status is the overall safety state.
type Status string

const (
	StatusArmed         Status = "ARMED"
	StatusEmergencyStop Status = "EMERGENCY_STOP"
)

// PermitStatus is the state of a work permit.
type PermitStatus string

const (
	PermitActive  PermitStatus = "ACTIVE"
	PermitExpired PermitStatus = "EXPIRED"
	PermitRevoked PermitStatus = "REVOKED"
)

// Permit is a time-bounded work authorisation. Expiry changes its status; the
// record is kept.
type Permit struct {
	ID        string       `json:"id"`
	Holder    string       `json:"holder"`
	Scope     string       `json:"scope"`
	IssuedAt  time.Time    `json:"issued_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Status    PermitStatus `json:"status"`
}

// ActivationReport summarises an emergency stop cascade.
type ActivationReport struct {
	EStopID             string `json:"estop_id"`
	Scope               Scope  `json:"scope"`
	LoopsStopped        int    `json:"loops_stopped"`
	InterlocksTriggered int    `json:"interlocks_triggered"`
	SitesNotified       int    `json:"sites_notified"`
}

// Snapshot is the safety state for status queries.
type Snapshot struct {
	Status         Status          `json:"status"`
	Interlocks     []Interlock     `json:"interlocks"`
	EmergencyStops []EmergencyStop `json:"emergency_stops"`
	ActivePermits  int             `json:"active_permits"`
}
