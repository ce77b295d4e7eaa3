package safety

import (
	"fmt"
	"strings"

	"github.com/nerrad567/controlnet-core/internal/signal"
)

// InterlockSpec is the declarative form of an interlock as it appears in
// configuration files.
type InterlockSpec struct {
	ID        string  `yaml:"id" json:"id"`
	Name      string  `yaml:"name" json:"name"`
	Type      string  `yaml:"type" json:"type"`
	Action    string  `yaml:"action" json:"action"`
	Disabled  bool    `yaml:"disabled" json:"disabled"`
	Signal    string  `yaml:"signal_type" json:"signal_type"`
	Field     string  `yaml:"field" json:"field"`
	Operator  string  `yaml:"operator" json:"operator"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// Interlock builds the runtime interlock.
func (s InterlockSpec) Interlock() (Interlock, error) {
	il := Interlock{
		ID:      s.ID,
		Name:    s.Name,
		Type:    InterlockType(strings.ToUpper(s.Type)),
		Action:  Action(strings.ToUpper(s.Action)),
		Enabled: !s.Disabled,
	}
	if s.Signal != "" {
		c := &Condition{SignalType: s.Signal, Field: s.Field, Threshold: s.Threshold}
		if s.Field != "" {
			c.Operator = signal.Operator(s.Operator)
			if !c.Operator.Valid() {
				return Interlock{}, fmt.Errorf("%w: interlock %s operator %q", ErrUnknownType, s.ID, s.Operator)
			}
		}
		il.Condition = c
	}
	return il, nil
}

// EmergencyStopSpec is the declarative form of an emergency stop.
type EmergencyStopSpec struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Scope string `yaml:"scope" json:"scope"`
}

// EmergencyStop builds the runtime emergency stop.
func (s EmergencyStopSpec) EmergencyStop() EmergencyStop {
	return EmergencyStop{ID: s.ID, Name: s.Name, Scope: Scope(strings.ToUpper(s.Scope))}
}

// DefaultInterlocks are seeded when configuration names none.
func DefaultInterlocks() []Interlock {
	return []Interlock{
		{
			ID:      "high-pressure",
			Name:    "High pressure",
			Type:    InterlockCritical,
			Action:  ActionVentToAtmosphere,
			Enabled: true,
			Condition: &Condition{
				SignalType: "pressure",
				Field:      "value",
				Operator:   signal.OpGreater,
				Threshold:  10,
			},
		},
		{
			ID:      "over-temperature",
			Name:    "Over temperature",
			Type:    InterlockCritical,
			Action:  ActionEmergencyCooling,
			Enabled: true,
			Condition: &Condition{
				SignalType: "temperature",
				Field:      "value",
				Operator:   signal.OpGreater,
				Threshold:  90,
			},
		},
		{
			ID:        "system-fault",
			Name:      "System fault",
			Type:      InterlockCritical,
			Action:    ActionStopAllProcesses,
			Enabled:   true,
			Condition: &Condition{SignalType: "fault"},
		},
		{
			ID:      "low-flow",
			Name:    "Low flow",
			Type:    InterlockWarning,
			Action:  ActionAlertOperator,
			Enabled: true,
			Condition: &Condition{
				SignalType: "flow",
				Field:      "value",
				Operator:   signal.OpLess,
				Threshold:  0.1,
			},
		},
	}
}

// DefaultEmergencyStops are seeded when configuration names none.
func DefaultEmergencyStops() []EmergencyStop {
	return []EmergencyStop{
		{ID: DefaultEStopID, Name: "Main emergency stop", Scope: ScopeGlobal},
	}
}

// Seed adds interlocks and stops, returning the first error.
func (m *Manager) Seed(interlocks []Interlock, estops []EmergencyStop) error {
	for _, il := range interlocks {
		if err := m.AddInterlock(il); err != nil {
			return err
		}
	}
	for _, es := range estops {
		if err := m.AddEmergencyStop(es); err != nil {
			return err
		}
	}
	return nil
}
