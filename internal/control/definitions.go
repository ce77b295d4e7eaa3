package control

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// LoopSpec is the declarative form of a loop, as read from the config file
// or posted to the API. Params keys depend on the type:
//
//	PID:    kp, ki, kd
//	ON_OFF: threshold, hysteresis
//	FUZZY:  error_scale
//	MPC:    error_weight, output_weight, gain
type LoopSpec struct {
	ID              string             `yaml:"id" json:"id"`
	Type            string             `yaml:"type" json:"type"`
	Setpoint        float64            `yaml:"setpoint" json:"setpoint"`
	ProcessVariable float64            `yaml:"process_variable" json:"process_variable"`
	Params          map[string]float64 `yaml:"params" json:"params,omitempty"`
	Limits          *Limits            `yaml:"limits" json:"limits,omitempty"`
	Mode            string             `yaml:"mode" json:"mode,omitempty"`
	ExecutionRate   time.Duration      `yaml:"execution_rate" json:"execution_rate,omitempty"`
	Disabled        bool               `yaml:"disabled" json:"disabled,omitempty"`
	Input           *Input             `yaml:"input" json:"input,omitempty"`
	Plant           *Plant             `yaml:"plant" json:"plant,omitempty"`
	Cascade         *Cascade           `yaml:"cascade" json:"cascade,omitempty"`
	Profile         string             `yaml:"profile" json:"profile,omitempty"`
}

// Definition builds the loop definition described by s.
func (s LoopSpec) Definition() (Definition, error) {
	t := LoopType(strings.ToUpper(s.Type))
	params, err := BuildParameters(t, s.Params)
	if err != nil {
		return Definition{}, fmt.Errorf("loop %s: %w", s.ID, err)
	}
	return Definition{
		Type:            t,
		Setpoint:        s.Setpoint,
		ProcessVariable: s.ProcessVariable,
		Params:          params,
		Limits:          s.Limits,
		Mode:            Mode(strings.ToUpper(s.Mode)),
		ExecutionRate:   s.ExecutionRate,
		Disabled:        s.Disabled,
		Input:           s.Input,
		Plant:           s.Plant,
		Cascade:         s.Cascade,
	}, nil
}

// BuildParameters overlays values onto the defaults for t. Unknown keys are
// rejected.
func BuildParameters(t LoopType, values map[string]float64) (Parameters, error) {
	def, err := DefaultParameters(t)
	if err != nil {
		return nil, err
	}
	get := func(key string, dst *float64) {
		if v, ok := values[key]; ok {
			*dst = v
		}
	}
	var known []string
	switch p := def.(type) {
	case PIDParams:
		get("kp", &p.Kp)
		get("ki", &p.Ki)
		get("kd", &p.Kd)
		def, known = p, []string{"kp", "ki", "kd"}
	case OnOffParams:
		get("threshold", &p.Threshold)
		get("hysteresis", &p.Hysteresis)
		def, known = p, []string{"threshold", "hysteresis"}
	case FuzzyParams:
		get("error_scale", &p.ErrorScale)
		def, known = p, []string{"error_scale"}
	case MPCParams:
		get("error_weight", &p.ErrorWeight)
		get("output_weight", &p.OutputWeight)
		get("gain", &p.Gain)
		def, known = p, []string{"error_weight", "output_weight", "gain"}
	}
	for key := range values {
		if !slices.Contains(known, key) {
			return nil, fmt.Errorf("%w: unknown %s parameter %q", ErrInvalidLoop, t, key)
		}
	}
	return def, nil
}
