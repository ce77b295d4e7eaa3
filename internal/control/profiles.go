package control

import (
	"fmt"
	"sort"
)

// Profile is a named parameter set applied by Scheduler.Tune.
type Profile struct {
	Name string
	Type LoopType
	// Apply derives the new parameters from the current ones. Profiles keep
	// settings that describe the process rather than the tuning, such as an
	// on-off threshold or an MPC process gain.
	Apply func(current Parameters) Parameters
}

func pidProfile(name string, kp, ki, kd float64) Profile {
	return Profile{Name: name, Type: TypePID, Apply: func(Parameters) Parameters {
		return PIDParams{Kp: kp, Ki: ki, Kd: kd}
	}}
}

func onOffProfile(name string, hysteresis float64) Profile {
	return Profile{Name: name, Type: TypeOnOff, Apply: func(cur Parameters) Parameters {
		p, _ := cur.(OnOffParams)
		p.Hysteresis = hysteresis
		return p
	}}
}

func mpcProfile(name string, errorWeight, outputWeight float64) Profile {
	return Profile{Name: name, Type: TypeMPC, Apply: func(cur Parameters) Parameters {
		p, _ := cur.(MPCParams)
		p.ErrorWeight = errorWeight
		p.OutputWeight = outputWeight
		if p.Gain == 0 {
			p.Gain = 1
		}
		return p
	}}
}

// builtinProfiles are registered on every new scheduler.
func builtinProfiles() []Profile {
	return []Profile{
		pidProfile("conservative", 0.5, 0.05, 0.01),
		pidProfile("moderate", 1.0, 0.1, 0.05),
		pidProfile("aggressive", 2.0, 0.5, 0.1),
		onOffProfile("tight", 0.01),
		onOffProfile("wide", 0.1),
		mpcProfile("fast", 1.0, 0.01),
		mpcProfile("smooth", 1.0, 0.5),
		{Name: "default", Type: TypeFuzzy, Apply: func(Parameters) Parameters {
			return FuzzyParams{ErrorScale: 1.0}
		}},
	}
}

// profileKey scopes profile names per controller type, so "default" can
// exist once for each.
func profileKey(t LoopType, name string) string {
	return string(t) + "/" + name
}

// RegisterProfile adds or replaces a tuning profile.
func (s *Scheduler) RegisterProfile(p Profile) error {
	if p.Name == "" || p.Apply == nil {
		return fmt.Errorf("%w: profile needs a name and an apply function", ErrInvalidLoop)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: profile %s: %q", ErrUnknownType, p.Name, p.Type)
	}
	s.profiles[profileKey(p.Type, p.Name)] = p
	return nil
}

// Profiles lists the registered profile names per controller type.
func (s *Scheduler) Profiles() map[LoopType][]string {
	out := make(map[LoopType][]string)
	for _, p := range s.profiles {
		out[p.Type] = append(out[p.Type], p.Name)
	}
	for t := range out {
		sort.Strings(out[t])
	}
	return out
}

// lookupProfile finds name for loop type t, reporting ErrProfileMismatch when
// the name only exists for other controller types.
func (s *Scheduler) lookupProfile(t LoopType, name string) (Profile, error) {
	if p, ok := s.profiles[profileKey(t, name)]; ok {
		return p, nil
	}
	for _, p := range s.profiles {
		if p.Name == name {
			return Profile{}, fmt.Errorf("%w: %s is for %s loops, not %s", ErrProfileMismatch, name, p.Type, t)
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
}
