package network

import (
	"fmt"
	"strings"

	"github.com/nerrad567/controlnet-core/internal/automation"
	"github.com/nerrad567/controlnet-core/internal/routing"
	"github.com/nerrad567/controlnet-core/internal/safety"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

// host is the side-effect surface rule actions and safety hooks reach
// through. Its methods run with the runtime lock already held, so they use
// the components directly and never the locking public API.
type host struct {
	rt *Runtime
}

var (
	_ automation.ActionHost = (*host)(nil)
	_ safety.Actuator       = (*host)(nil)
	_ safety.AlarmRaiser    = (*host)(nil)
)

func (h *host) QueueSignal(signalType string, data map[string]any, source string, priority signal.Priority) error {
	return h.rt.router.Enqueue(signalType, data, source, priority)
}

func (h *host) UpdateSetpoint(loopID string, setpoint float64) error {
	return h.rt.loops.SetSetpoint(loopID, setpoint)
}

func (h *host) RaiseAlarm(severity, message, source string, data map[string]any) error {
	_, err := h.rt.raiseAlarm(severity, message, source, data)
	return err
}

func (h *host) SystemControl(cmd automation.SystemCommand, target, reason string) error {
	rt := h.rt
	switch cmd {
	case automation.CommandEmergencyStop:
		if target == "" {
			target = rt.cfg.DefaultEStop
			if target == "" {
				target = safety.DefaultEStopID
			}
		}
		_, err := rt.safety.ActivateEmergencyStop(target, reason)
		return err
	case automation.CommandResetEmergency:
		return rt.safety.ResetEmergencyMode(DefaultEmergencyOperator, reason)
	case automation.CommandEnableLoop:
		return rt.loops.Enable(target)
	case automation.CommandDisableLoop:
		return rt.loops.Disable(target, reason)
	case automation.CommandDisableAllLoops:
		rt.loops.DisableAll(reason)
		return nil
	case automation.CommandSweepStaleNodes:
		rt.nodes.SweepStale(rt.cfg.StaleThreshold)
		return nil
	}
	return fmt.Errorf("%w: system command %q", ErrUnknownType, cmd)
}

// Actuate announces a protective action as a SYSTEM-priority signal. It is
// routed once the current operation finishes, so rules can react to it even
// during an emergency.
func (h *host) Actuate(action safety.Action, interlockID, reason string) error {
	return h.rt.router.Enqueue(actuationSignal(action), map[string]any{
		"action":       string(action),
		"interlock_id": interlockID,
		"reason":       reason,
	}, routing.SystemSource, signal.PrioritySystem)
}

// actuationSignal is the signal type a protective action is announced as.
func actuationSignal(action safety.Action) string {
	return "safety." + strings.ToLower(string(action))
}
