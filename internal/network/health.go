package network

import "github.com/nerrad567/controlnet-core/internal/eventbus"

// Mode is the network's overall operating mode.
type Mode string

const (
	ModeNormal        Mode = "NORMAL"
	ModeDegraded      Mode = "DEGRADED"
	ModeEmergencyStop Mode = "EMERGENCY_STOP"
)

// mode derives the operating mode. Emergency state is read from the safety
// manager so it shows the moment a stop activates.
func (rt *Runtime) mode() Mode {
	switch {
	case rt.safety.InEmergency():
		return ModeEmergencyStop
	case rt.health < rt.cfg.DegradedThreshold:
		return ModeDegraded
	default:
		return ModeNormal
	}
}

// computeHealth scores the network in [0,1] as the mean of the node
// activity ratio, the share of loops not faulted and the share of remote
// sites online. Components with nothing registered do not count.
func (rt *Runtime) computeHealth() float64 {
	var sum float64
	var parts int

	if n := rt.nodes.Count(); n > 0 {
		sum += float64(rt.nodes.ActiveCount()) / float64(n)
		parts++
	}
	if n := rt.loops.Count(); n > 0 {
		sum += 1 - float64(rt.loops.FaultedCount())/float64(n)
		parts++
	}
	if n := rt.remote.Count(); n > 0 {
		sum += float64(rt.remote.OnlineCount()) / float64(n)
		parts++
	}
	if parts == 0 {
		return 1
	}
	return sum / float64(parts)
}

func (rt *Runtime) checkHealth() {
	prev := rt.mode()
	rt.health = rt.computeHealth()
	mode := rt.mode()

	if mode != prev {
		rt.logger.Warn("network mode changed", "previous", string(prev), "mode", string(mode), "health", rt.health)
	} else {
		rt.logger.Debug("health checked", "mode", string(mode), "health", rt.health)
	}
	rt.bus.Publish(eventbus.Event{
		Name:    eventbus.HealthChecked,
		Source:  "network",
		Time:    rt.clock.Now(),
		Payload: eventbus.HealthEvent{Mode: string(mode), NetworkHealth: rt.health},
	})
}
