package safety

import (
	"fmt"

	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

// CheckSignal evaluates every enabled, untriggered interlock condition
// against sig and triggers those that match. It returns the IDs triggered.
//
// Critical interlocks latch until the emergency mode is reset. A triggered
// warning interlock re-arms once a signal of its type no longer matches, so
// each new excursion alerts again.
func (m *Manager) CheckSignal(sig signal.Signal) []string {
	var matched []*Interlock
	m.interlocks.Each(func(_ string, il *Interlock) bool {
		if !il.Enabled || il.Condition == nil {
			return true
		}
		if il.Triggered && il.Type != InterlockWarning {
			return true
		}
		ok, err := il.Condition.Matches(sig)
		if err != nil {
			m.logger.Warn("interlock condition failed", "interlock_id", il.ID, "error", err)
			return true
		}
		switch {
		case !il.Triggered && ok:
			matched = append(matched, il)
		case il.Triggered && !ok && observes(il.Condition, sig):
			il.Triggered = false
			m.logger.Info("safety interlock cleared", "interlock_id", il.ID, "severity", "warning")
		}
		return true
	})

	ids := make([]string, 0, len(matched))
	for _, il := range matched {
		// An earlier trigger may have cascaded into this one.
		if il.Triggered {
			continue
		}
		reason := describe(il.Condition, sig)
		if err := m.Trigger(il.ID, reason); err != nil {
			m.logger.Error("interlock trigger failed", "interlock_id", il.ID, "error", err)
			continue
		}
		ids = append(ids, il.ID)
	}
	return ids
}

// observes reports whether sig carries the reading the condition watches.
func observes(c *Condition, sig signal.Signal) bool {
	if c.SignalType != sig.Type || c.Field == "" {
		return false
	}
	_, ok := sig.Number(c.Field)
	return ok
}

func describe(c *Condition, sig signal.Signal) string {
	if c.Field == "" {
		return fmt.Sprintf("signal %s from %s", sig.Type, sig.Source)
	}
	v, _ := sig.Number(c.Field)
	return fmt.Sprintf("%s.%s=%g %s %g", sig.Type, c.Field, v, c.Operator, c.Threshold)
}

// HandleAlarm reacts to a raised alarm. A critical alarm outside emergency
// mode activates the default emergency stop.
func (m *Manager) HandleAlarm(a eventbus.AlarmEvent) {
	if a.Severity != eventbus.SeverityCritical || m.InEmergency() {
		return
	}
	target := m.escalationTarget()
	if target == "" {
		m.logger.Error("critical alarm with no emergency stop configured", "alarm_id", a.AlarmID)
		return
	}
	if _, err := m.ActivateEmergencyStop(target, "critical alarm: "+a.Message); err != nil {
		m.logger.Error("critical alarm escalation failed", "alarm_id", a.AlarmID, "error", err)
	}
}

// Attach subscribes the manager to routed signals and raised alarms. The
// returned subscriptions can be passed to Unsubscribe on shutdown.
func (m *Manager) Attach(bus *eventbus.Bus) []eventbus.Subscription {
	return []eventbus.Subscription{
		bus.Subscribe(eventbus.SignalProcessed, func(ev eventbus.Event) {
			if p, ok := ev.Payload.(eventbus.SignalEvent); ok {
				m.CheckSignal(p.Signal)
			}
		}),
		bus.Subscribe(eventbus.AlarmRaised, func(ev eventbus.Event) {
			if p, ok := ev.Payload.(eventbus.AlarmEvent); ok {
				m.HandleAlarm(p)
			}
		}),
	}
}
