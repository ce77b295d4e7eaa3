package network

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/controlnet-core/internal/eventbus"
)

// Alarm is a raised operator alarm.
type Alarm struct {
	ID             string         `json:"id"`
	Severity       string         `json:"severity"`
	Message        string         `json:"message"`
	Source         string         `json:"source"`
	Data           map[string]any `json:"data,omitempty"`
	RaisedAt       time.Time      `json:"raised_at"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt time.Time      `json:"acknowledged_at,omitzero"`
}

// alarmLog keeps the most recent alarms, oldest first.
type alarmLog struct {
	items []Alarm
	max   int
	total int64
}

func newAlarmLog(limit int) *alarmLog {
	return &alarmLog{max: limit}
}

func (l *alarmLog) add(a Alarm) {
	l.items = append(l.items, a)
	l.total++
	if over := len(l.items) - l.max; over > 0 {
		l.items = append(l.items[:0:0], l.items[over:]...)
	}
}

// recent returns up to limit alarms, newest first. limit <= 0 returns all.
func (l *alarmLog) recent(limit int) []Alarm {
	n := len(l.items)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Alarm, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.items[i])
	}
	return out
}

func (l *alarmLog) find(id string) *Alarm {
	for i := range l.items {
		if l.items[i].ID == id {
			return &l.items[i]
		}
	}
	return nil
}

func validSeverity(s string) bool {
	switch s {
	case eventbus.SeverityInfo, eventbus.SeverityWarning, eventbus.SeverityCritical:
		return true
	}
	return false
}

// raiseAlarm records and publishes an alarm. Called with the lock held.
// Publishing a critical alarm lets the safety manager escalate it.
func (rt *Runtime) raiseAlarm(severity, message, source string, data map[string]any) (Alarm, error) {
	if severity == "" {
		severity = eventbus.SeverityWarning
	}
	if !validSeverity(severity) {
		return Alarm{}, fmt.Errorf("%w: alarm severity %q", ErrUnknownType, severity)
	}
	a := Alarm{
		ID:       uuid.NewString(),
		Severity: severity,
		Message:  message,
		Source:   source,
		Data:     data,
		RaisedAt: rt.clock.Now(),
	}
	rt.alarms.add(a)

	args := []any{"alarm_id", a.ID, "source", source, "severity", severity}
	switch severity {
	case eventbus.SeverityCritical:
		rt.logger.Error(message, args...)
	case eventbus.SeverityWarning:
		rt.logger.Warn(message, args...)
	default:
		rt.logger.Info(message, args...)
	}

	rt.bus.Publish(eventbus.Event{
		Name:   eventbus.AlarmRaised,
		Source: source,
		Time:   a.RaisedAt,
		Payload: eventbus.AlarmEvent{
			AlarmID:  a.ID,
			Severity: severity,
			Message:  message,
			Source:   source,
			Data:     data,
		},
	})
	return a, nil
}

// RaiseAlarm records an operator alarm. A critical alarm outside emergency
// mode activates the default emergency stop.
func (rt *Runtime) RaiseAlarm(severity, message, source string, data map[string]any) (Alarm, error) {
	unlock := rt.lock()
	defer unlock()
	if rt.closed {
		return Alarm{}, ErrClosed
	}
	return rt.raiseAlarm(severity, message, source, data)
}

// Alarms returns up to limit recent alarms, newest first.
func (rt *Runtime) Alarms(limit int) []Alarm {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.alarms.recent(limit)
}

// AcknowledgeAlarm marks an alarm as seen by operator.
func (rt *Runtime) AcknowledgeAlarm(id, operator string) (Alarm, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	a := rt.alarms.find(id)
	if a == nil {
		return Alarm{}, fmt.Errorf("alarm %s: %w", id, ErrNotFound)
	}
	if !a.Acknowledged {
		a.Acknowledged = true
		a.AcknowledgedBy = operator
		a.AcknowledgedAt = rt.clock.Now()
	}
	return *a, nil
}
