package eventbus

import (
	"time"

	"github.com/nerrad567/controlnet-core/internal/signal"
)

// Name identifies an event kind.
type Name string

// Events published by the control network.
const (
	NodeRegistered             Name = "nodeRegistered"
	NodeDisconnected           Name = "nodeDisconnected"
	SignalProcessed            Name = "signalProcessed"
	RuleTriggered              Name = "ruleTriggered"
	LoopOutput                 Name = "loopOutput"
	LoopDisabled               Name = "loopDisabled"
	AlarmRaised                Name = "alarmRaised"
	SafetyInterlockTriggered   Name = "safetyInterlockTriggered"
	EmergencyStopActivated     Name = "emergencyStopActivated"
	EmergencyShutdownCompleted Name = "emergencyShutdownCompleted"
	EmergencyModeReset         Name = "emergencyModeReset"
	PermitExpired              Name = "permitExpired"
	RemoteSiteStatusChanged    Name = "remoteSiteStatusChanged"
	HealthChecked              Name = "healthChecked"
)

// AllNames lists every event name in publication-table order.
var AllNames = []Name{
	NodeRegistered,
	NodeDisconnected,
	SignalProcessed,
	RuleTriggered,
	LoopOutput,
	LoopDisabled,
	AlarmRaised,
	SafetyInterlockTriggered,
	EmergencyStopActivated,
	EmergencyShutdownCompleted,
	EmergencyModeReset,
	PermitExpired,
	RemoteSiteStatusChanged,
	HealthChecked,
}

// NodeEvent is the payload of NodeRegistered and NodeDisconnected.
type NodeEvent struct {
	NodeID   string          `json:"node_id"`
	NodeType string          `json:"node_type"`
	Priority signal.Priority `json:"priority"`
	Reason   string          `json:"reason,omitempty"`
}

// SignalEvent is the payload of SignalProcessed.
type SignalEvent struct {
	Signal       signal.Signal `json:"signal"`
	RulesFired   int           `json:"rules_fired"`
	ResponseTime time.Duration `json:"response_time_ns"`
}

// RuleEvent is the payload of RuleTriggered.
type RuleEvent struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Group    string `json:"group,omitempty"`
	Action   string `json:"action"`
	SignalID string `json:"signal_id,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// LoopEvent is the payload of LoopOutput and LoopDisabled.
type LoopEvent struct {
	LoopID          string  `json:"loop_id"`
	LoopType        string  `json:"loop_type"`
	Mode            string  `json:"mode"`
	Setpoint        float64 `json:"setpoint"`
	ProcessVariable float64 `json:"process_variable"`
	Output          float64 `json:"output"`
	Error           float64 `json:"error"`
	Reason          string  `json:"reason,omitempty"`
}

// Alarm severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AlarmEvent is the payload of AlarmRaised.
type AlarmEvent struct {
	AlarmID  string         `json:"alarm_id"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Source   string         `json:"source"`
	Data     map[string]any `json:"data,omitempty"`
}

// InterlockEvent is the payload of SafetyInterlockTriggered.
type InterlockEvent struct {
	InterlockID string `json:"interlock_id"`
	Type        string `json:"type"`
	Action      string `json:"action"`
	Reason      string `json:"reason"`
}

// EmergencyEvent is the payload of EmergencyStopActivated,
// EmergencyShutdownCompleted and EmergencyModeReset.
type EmergencyEvent struct {
	EStopID       string `json:"estop_id,omitempty"`
	Scope         string `json:"scope,omitempty"`
	Reason        string `json:"reason"`
	Operator      string `json:"operator,omitempty"`
	LoopsStopped  int    `json:"loops_stopped,omitempty"`
	InterlocksHit int    `json:"interlocks_triggered,omitempty"`
	SitesNotified int    `json:"sites_notified,omitempty"`
}

// PermitEvent is the payload of PermitExpired.
type PermitEvent struct {
	PermitID string    `json:"permit_id"`
	Holder   string    `json:"holder"`
	Expired  time.Time `json:"expired_at"`
}

// RemoteSiteEvent is the payload of RemoteSiteStatusChanged.
type RemoteSiteEvent struct {
	SiteID   string `json:"site_id"`
	Protocol string `json:"protocol"`
	Previous string `json:"previous"`
	Status   string `json:"status"`
}

// HealthEvent is the payload of HealthChecked.
type HealthEvent struct {
	Mode          string  `json:"mode"`
	NetworkHealth float64 `json:"network_health"`
}
