package network

import (
	"time"

	"github.com/nerrad567/controlnet-core/internal/automation"
	"github.com/nerrad567/controlnet-core/internal/control"
	"github.com/nerrad567/controlnet-core/internal/remote"
	"github.com/nerrad567/controlnet-core/internal/safety"
)

// Defaults.
const (
	DefaultTickInterval      = 10 * time.Millisecond
	DefaultRuleTickInterval  = time.Second
	DefaultHealthInterval    = 30 * time.Second
	DefaultSweepInterval     = 5 * time.Minute
	DefaultStaleThreshold    = 5 * time.Minute
	DefaultPermitSweep       = time.Minute
	DefaultMaxAlarms         = 500
	DefaultDegradedThreshold = 0.7
	DefaultEmergencyOperator = "automation"
)

// Config holds runtime settings. Zero values select the defaults.
type Config struct {
	MaxNodes        int
	RateLimitMax    int
	RateLimitWindow time.Duration

	// TickInterval is the base cadence Run drives Tick at. Loops execute on
	// it when their own execution rate has elapsed.
	TickInterval     time.Duration
	RuleTickInterval time.Duration
	HealthInterval   time.Duration
	SweepInterval    time.Duration
	StaleThreshold   time.Duration
	PermitSweep      time.Duration

	RuleEvaluationInterval time.Duration
	HistorySize            int
	MaxSignalDepth         int

	// DegradedThreshold is the health score below which the mode is
	// DEGRADED.
	DegradedThreshold float64
	MaxAlarms         int

	DefaultEStop   string
	RemoteTimeout  time.Duration
	RemoteTopic    string
	Rules          []automation.RuleSpec
	Loops          []control.LoopSpec
	Interlocks     []safety.InterlockSpec
	EmergencyStops []safety.EmergencyStopSpec
	RemoteSites    []remote.Site

	// NoDefaultSafety skips seeding the built-in interlocks and emergency
	// stop when none are configured.
	NoDefaultSafety bool
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.RuleTickInterval <= 0 {
		c.RuleTickInterval = DefaultRuleTickInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = DefaultStaleThreshold
	}
	if c.PermitSweep <= 0 {
		c.PermitSweep = DefaultPermitSweep
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = DefaultDegradedThreshold
	}
	if c.MaxAlarms <= 0 {
		c.MaxAlarms = DefaultMaxAlarms
	}
	return c
}
