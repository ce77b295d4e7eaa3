package node

import (
	"slices"
	"time"

	"github.com/nerrad567/controlnet-core/internal/signal"
)

// Type classifies a node.
type Type string

// Node types. The set is closed.
const (
	TypeUser             Type = "USER"
	TypeWorker           Type = "WORKER"
	TypeTriggerProcessor Type = "TRIGGER_PROCESSOR"
)

// Valid reports whether t is one of the known node types.
func (t Type) Valid() bool {
	switch t {
	case TypeUser, TypeWorker, TypeTriggerProcessor:
		return true
	}
	return false
}

// Status is the connection state of a node.
type Status string

const (
	StatusActive       Status = "ACTIVE"
	StatusIdle         Status = "IDLE"
	StatusDisconnected Status = "DISCONNECTED"
)

// Metrics are per-node counters.
type Metrics struct {
	SignalsProcessed int64         `json:"signals_processed"`
	Errors           int64         `json:"errors"`
	AvgLatency       time.Duration `json:"avg_latency_ns"`
}

// Node is a logical signal source tracked by the registry.
type Node struct {
	ID           string          `json:"id"`
	Type         Type            `json:"type"`
	Status       Status          `json:"status"`
	Priority     signal.Priority `json:"priority"`
	Weight       float64         `json:"weight"`
	RegisteredAt time.Time       `json:"registered_at"`
	LastActivity time.Time       `json:"last_activity"`

	// Capabilities is kept sorted and free of duplicates.
	Capabilities []string       `json:"capabilities,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Metrics      Metrics        `json:"metrics"`
}

// HasCapability reports whether the node advertises capability c.
func (n *Node) HasCapability(c string) bool {
	_, found := slices.BinarySearch(n.Capabilities, c)
	return found
}

// DeepCopy returns an independent copy of the node.
func (n *Node) DeepCopy() *Node {
	if n == nil {
		return nil
	}
	cpy := *n
	if n.Capabilities != nil {
		cpy.Capabilities = slices.Clone(n.Capabilities)
	}
	cpy.Attributes = signal.CloneData(n.Attributes)
	return &cpy
}

// Metadata carries optional registration settings. Zero fields fall back to
// the defaults for the node type.
type Metadata struct {
	Priority     signal.Priority `json:"priority,omitempty" yaml:"priority"`
	Weight       float64         `json:"weight,omitempty" yaml:"weight"`
	Capabilities []string        `json:"capabilities,omitempty" yaml:"capabilities"`
	Attributes   map[string]any  `json:"attributes,omitempty" yaml:"attributes"`
}

type typeDefaults struct {
	priority signal.Priority
	weight   float64
}

var defaultsByType = map[Type]typeDefaults{
	TypeUser:             {priority: signal.PriorityNormal, weight: 1.0},
	TypeWorker:           {priority: signal.PriorityHigh, weight: 1.5},
	TypeTriggerProcessor: {priority: signal.PriorityCritical, weight: 2.0},
}

// normaliseCapabilities sorts and de-duplicates a capability list.
func normaliseCapabilities(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
