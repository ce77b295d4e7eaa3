// Package signal defines the typed, timestamped event a node submits to the
// control network. Signals are immutable once stamped and never persisted.
package signal

import (
	"strconv"
	"time"
)

// Priority orders signals and nodes. Higher values are more urgent.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
	PrioritySystem   Priority = 5
)

// String returns the upper-case priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	case PrioritySystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority converts a priority name to a Priority.
// The second result is false for unrecognised names.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "LOW", "low":
		return PriorityLow, true
	case "NORMAL", "normal":
		return PriorityNormal, true
	case "HIGH", "high":
		return PriorityHigh, true
	case "CRITICAL", "critical":
		return PriorityCritical, true
	case "SYSTEM", "system":
		return PrioritySystem, true
	default:
		return 0, false
	}
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts a priority name or its numeric value.
func (p *Priority) UnmarshalText(b []byte) error {
	if v, ok := ParsePriority(string(b)); ok {
		*p = v
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*p = Priority(n)
	return nil
}

// Signal is a stamped event from a registered node.
type Signal struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Priority  Priority       `json:"priority"`
}

// Number extracts a numeric field from the signal payload.
// Integer and float payload values are accepted; anything else reports false.
func (s Signal) Number(field string) (float64, bool) {
	if s.Data == nil {
		return 0, false
	}
	return ToFloat(s.Data[field])
}

// ToFloat converts common numeric payload types to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// CloneData returns an independent copy of a payload map. Nested maps and
// slices are copied recursively.
func CloneData(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = cloneValue(v)
	}
	return cpy
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneData(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = cloneValue(elem)
		}
		return cpy
	default:
		return v
	}
}
