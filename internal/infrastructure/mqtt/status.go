package mqtt

import (
	"encoding/json"
	"time"
)

// Status states and reasons published on controlnet/system/status.
const (
	StateOnline  = "online"
	StateOffline = "offline"

	ReasonShutdown   = "graceful_shutdown"
	ReasonUnexpected = "unexpected_disconnect"
)

// Status is the retained presence message for the core.
type Status struct {
	State     string `json:"status"`
	ClientID  string `json:"client_id"`
	Site      string `json:"site,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (s Status) encode(at time.Time) []byte {
	s.Timestamp = at.UTC().Format(time.RFC3339)
	b, _ := json.Marshal(s) //nolint:errcheck // plain strings always marshal
	return b
}

// ParseStatus decodes a status payload.
func ParseStatus(payload []byte) (Status, error) {
	var s Status
	err := json.Unmarshal(payload, &s)
	return s, err
}
