package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/controlnet-core/internal/network"
)

// StatsFunc reports one component's counters for /api/v1/metrics.
type StatsFunc func() any

// SystemMetrics is the /api/v1/metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Mode          network.Mode    `json:"mode"`
	Process       ProcessMetrics  `json:"process"`
	Network       network.Metrics `json:"network"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          *MQTTMetrics    `json:"mqtt,omitempty"`
	Components    map[string]any  `json:"components,omitempty"`
}

// ProcessMetrics are Go runtime statistics.
type ProcessMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics are event stream statistics.
type WSMetrics struct {
	ConnectedClients int   `json:"connected_clients"`
	EventsDropped    int64 `json:"events_dropped"`
	ClientsEvicted   int64 `json:"clients_evicted"`
}

// MQTTMetrics reports the broker link.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

const bytesPerMB = 1 << 20

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Mode:          s.runtime.Mode(),
		Process: ProcessMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / bytesPerMB,
			NumGC:         mem.NumGC,
		},
		Network: s.runtime.GetMetrics(),
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			EventsDropped:    s.hub.Dropped(),
			ClientsEvicted:   s.hub.Evicted(),
		},
	}
	if s.mqtt != nil {
		m.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if len(s.components) > 0 {
		m.Components = make(map[string]any, len(s.components))
		for name, fn := range s.components {
			m.Components[name] = fn()
		}
	}

	writeJSON(w, http.StatusOK, m)
}
