package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nerrad567/controlnet-core/internal/network"
)

// handleHealth returns a short liveness summary. It does not take the
// runtime through a full status build.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	mode := s.runtime.Mode()
	status := "ok"
	switch mode {
	case network.ModeDegraded:
		status = "degraded"
	case network.ModeEmergencyStop:
		status = "emergency"
	}

	resp := map[string]any{
		"status":  status,
		"mode":    mode,
		"version": s.version,
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns the full system status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runtime.GetSystemStatus())
}

// LogLevel is the body of GET and PUT /system/log-level.
type LogLevel struct {
	Level string `json:"level"`
}

func (s *Server) handleGetLogLevel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LogLevel{Level: strings.ToLower(s.logger.Level().String())})
}

// handleSetLogLevel changes the level of every component logger at once.
func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req LogLevel
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.logger.SetLevel(req.Level); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	s.logger.Info("log level changed", "level", req.Level, "request_id", requestID(r))
	s.handleGetLogLevel(w, r)
}
