package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/controlnet-core/internal/control"
)

// LoopPatchRequest is the body of PATCH /loops/{id}. Absent fields are left
// unchanged.
type LoopPatchRequest struct {
	Setpoint        *float64         `json:"setpoint,omitempty"`
	ProcessVariable *float64         `json:"process_variable,omitempty"`
	ManualOutput    *float64         `json:"manual_output,omitempty"`
	Mode            *control.Mode    `json:"mode,omitempty"`
	Enabled         *bool            `json:"enabled,omitempty"`
	Limits          *control.Limits  `json:"limits,omitempty"`
	ExecutionRateMS *int64           `json:"execution_rate_ms,omitempty"`
	Cascade         *control.Cascade `json:"cascade,omitempty"`
}

// update converts the request to a scheduler update.
func (p LoopPatchRequest) update() control.Update {
	u := control.Update{
		Setpoint:        p.Setpoint,
		ProcessVariable: p.ProcessVariable,
		ManualOutput:    p.ManualOutput,
		Mode:            p.Mode,
		Enabled:         p.Enabled,
		Limits:          p.Limits,
		Cascade:         p.Cascade,
	}
	if p.ExecutionRateMS != nil {
		rate := time.Duration(*p.ExecutionRateMS) * time.Millisecond
		u.ExecutionRate = &rate
	}
	return u
}

// TuneRequest is the body of POST /loops/{id}/tune.
type TuneRequest struct {
	Profile string `json:"profile"`
}

func (s *Server) handleListLoops(w http.ResponseWriter, _ *http.Request) {
	loops := s.runtime.Loops()
	writeJSON(w, http.StatusOK, map[string]any{
		"loops": loops,
		"count": len(loops),
	})
}

func (s *Server) handleUpdateLoop(w http.ResponseWriter, r *http.Request) {
	var req LoopPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	info, err := s.runtime.UpdateLoop(chi.URLParam(r, "id"), req.update())
	if err != nil {
		writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTuneLoop(w http.ResponseWriter, r *http.Request) {
	var req TuneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Profile == "" {
		writeBadRequest(w, "profile is required")
		return
	}

	info, err := s.runtime.TuneLoop(chi.URLParam(r, "id"), req.Profile)
	if err != nil {
		writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
