package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// EmergencyStopRequest is the optional body of POST /safety/estop/{id}.
type EmergencyStopRequest struct {
	Reason string `json:"reason"`
}

// ResetRequest is the body of POST /safety/reset.
type ResetRequest struct {
	Operator string `json:"operator"`
	Reason   string `json:"reason"`
}

// PermitRequest is the body of POST /safety/permits.
type PermitRequest struct {
	Holder     string `json:"holder"`
	Scope      string `json:"scope"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// decodeOptional decodes a JSON body, accepting an empty one.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req EmergencyStopRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Reason == "" {
		req.Reason = "api request"
	}

	id := chi.URLParam(r, "id")
	report, err := s.runtime.ActivateEmergencyStop(id, req.Reason)
	if err != nil {
		writeRuntimeError(w, err)
		return
	}
	s.logger.Error("emergency stop activated via API",
		"estop_id", id,
		"reason", req.Reason,
		"severity", "critical",
		"request_id", requestID(r),
	)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEmergencyReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Operator == "" {
		writeBadRequest(w, "operator is required")
		return
	}

	if err := s.runtime.ResetEmergencyMode(req.Operator, req.Reason); err != nil {
		writeRuntimeError(w, err)
		return
	}
	s.logger.Info("emergency mode reset via API", "operator", req.Operator)
	writeJSON(w, http.StatusOK, map[string]any{"mode": s.runtime.Mode()})
}

func (s *Server) handleListPermits(w http.ResponseWriter, _ *http.Request) {
	permits := s.runtime.Permits()
	writeJSON(w, http.StatusOK, map[string]any{
		"permits": permits,
		"count":   len(permits),
	})
}

func (s *Server) handleIssuePermit(w http.ResponseWriter, r *http.Request) {
	var req PermitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	permit, err := s.runtime.IssuePermit(req.Holder, req.Scope, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, permit)
}

func (s *Server) handleRevokePermit(w http.ResponseWriter, r *http.Request) {
	if err := s.runtime.RevokePermit(chi.URLParam(r, "id")); err != nil {
		writeRuntimeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
