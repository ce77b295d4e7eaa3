package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// defaultAlarmLimit caps GET /alarms when no limit is given.
const defaultAlarmLimit = 100

// AcknowledgeRequest is the body of POST /alarms/{id}/acknowledge.
type AcknowledgeRequest struct {
	Operator string `json:"operator"`
}

func (s *Server) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlarmLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	alarms := s.runtime.Alarms(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"alarms": alarms,
		"count":  len(alarms),
	})
}

func (s *Server) handleAcknowledgeAlarm(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Operator == "" {
		writeBadRequest(w, "operator is required")
		return
	}

	alarm, err := s.runtime.AcknowledgeAlarm(chi.URLParam(r, "id"), req.Operator)
	if err != nil {
		writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alarm)
}

func (s *Server) handleListRemoteSites(w http.ResponseWriter, _ *http.Request) {
	sites := s.runtime.RemoteSites()
	writeJSON(w, http.StatusOK, map[string]any{
		"sites": sites,
		"count": len(sites),
	})
}
