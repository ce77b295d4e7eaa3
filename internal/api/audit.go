package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/controlnet-core/internal/audit"
)

// auditFilter reads the audit query string:
//
//	action, entity_type, entity_id, severity   exact match
//	since, until                               RFC 3339, [since, until)
//	limit, offset                              paging (limit capped at 200)
func auditFilter(q url.Values) (audit.Filter, error) {
	f := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Severity:   q.Get("severity"),
	}

	for key, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, fmt.Errorf("%s must be an RFC 3339 timestamp", key)
			}
			*dst = t
		}
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Until.After(f.Since) {
		return f, errors.New("until must be after since")
	}

	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return f, fmt.Errorf("%s must be a non-negative integer", key)
			}
			*dst = n
		}
	}
	return f, nil
}

func (s *Server) requireAudit(w http.ResponseWriter) bool {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit journal not configured")
		return false
	}
	return true
}

func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if !s.requireAudit(w) {
		return
	}
	filter, err := auditFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs failed", "error", err, "request_id", requestID(r))
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetAuditLog(w http.ResponseWriter, r *http.Request) {
	if !s.requireAudit(w) {
		return
	}

	entry, err := s.auditRepo.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, audit.ErrNotFound):
		writeNotFound(w, "audit entry not found")
	case err != nil:
		s.logger.Error("reading audit log failed", "error", err, "request_id", requestID(r))
		writeInternalError(w, "failed to read audit log")
	default:
		writeJSON(w, http.StatusOK, entry)
	}
}
