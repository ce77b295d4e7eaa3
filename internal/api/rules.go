package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := s.runtime.Rules()
	if group := r.URL.Query().Get("group"); group != "" {
		filtered := rules[:0]
		for _, rule := range rules {
			if rule.Group == group {
				filtered = append(filtered, rule)
			}
		}
		rules = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

func (s *Server) handleEnableRule(w http.ResponseWriter, r *http.Request) {
	s.setRuleEnabled(w, chi.URLParam(r, "id"), true)
}

func (s *Server) handleDisableRule(w http.ResponseWriter, r *http.Request) {
	s.setRuleEnabled(w, chi.URLParam(r, "id"), false)
}

func (s *Server) setRuleEnabled(w http.ResponseWriter, id string, enabled bool) {
	var err error
	if enabled {
		err = s.runtime.EnableRule(id)
	} else {
		err = s.runtime.DisableRule(id)
	}
	if err != nil {
		writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": enabled})
}
