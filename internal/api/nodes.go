package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/controlnet-core/internal/node"
	"github.com/nerrad567/controlnet-core/internal/routing"
	"github.com/nerrad567/controlnet-core/internal/signal"
)

// RegisterNodeRequest is the body of POST /nodes.
type RegisterNodeRequest struct {
	ID       string        `json:"id"`
	Type     node.Type     `json:"type"`
	Metadata node.Metadata `json:"metadata"`
}

// SignalRequest is the body of POST /signals.
type SignalRequest struct {
	Type     string          `json:"type"`
	Source   string          `json:"source"`
	Data     map[string]any  `json:"data,omitempty"`
	Priority signal.Priority `json:"priority,omitempty"`
}

func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.runtime.Nodes()
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	})
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req RegisterNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	n, err := s.runtime.RegisterControlNode(req.ID, req.Type, req.Metadata)
	if err != nil {
		writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleUnregisterNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.runtime.UnregisterControlNode(id) {
		writeNotFound(w, "node not found: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProcessSignal submits a signal on behalf of a registered node.
func (s *Server) handleProcessSignal(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Source == "" {
		writeBadRequest(w, "source is required")
		return
	}

	sig, err := s.runtime.ProcessControlSignal(req.Type, req.Data, req.Source, routing.Options{Priority: req.Priority})
	if err != nil {
		writeRuntimeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sig)
}
