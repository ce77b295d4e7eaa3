package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.echoRequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	r.Use(s.cors)
	r.Use(middleware.RequestSize(maxRequestBodySize))
	r.Use(s.modeHeader)

	// Prometheus scrape endpoint
	if s.promHandler != nil {
		r.Handle("/metrics", s.promHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/system/log-level", s.handleGetLogLevel)
		r.Put("/system/log-level", s.handleSetLogLevel)

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", s.handleListNodes)
			r.Post("/", s.handleRegisterNode)
			r.Delete("/{id}", s.handleUnregisterNode)
		})

		r.Post("/signals", s.handleProcessSignal)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/{id}/enable", s.handleEnableRule)
			r.Post("/{id}/disable", s.handleDisableRule)
		})

		r.Route("/loops", func(r chi.Router) {
			r.Get("/", s.handleListLoops)
			r.Patch("/{id}", s.handleUpdateLoop)
			r.Post("/{id}/tune", s.handleTuneLoop)
		})

		r.Route("/safety", func(r chi.Router) {
			r.Post("/estop/{id}", s.handleEmergencyStop)
			r.Post("/reset", s.handleEmergencyReset)

			r.Route("/permits", func(r chi.Router) {
				r.Get("/", s.handleListPermits)
				r.Post("/", s.handleIssuePermit)
				r.Delete("/{id}", s.handleRevokePermit)
			})
		})

		r.Route("/alarms", func(r chi.Router) {
			r.Get("/", s.handleListAlarms)
			r.Post("/{id}/acknowledge", s.handleAcknowledgeAlarm)
		})

		r.Get("/remote/sites", s.handleListRemoteSites)
		r.Route("/audit", func(r chi.Router) {
			r.Get("/", s.handleListAuditLogs)
			r.Get("/{id}", s.handleGetAuditLog)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
