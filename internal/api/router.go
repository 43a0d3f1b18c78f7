package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultWSPath is used when the websocket path is not configured.
const defaultWSPath = "/ws"

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/state", s.handleGetState)
		r.Get("/telemetry", s.handleGetTelemetry)
		r.Get("/commands", s.handleListCommands)

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.Route("/{channel}", func(r chi.Router) {
				r.Get("/", s.handleGetChannel)
				r.Put("/pending", s.handleEditChannel)
				r.Post("/commit", s.handleCommitChannel)
			})
		})

		r.Get(wsPath, s.handleWebSocket)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      s.version,
		"connectivity": snap.Connectivity,
		"device_state": snap.Readings.DeviceState,
	})
}
