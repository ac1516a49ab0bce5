// Package api wires the HTTP routes of the fleet server.
package api

import (
	"net/http"

	"github.com/fgeck/gofleet-homelab/internal/api/handler"
	"github.com/fgeck/gofleet-homelab/internal/api/middleware"
	"github.com/fgeck/gofleet-homelab/internal/services/rollback"
	"github.com/fgeck/gofleet-homelab/internal/services/runner"
	"github.com/fgeck/gofleet-homelab/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(
	logger zerolog.Logger,
	store storage.Storage,
	runSvc runner.Service,
	rollbackSvc rollback.Service,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	fleetHandler := handler.NewFleetHandler(logger, runSvc, rollbackSvc)
	r.Post("/connect", fleetHandler.Connect)
	r.Post("/run", fleetHandler.Run)
	r.Post("/rollback", fleetHandler.Rollback)
	r.Post("/wake", fleetHandler.Wake)

	historyHandler := handler.NewHistoryHandler(store)
	r.Get("/jobs", historyHandler.ListJobs)
	r.Get("/checkpoints/{address}", historyHandler.GetCheckpoint)

	return r
}
