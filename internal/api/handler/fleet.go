package handler

import (
	"net/http"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/fgeck/gofleet-homelab/internal/services/rollback"
	"github.com/fgeck/gofleet-homelab/internal/services/runner"
	"github.com/rs/zerolog"
)

// FleetHandler handles the fleet operation endpoints.
type FleetHandler struct {
	runSvc      runner.Service
	rollbackSvc rollback.Service
	logger      zerolog.Logger
}

// NewFleetHandler creates a new FleetHandler.
func NewFleetHandler(logger zerolog.Logger, runSvc runner.Service, rollbackSvc rollback.Service) *FleetHandler {
	return &FleetHandler{runSvc: runSvc, rollbackSvc: rollbackSvc, logger: logger}
}

type runRequest struct {
	fleetRequest
	Cmds   []string `json:"cmds"`
	Exec   bool     `json:"exec"`
	Config bool     `json:"config"`
	Dry    bool     `json:"dry"`
}

// Connect checks reachability and credentials of every host.
func (h *FleetHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req fleetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	result, err := h.runSvc.Connect(r.Context(), req.targets())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, hostResponses(result.Hosts, false))
}

// Run executes a command batch across the fleet.
func (h *FleetHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	result, err := h.runSvc.Run(r.Context(), models.RunRequest{
		Targets:  req.targets(),
		Commands: req.Cmds,
		Exec:     req.Exec,
		Config:   req.Config,
		Dry:      req.Dry,
	})
	if err != nil {
		h.logger.Debug().Err(err).Msg("run request rejected")
		handleError(w, err)
		return
	}

	w.Header().Set("X-Job-ID", result.Job.ID)
	respondJSON(w, http.StatusOK, runner.Flatten(result.Hosts))
}

// Rollback restores every host to its checkpoint.
func (h *FleetHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	var req fleetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	result, err := h.rollbackSvc.Rollback(r.Context(), req.targets())
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("X-Job-ID", result.Job.ID)
	respondJSON(w, http.StatusOK, rollback.Summary(result.Hosts))
}

// Wake sends Wake-on-LAN packets and waits for the hosts to come up.
func (h *FleetHandler) Wake(w http.ResponseWriter, r *http.Request) {
	var req fleetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	result, err := h.runSvc.Wake(r.Context(), req.targets())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, hostResponses(result.Hosts, true))
}
