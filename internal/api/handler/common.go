// Package handler implements the fleet HTTP endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fgeck/gofleet-homelab/internal/models"
)

// maxBodyBytes bounds request bodies; command batches are plain text.
const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, &errorResponse{
		Code:    status,
		Message: message,
	})
}

// handleError converts domain errors to HTTP errors.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON decodes JSON from request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", models.ErrInvalidRequest, err)
	}
	return nil
}

// fleetRequest is the part shared by every fleet endpoint.
type fleetRequest struct {
	IPs  []string           `json:"ips"`
	Auth models.Credentials `json:"auth"`
}

// targets turns the address list into host targets. Entries may themselves
// hold newline-separated addresses; each address is trimmed and blanks are
// dropped. Emptiness and duplicates are checked by the services.
func (f fleetRequest) targets() []models.HostTarget {
	var targets []models.HostTarget
	for _, entry := range f.IPs {
		for _, addr := range strings.Split(entry, "\n") {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			targets = append(targets, models.HostTarget{Address: addr, Auth: f.Auth})
		}
	}
	return targets
}

// hostResponse mirrors a HostResult without configuration or diff.
type hostResponse struct {
	Address string        `json:"address"`
	Status  models.Status `json:"status"`
	Output  []string      `json:"output,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func hostResponses(results []models.HostResult, withOutput bool) []hostResponse {
	out := make([]hostResponse, len(results))
	for i, r := range results {
		out[i] = hostResponse{
			Address: r.Address,
			Status:  r.Status,
			Error:   r.ErrorMessage(),
		}
		if withOutput {
			out[i].Output = r.Output
		}
	}
	return out
}
