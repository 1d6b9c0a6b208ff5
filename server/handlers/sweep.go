package handlers

import (
	"log/slog"
	"net/http"
)

// SweepResponse reports the outcome of a manual sweep.
type SweepResponse struct {
	Completed int `json:"completed"`
}

// SweepHandler runs the reconciliation sweep on demand.
type SweepHandler struct {
	logger  *slog.Logger
	sweeper Sweeper
}

// NewSweepHandler creates a new SweepHandler.
func NewSweepHandler(logger *slog.Logger, sweeper Sweeper) *SweepHandler {
	return &SweepHandler{
		logger:  logger,
		sweeper: sweeper,
	}
}

// ServeHTTP implements http.Handler.
func (h *SweepHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.Error("sweep failed", "error", err)
		writeError(w, http.StatusBadGateway, "sweep failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Completed: n})
}
