package handlers

import (
	"fmt"
	"net/http"
)

// HealthHandler reports "ok", or 503 when the last save of the statistics failed. The
// registry keeps serving from memory either way; the status is for alerting.
type HealthHandler struct {
	checker SaveChecker
}

// NewHealthHandler creates a new HealthHandler. checker may be nil.
func NewHealthHandler(checker SaveChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if h.checker != nil {
		if _, err := h.checker.LastSave(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "degraded: %v", err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
