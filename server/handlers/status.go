package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/cloudstats/buildinfo"
)

// StatusResponse is returned by the status endpoint.
type StatusResponse struct {
	Active    int                  `json:"active"`
	Archived  int                  `json:"archived"`
	Capacity  int                  `json:"capacity"`
	Sweep     *SweepStatus         `json:"sweep,omitempty"`
	BuildInfo buildinfo.Properties `json:"build_info"`
}

// SweepStatus describes the periodic sweep. It is omitted when no schedule is configured.
type SweepStatus struct {
	NextRun   time.Time  `json:"next_run"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// StatusHandler reports registry counts, the sweep schedule and build info.
type StatusHandler struct {
	counter  Counter
	schedule SweepSchedule
}

// NewStatusHandler creates a new StatusHandler. schedule may be nil.
func NewStatusHandler(counter Counter, schedule SweepSchedule) *StatusHandler {
	return &StatusHandler{
		counter:  counter,
		schedule: schedule,
	}
}

// ServeHTTP implements http.Handler.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	active, archived, capacity := h.counter.Counts()
	resp := StatusResponse{
		Active:    active,
		Archived:  archived,
		Capacity:  capacity,
		BuildInfo: buildinfo.Get(),
	}

	if h.schedule != nil {
		sweep := &SweepStatus{NextRun: h.schedule.NextRun()}
		if last, err := h.schedule.LastRun(); !last.IsZero() {
			sweep.LastRun = &last
			if err != nil {
				sweep.LastError = err.Error()
			}
		}
		resp.Sweep = sweep
	}

	writeJSON(w, http.StatusOK, resp)
}
