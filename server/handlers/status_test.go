package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nomis52/cloudstats/buildinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCounter struct {
	active, archived, capacity int
}

func (m mockCounter) Counts() (int, int, int) {
	return m.active, m.archived, m.capacity
}

type mockSchedule struct {
	next    time.Time
	last    time.Time
	lastErr error
}

func (m mockSchedule) NextRun() time.Time          { return m.next }
func (m mockSchedule) LastRun() (time.Time, error) { return m.last, m.lastErr }

func TestStatusHandler(t *testing.T) {
	next := time.Date(2026, 3, 1, 10, 10, 0, 0, time.UTC)
	last := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		schedule  SweepSchedule
		wantSweep *SweepStatus
	}{
		{
			name: "no schedule",
		},
		{
			name:      "never ran",
			schedule:  mockSchedule{next: next},
			wantSweep: &SweepStatus{NextRun: next},
		},
		{
			name:      "last run failed",
			schedule:  mockSchedule{next: next, last: last, lastErr: errors.New("no inventory")},
			wantSweep: &SweepStatus{NextRun: next, LastRun: &last, LastError: "no inventory"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewStatusHandler(mockCounter{active: 2, archived: 5, capacity: 100}, tt.schedule)

			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			resp := decode[StatusResponse](t, w)
			assert.Equal(t, 2, resp.Active)
			assert.Equal(t, 5, resp.Archived)
			assert.Equal(t, 100, resp.Capacity)
			assert.Equal(t, buildinfo.Get(), resp.BuildInfo)
			assert.Equal(t, tt.wantSweep, resp.Sweep)
		})
	}
}
