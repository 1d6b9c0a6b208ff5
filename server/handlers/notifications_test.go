package handlers

import (
	"net/http"
	"testing"

	"github.com/nomis52/cloudstats/activity"
	"github.com/nomis52/cloudstats/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifications_Lifecycle(t *testing.T) {
	reg := newTestRegistry(t)
	mux := newTestMux(reg)

	w := do(t, mux, http.MethodPost, "/api/provisioning/started", StartedRequest{
		Planned: []PlannedResource{
			{Cloud: "hetzner", Template: "small"},
			{Cloud: "hetzner", Template: "large", Name: "big-1", Nonce: "fixed"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decode[ActivitiesResponse](t, w)
	require.Len(t, started.Activities, 2)
	id := started.Activities[0].ID
	assert.NotEmpty(t, id.Nonce)
	assert.Equal(t, "fixed", started.Activities[1].ID.Nonce)
	assert.Len(t, reg.NotCompleted(), 2)

	w = do(t, mux, http.MethodPost, "/api/provisioning/completed", NotificationRequest{ID: id, Name: "small-7"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "small-7", reg.FindActive(id).Name())

	w = do(t, mux, http.MethodPost, "/api/nodes/launching", NotificationRequest{ID: id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, activity.Launching, decode[ActivityView](t, w).Phase)

	w = do(t, mux, http.MethodPost, "/api/nodes/launch-failed", NotificationRequest{ID: id, Error: "agent timed out"})
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[ActivityView](t, w)
	assert.Equal(t, activity.StatusWarn, view.Status)
	assert.Equal(t, activity.Launching, view.Phase)

	w = do(t, mux, http.MethodPost, "/api/nodes/online", NotificationRequest{ID: id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, activity.Operating, decode[ActivityView](t, w).Phase)

	w = do(t, mux, http.MethodPost, "/api/nodes/renamed", NotificationRequest{ID: id, Name: "small-7"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, mux, http.MethodPost, "/api/nodes/renamed", NotificationRequest{ID: id, Name: "small-8"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "small-8", decode[ActivityView](t, w).Name)

	w = do(t, mux, http.MethodPost, "/api/nodes/deleted", NotificationRequest{ID: id})
	require.Equal(t, http.StatusOK, w.Code)
	view = decode[ActivityView](t, w)
	assert.Equal(t, activity.Completed, view.Phase)
	assert.Equal(t, activity.StatusWarn, view.Status)

	assert.Nil(t, reg.FindActive(id))
	require.NotNil(t, reg.FindAny(id))
	_, archived, _ := reg.Counts()
	assert.Equal(t, 1, archived)
}

// collidingSource answers every fingerprint lookup with the same activity.
type collidingSource struct {
	*stats.Registry
	other *activity.Activity
}

func (s collidingSource) ByFingerprint(fp uint64) *activity.Activity {
	return s.other
}

func TestNotifications_RenameLooksUpByID(t *testing.T) {
	reg := newTestRegistry(t)
	target := start(t, reg, "hetzner", "small", "node-1")
	other := start(t, reg, "hetzner", "small", "node-2")

	logger := testLogger()
	notifications := NewNotificationHandlers(
		stats.NewProvisioningListener(reg, stats.WithListenerLogger(logger)),
		stats.NewOperationListener(reg, stats.WithListenerLogger(logger)),
		stats.NewNodeListener(reg, stats.WithListenerLogger(logger)),
		collidingSource{Registry: reg, other: other},
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/nodes/renamed", notifications.HandleRenamed)

	// node-2 is the name of the colliding activity, not of the target
	w := do(t, mux, http.MethodPost, "/api/nodes/renamed", NotificationRequest{ID: target.ID(), Name: "node-2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "node-2", target.Name())
	assert.Equal(t, "node-2", other.Name())

	w = do(t, mux, http.MethodPost, "/api/nodes/renamed", NotificationRequest{ID: target.ID(), Name: "node-2"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNotifications_Failed(t *testing.T) {
	reg := newTestRegistry(t)
	mux := newTestMux(reg)
	a := start(t, reg, "aws", "gpu", "")

	w := do(t, mux, http.MethodPost, "/api/provisioning/failed", NotificationRequest{ID: a.ID(), Error: "insufficient capacity"})
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Equal(t, activity.Completed, a.CurrentPhase())
	assert.Equal(t, activity.StatusFail, a.Status())
	att, ok := a.PhaseExecution(activity.Provisioning).Attachment(0)
	require.True(t, ok)
	assert.Equal(t, "insufficient capacity", att.Title)
	assert.Empty(t, reg.NotCompleted())
}

func TestNotifications_Errors(t *testing.T) {
	reg := newTestRegistry(t)
	mux := newTestMux(reg)
	unknown := activity.NewID("hetzner", "small", "ghost")

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{name: "started empty", path: "/api/provisioning/started", body: StartedRequest{}, wantStatus: http.StatusBadRequest},
		{name: "started missing cloud", path: "/api/provisioning/started", body: StartedRequest{Planned: []PlannedResource{{Name: "x"}}}, wantStatus: http.StatusBadRequest},
		{name: "invalid JSON", path: "/api/nodes/online", body: "{", wantStatus: http.StatusBadRequest},
		{name: "unknown field", path: "/api/nodes/online", body: `{"id":{"cloud":"a","nonce":"b"},"extra":1}`, wantStatus: http.StatusBadRequest},
		{name: "missing nonce", path: "/api/nodes/online", body: NotificationRequest{ID: activity.ID{Cloud: "hetzner"}}, wantStatus: http.StatusBadRequest},
		{name: "launching untracked", path: "/api/nodes/launching", body: NotificationRequest{ID: unknown}, wantStatus: http.StatusNotFound},
		{name: "launch failed untracked", path: "/api/nodes/launch-failed", body: NotificationRequest{ID: unknown}, wantStatus: http.StatusNotFound},
		{name: "deleted untracked", path: "/api/nodes/deleted", body: NotificationRequest{ID: unknown}, wantStatus: http.StatusNotFound},
		{name: "renamed untracked", path: "/api/nodes/renamed", body: NotificationRequest{ID: unknown, Name: "x"}, wantStatus: http.StatusNotFound},
		{name: "renamed without name", path: "/api/nodes/renamed", body: NotificationRequest{ID: unknown}, wantStatus: http.StatusBadRequest},
		{name: "completed untracked", path: "/api/provisioning/completed", body: NotificationRequest{ID: unknown}, wantStatus: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, mux, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
	assert.True(t, reg.IsEmpty())
}
