package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/nomis52/cloudstats/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivitiesHandler(t *testing.T) {
	reg := newTestRegistry(t)
	mux := newTestMux(reg)

	done := start(t, reg, "hetzner", "small", "node-1")
	start(t, reg, "hetzner", "small", "node-2")
	require.True(t, reg.Complete(done))

	w := do(t, mux, http.MethodGet, "/api/activities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	all := decode[ActivitiesResponse](t, w)
	require.Len(t, all.Activities, 2)
	// history comes first
	assert.Equal(t, "node-1", all.Activities[0].Name)
	assert.Equal(t, activity.Completed, all.Activities[0].Phase)
	assert.Equal(t, "node-2", all.Activities[1].Name)

	w = do(t, mux, http.MethodGet, "/api/activities/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	active := decode[ActivitiesResponse](t, w)
	require.Len(t, active.Activities, 1)
	assert.Equal(t, "node-2", active.Activities[0].Name)
	assert.Equal(t, activity.Provisioning, active.Activities[0].Phase)
}

func TestActivitiesHandler_Empty(t *testing.T) {
	w := do(t, newTestMux(newTestRegistry(t)), http.MethodGet, "/api/activities", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"activities":[]}`, w.Body.String())
}

func TestActivityHandler(t *testing.T) {
	reg := newTestRegistry(t)
	mux := newTestMux(reg)
	a := start(t, reg, "aws", "", "builder")
	fp := fingerprintString(a.ID().Fingerprint())

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "found", path: "/api/activities/" + fp, wantStatus: http.StatusOK},
		{name: "unknown fingerprint", path: "/api/activities/12345", wantStatus: http.StatusNotFound},
		{name: "not a number", path: "/api/activities/abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, mux, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)
				return
			}
			view := decode[ActivityView](t, w)
			assert.Equal(t, fp, view.Fingerprint)
			assert.Equal(t, a.ID(), view.ID)
			assert.Equal(t, "builder", view.Name)
			assert.Equal(t, activity.StatusOK, view.Status)
			require.Len(t, view.Phases, 1)
			assert.Equal(t, activity.Provisioning, view.Phases[0].Phase)
			assert.Empty(t, view.Phases[0].Attachments)
		})
	}
}

func TestAttachmentHandler(t *testing.T) {
	reg := newTestRegistry(t)
	mux := newTestMux(reg)
	a := start(t, reg, "hetzner", "small", "node-1")
	require.True(t, reg.Enter(a, activity.Launching))
	require.NoError(t, reg.Attach(a, activity.Launching, activity.NewErrorAttachment(activity.StatusWarn, errors.New("ssh refused\nretrying"))))

	view := NewActivityView(a)
	require.Len(t, view.Phases, 2)
	require.Len(t, view.Phases[1].Attachments, 1)
	url := view.Phases[1].Attachments[0].URL
	fp := view.Fingerprint
	assert.Equal(t, "/api/activities/"+fp+"/phases/LAUNCHING/attachments/0", url)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "from view", path: url, wantStatus: http.StatusOK},
		{name: "lower case phase", path: "/api/activities/" + fp + "/phases/launching/attachments/0", wantStatus: http.StatusOK},
		{name: "unknown phase", path: "/api/activities/" + fp + "/phases/BOOTING/attachments/0", wantStatus: http.StatusBadRequest},
		{name: "bad index", path: "/api/activities/" + fp + "/phases/LAUNCHING/attachments/x", wantStatus: http.StatusBadRequest},
		{name: "phase never entered", path: "/api/activities/" + fp + "/phases/OPERATING/attachments/0", wantStatus: http.StatusNotFound},
		{name: "index out of range", path: "/api/activities/" + fp + "/phases/LAUNCHING/attachments/1", wantStatus: http.StatusNotFound},
		{name: "negative index", path: "/api/activities/" + fp + "/phases/LAUNCHING/attachments/-1", wantStatus: http.StatusNotFound},
		{name: "unknown activity", path: "/api/activities/1/phases/LAUNCHING/attachments/0", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, mux, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			att := decode[activity.Attachment](t, w)
			assert.Equal(t, activity.StatusWarn, att.Status)
			assert.Equal(t, "ssh refused", att.Title)
			assert.Contains(t, att.Detail, "retrying")
		})
	}
}

func TestNewActivityView_WorstStatus(t *testing.T) {
	reg := newTestRegistry(t)
	a := start(t, reg, "hetzner", "", "node")
	require.NoError(t, reg.Attach(a, activity.Provisioning, activity.NewAttachment(activity.StatusWarn, "slow")))
	require.NoError(t, reg.Attach(a, activity.Provisioning, activity.NewAttachment(activity.StatusFail, "quota")))

	view := NewActivityView(a)
	assert.Equal(t, activity.StatusFail, view.Status)
	assert.Equal(t, activity.Completed, view.Phase)
	require.Len(t, view.Phases, 2)
	assert.Equal(t, activity.StatusFail, view.Phases[0].Status)
	assert.Len(t, view.Phases[0].Attachments, 2)
}
