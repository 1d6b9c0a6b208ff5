package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nomis52/cloudstats/activity"
)

// ActivityView is the JSON form of an activity.
type ActivityView struct {
	Fingerprint string          `json:"fingerprint"`
	ID          activity.ID     `json:"id"`
	Name        string          `json:"name"`
	Phase       activity.Phase  `json:"phase"`
	Status      activity.Status `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	Phases      []PhaseView     `json:"phases"`
}

// PhaseView is the JSON form of one entered phase.
type PhaseView struct {
	Phase       activity.Phase   `json:"phase"`
	StartedAt   time.Time        `json:"started_at"`
	Status      activity.Status  `json:"status"`
	Attachments []AttachmentView `json:"attachments"`
}

// AttachmentView is an attachment together with the URL that serves it.
type AttachmentView struct {
	activity.Attachment
	URL string `json:"url"`
}

// ActivitiesResponse is returned by the list endpoints.
type ActivitiesResponse struct {
	Activities []ActivityView `json:"activities"`
}

// AttachmentURL returns the path that serves the n-th attachment of phase.
func AttachmentURL(fp uint64, phase activity.Phase, n int) string {
	return fmt.Sprintf("/api/activities/%s/phases/%s/attachments/%d", fingerprintString(fp), phase, n)
}

// NewActivityView converts a to its JSON form.
func NewActivityView(a *activity.Activity) ActivityView {
	id := a.ID()
	fp := id.Fingerprint()
	view := ActivityView{
		Fingerprint: fingerprintString(fp),
		ID:          id,
		Name:        a.Name(),
		Phase:       a.CurrentPhase(),
		Status:      a.Status(),
		StartedAt:   a.StartedAt(),
		Phases:      []PhaseView{},
	}
	for _, e := range a.PhaseExecutions() {
		pv := PhaseView{
			Phase:       e.Phase(),
			StartedAt:   e.StartedAt(),
			Status:      e.Status(),
			Attachments: []AttachmentView{},
		}
		for i, att := range e.Attachments() {
			pv.Attachments = append(pv.Attachments, AttachmentView{
				Attachment: att,
				URL:        AttachmentURL(fp, e.Phase(), i),
			})
		}
		view.Phases = append(view.Phases, pv)
	}
	return view
}

func newActivityViews(activities []*activity.Activity) []ActivityView {
	views := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		views = append(views, NewActivityView(a))
	}
	return views
}

// ActivitiesHandler lists tracked activities.
type ActivitiesHandler struct {
	source     ActivitySource
	activeOnly bool
}

// NewActivitiesHandler lists history followed by the active set.
func NewActivitiesHandler(source ActivitySource) *ActivitiesHandler {
	return &ActivitiesHandler{source: source}
}

// NewActiveActivitiesHandler lists activities that have not completed.
func NewActiveActivitiesHandler(source ActivitySource) *ActivitiesHandler {
	return &ActivitiesHandler{source: source, activeOnly: true}
}

// ServeHTTP implements http.Handler.
func (h *ActivitiesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var activities []*activity.Activity
	if h.activeOnly {
		activities = h.source.NotCompleted()
	} else {
		activities = h.source.Activities()
	}
	writeJSON(w, http.StatusOK, ActivitiesResponse{Activities: newActivityViews(activities)})
}

// ActivityHandler serves one activity by fingerprint.
type ActivityHandler struct {
	source ActivitySource
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(source ActivitySource) *ActivityHandler {
	return &ActivityHandler{source: source}
}

// ServeHTTP implements http.Handler.
func (h *ActivityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a, ok := lookup(w, r, h.source)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewActivityView(a))
}

// AttachmentHandler serves a single attachment.
type AttachmentHandler struct {
	source ActivitySource
}

// NewAttachmentHandler creates a new AttachmentHandler.
func NewAttachmentHandler(source ActivitySource) *AttachmentHandler {
	return &AttachmentHandler{source: source}
}

// ServeHTTP implements http.Handler.
func (h *AttachmentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	phase, err := activity.ParsePhase(r.PathValue("phase"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid attachment index %q", r.PathValue("n"))
		return
	}

	a, ok := lookup(w, r, h.source)
	if !ok {
		return
	}
	e := a.PhaseExecution(phase)
	if e == nil {
		writeError(w, http.StatusNotFound, "activity never entered %s", phase)
		return
	}
	att, ok := e.Attachment(n)
	if !ok {
		writeError(w, http.StatusNotFound, "no attachment %d in %s", n, phase)
		return
	}
	writeJSON(w, http.StatusOK, att)
}

// lookup resolves the {fingerprint} path value, writing an error response on failure.
func lookup(w http.ResponseWriter, r *http.Request, source ActivitySource) (*activity.Activity, bool) {
	fp, err := parseFingerprint(r.PathValue("fingerprint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return nil, false
	}
	a := source.ByFingerprint(fp)
	if a == nil {
		writeError(w, http.StatusNotFound, "no activity with fingerprint %s", fingerprintString(fp))
		return nil, false
	}
	return a, true
}
