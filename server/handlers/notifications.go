package handlers

import (
	"errors"
	"net/http"

	"github.com/nomis52/cloudstats/activity"
)

// PlannedResource describes a resource the orchestrator is about to provision.
// A missing nonce is generated, so the response carries the ID to use afterwards.
type PlannedResource struct {
	Cloud    string `json:"cloud"`
	Template string `json:"template,omitempty"`
	Name     string `json:"name,omitempty"`
	Nonce    string `json:"nonce,omitempty"`
}

// StartedRequest is the body of the provisioning started notification.
type StartedRequest struct {
	Planned []PlannedResource `json:"planned"`
}

// NotificationRequest is the body of every single-activity notification.
type NotificationRequest struct {
	ID activity.ID `json:"id"`
	// Name is the node name, for completed and renamed notifications.
	Name string `json:"name,omitempty"`
	// Error describes the failure, for failed and launch-failed notifications.
	Error string `json:"error,omitempty"`
}

// node is a notification subject that carries its activity ID and node name.
type node struct {
	id   activity.ID
	name string
}

func (n node) ActivityID() activity.ID { return n.id }
func (n node) NodeName() string       { return n.name }

// NotificationHandlers lets an out of process orchestrator drive the registry.
type NotificationHandlers struct {
	provisioning ProvisioningNotifier
	operation    OperationNotifier
	nodes        NodeNotifier
	source       ActivitySource
}

// NewNotificationHandlers creates the notification handlers.
func NewNotificationHandlers(provisioning ProvisioningNotifier, operation OperationNotifier, nodes NodeNotifier, source ActivitySource) *NotificationHandlers {
	return &NotificationHandlers{
		provisioning: provisioning,
		operation:    operation,
		nodes:        nodes,
		source:       source,
	}
}

// HandleStarted starts one activity per planned resource and returns them.
func (h *NotificationHandlers) HandleStarted(w http.ResponseWriter, r *http.Request) {
	var req StartedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Planned) == 0 {
		writeError(w, http.StatusBadRequest, "planned must not be empty")
		return
	}

	planned := make([]any, 0, len(req.Planned))
	for i, p := range req.Planned {
		id := activity.ID{Cloud: p.Cloud, Template: p.Template, Name: p.Name, Nonce: p.Nonce}
		if id.Nonce == "" {
			id = activity.NewID(p.Cloud, p.Template, p.Name)
		}
		if !id.IsValid() {
			writeError(w, http.StatusBadRequest, "planned[%d]: cloud is required", i)
			return
		}
		planned = append(planned, id)
	}

	started := h.provisioning.OnStarted(planned...)
	writeJSON(w, http.StatusCreated, ActivitiesResponse{Activities: newActivityViews(started)})
}

// HandleCompleted records that provisioning finished. The work is deferred.
func (h *NotificationHandlers) HandleCompleted(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	h.provisioning.OnComplete(req.ID, req.Name)
	w.WriteHeader(http.StatusAccepted)
}

// HandleFailed records that provisioning failed. The work is deferred.
func (h *NotificationHandlers) HandleFailed(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	h.provisioning.OnFailure(req.ID, req.cause())
	w.WriteHeader(http.StatusAccepted)
}

// HandleLaunching records that the resource is launching.
func (h *NotificationHandlers) HandleLaunching(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	respond(w, req.ID, h.operation.PreLaunch(req.ID))
}

// HandleLaunchFailed records a failed launch attempt.
func (h *NotificationHandlers) HandleLaunchFailed(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	respond(w, req.ID, h.operation.LaunchFailure(req.ID, req.cause()))
}

// HandleOnline records that the resource is operating.
func (h *NotificationHandlers) HandleOnline(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	respond(w, req.ID, h.operation.Online(req.ID))
}

// HandleRenamed records a node rename. Renaming to the current name is a no-op.
func (h *NotificationHandlers) HandleRenamed(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	current := h.source.FindAny(req.ID)
	if current == nil {
		respond(w, req.ID, nil)
		return
	}
	before := node{id: req.ID, name: current.Name()}
	if before.name == req.Name {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respond(w, req.ID, h.nodes.OnUpdated(before, node{id: req.ID, name: req.Name}))
}

// HandleDeleted completes and archives the activity of a deleted node.
func (h *NotificationHandlers) HandleDeleted(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	respond(w, req.ID, h.nodes.OnDeleted(node{id: req.ID, name: req.Name}))
}

func (h *NotificationHandlers) decode(w http.ResponseWriter, r *http.Request) (NotificationRequest, bool) {
	var req NotificationRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	if !req.ID.IsValid() {
		writeError(w, http.StatusBadRequest, "id: cloud and nonce are required")
		return req, false
	}
	return req, true
}

func (req NotificationRequest) cause() error {
	if req.Error == "" {
		return errors.New("unknown error")
	}
	return errors.New(req.Error)
}

// respond writes the activity, or 404 when the registry is not tracking id.
func respond(w http.ResponseWriter, id activity.ID, a *activity.Activity) {
	if a == nil {
		writeError(w, http.StatusNotFound, "no activity tracked for %s", id)
		return
	}
	writeJSON(w, http.StatusOK, NewActivityView(a))
}
