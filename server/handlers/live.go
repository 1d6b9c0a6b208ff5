package handlers

import (
	"log/slog"
	"mime"
	"net/http"

	"github.com/nomis52/cloudstats/activity"
	"github.com/nomis52/cloudstats/inventory"
)

// LiveRequest is the JSON body accepted by the live inventory endpoint.
type LiveRequest struct {
	IDs []activity.ID `json:"ids"`
}

// LiveHandler replaces the pushed inventory of live resources.
//
// The body is either JSON or text/plain with one cloud/template/name#nonce per line.
type LiveHandler struct {
	logger *slog.Logger
	setter LiveSetter
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(logger *slog.Logger, setter LiveSetter) *LiveHandler {
	return &LiveHandler{
		logger: logger,
		setter: setter,
	}
}

// ServeHTTP implements http.Handler.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var ids []activity.ID

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		parsed, err := inventory.ParseLines(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid inventory: %v", err)
			return
		}
		ids = parsed
	} else {
		var req LiveRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		for i, id := range req.IDs {
			if !id.IsValid() {
				writeError(w, http.StatusBadRequest, "ids[%d]: cloud and nonce are required", i)
				return
			}
		}
		ids = req.IDs
	}

	h.setter.Set(ids)
	h.logger.Debug("live inventory updated", "resources", len(ids))
	w.WriteHeader(http.StatusNoContent)
}
