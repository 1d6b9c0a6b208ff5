package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nomis52/cloudstats/activity"
	"github.com/nomis52/cloudstats/stats"
	"github.com/nomis52/cloudstats/store"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *stats.Registry {
	t.Helper()
	return stats.New(context.Background(),
		stats.WithStore(store.NewMemoryStore()),
		stats.WithLogger(testLogger()),
		stats.WithCapacity(10),
	)
}

// newTestMux routes the read and notification endpoints the way the server does.
func newTestMux(reg *stats.Registry) *http.ServeMux {
	logger := testLogger()
	notifications := NewNotificationHandlers(
		stats.NewProvisioningListener(reg, stats.WithListenerLogger(logger)),
		stats.NewOperationListener(reg, stats.WithListenerLogger(logger)),
		stats.NewNodeListener(reg, stats.WithListenerLogger(logger)),
		reg,
	)

	mux := http.NewServeMux()
	mux.Handle("GET /api/activities", NewActivitiesHandler(reg))
	mux.Handle("GET /api/activities/active", NewActiveActivitiesHandler(reg))
	mux.Handle("GET /api/activities/{fingerprint}", NewActivityHandler(reg))
	mux.Handle("GET /api/activities/{fingerprint}/phases/{phase}/attachments/{n}", NewAttachmentHandler(reg))
	mux.Handle("GET /api/index", NewIndexHandler(reg))
	mux.HandleFunc("POST /api/provisioning/started", notifications.HandleStarted)
	mux.HandleFunc("POST /api/provisioning/completed", notifications.HandleCompleted)
	mux.HandleFunc("POST /api/provisioning/failed", notifications.HandleFailed)
	mux.HandleFunc("POST /api/nodes/launching", notifications.HandleLaunching)
	mux.HandleFunc("POST /api/nodes/launch-failed", notifications.HandleLaunchFailed)
	mux.HandleFunc("POST /api/nodes/online", notifications.HandleOnline)
	mux.HandleFunc("POST /api/nodes/renamed", notifications.HandleRenamed)
	mux.HandleFunc("POST /api/nodes/deleted", notifications.HandleDeleted)
	return mux
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func start(t *testing.T, reg *stats.Registry, cloud, template, name string) *activity.Activity {
	t.Helper()
	a := reg.Start(activity.NewID(cloud, template, name))
	require.NotNil(t, a)
	return a
}
