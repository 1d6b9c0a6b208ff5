package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/cloudstats/activity"
	"github.com/nomis52/cloudstats/server/handlers"
	"github.com/nomis52/cloudstats/stats"
	"github.com/nomis52/cloudstats/store"
)

// writeState records one finished and one running activity into a new state file.
func writeState(t *testing.T) (string, *activity.Activity) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ds, err := store.NewDiskStore(path, logger)
	require.NoError(t, err)

	reg := stats.New(context.Background(), stats.WithStore(ds), stats.WithLogger(logger), stats.WithCapacity(7))
	done := reg.Start(activity.NewID("hetzner", "small", "node-1"))
	require.True(t, reg.Complete(done))
	running := reg.Start(activity.NewID("aws", "", "builder"))
	require.NoError(t, reg.Save(context.Background()))
	return path, running
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestList(t *testing.T) {
	path, running := writeState(t)

	out, err := execute(t, "list", "--state", path)
	require.NoError(t, err)
	assert.Contains(t, out, "FINGERPRINT")
	assert.Contains(t, out, "node-1")
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "builder")
	assert.Contains(t, out, strconv.FormatUint(running.ID().Fingerprint(), 10))

	out, err = execute(t, "list", "--state", path, "--active", "--json")
	require.NoError(t, err)
	var resp handlers.ActivitiesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Activities, 1)
	assert.Equal(t, running.ID(), resp.Activities[0].ID)
}

func TestShow(t *testing.T) {
	path, running := writeState(t)

	out, err := execute(t, "show", strconv.FormatUint(running.ID().Fingerprint(), 10), "--state", path)
	require.NoError(t, err)
	var view handlers.ActivityView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "builder", view.Name)
	assert.Equal(t, activity.Provisioning, view.Phase)

	_, err = execute(t, "show", "1", "--state", path)
	assert.ErrorContains(t, err, "no activity")

	_, err = execute(t, "show", "abc", "--state", path)
	assert.ErrorContains(t, err, "invalid fingerprint")
}

func TestIndex(t *testing.T) {
	path, _ := writeState(t)

	out, err := execute(t, "index", "--state", path)
	require.NoError(t, err)
	assert.Contains(t, out, "hetzner")
	assert.Contains(t, out, "small")
	assert.Contains(t, out, "aws")
}

func TestList_DoesNotMigrateSource(t *testing.T) {
	path, _ := writeState(t)
	before, err := store.NewDiskStore(path, slog.Default())
	require.NoError(t, err)
	docBefore, err := before.Load(context.Background())
	require.NoError(t, err)

	_, err = execute(t, "list", "--state", path)
	require.NoError(t, err)

	docAfter, err := before.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, docBefore.Capacity, docAfter.Capacity)
	assert.Len(t, docAfter.Active, 1)
}

func TestList_LeavesCorruptStateInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0644))

	_, err := execute(t, "list", "--state", path)
	assert.ErrorIs(t, err, store.ErrCorrupt)
	assert.FileExists(t, path)
}

func TestList_NewerStateVersion(t *testing.T) {
	path, running := writeState(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	newer := bytes.Replace(data, []byte(`"version": 2`), []byte(`"version": 3`), 1)
	require.NoError(t, os.WriteFile(path, newer, 0644))

	out, err := execute(t, "list", "--state", path)
	require.NoError(t, err)
	assert.Contains(t, out, "node-1")
	assert.Contains(t, out, strconv.FormatUint(running.ID().Fingerprint(), 10))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, newer, after)
}

func TestPush(t *testing.T) {
	path, _ := writeState(t)

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		requests.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	out, err := execute(t, "push", "--state", path, "--url", server.URL, "--instance", "test")
	require.NoError(t, err)
	assert.Contains(t, out, "active=1 history=1 capacity=7")
	// three size gauges and one per unfinished phase
	assert.Equal(t, int32(6), requests.Load())
}

func TestPush_Errors(t *testing.T) {
	path, _ := writeState(t)

	_, err := execute(t, "push", "--state", path)
	assert.ErrorContains(t, err, "no remote write URL")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err = execute(t, "push", "--state", path, "--url", server.URL, "--instance", "test")
	assert.ErrorContains(t, err, "could not be pushed")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cloudstats dev")
}
