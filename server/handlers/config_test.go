package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nomis52/cloudstats/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type mockConfigProvider struct {
	config *config.Config
}

func (m *mockConfigProvider) Config() *config.Config {
	return m.config
}

func TestConfigHandler(t *testing.T) {
	cfg := &config.Config{
		Listener:       config.ListenerConfig{Addr: ":9090"},
		Retention:      50,
		PersistTimeout: 5 * time.Second,
		Store: config.StoreConfig{
			Type: config.StoreS3,
			S3: config.S3Config{
				Endpoint:  "http://minio:9000",
				Bucket:    "stats",
				Key:       "state.json",
				AccessKey: "AKIA",
				SecretKey: "secret",
			},
		},
		Sweep: config.SweepConfig{Schedule: "*/10 * * * *"},
	}

	provider := &mockConfigProvider{config: cfg}
	handler := NewConfigHandler(provider)

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/yaml", w.Header().Get("Content-Type"))

	var resp config.Config
	err := yaml.NewDecoder(w.Body).Decode(&resp)
	require.NoError(t, err)

	assert.Equal(t, ":9090", resp.Listener.Addr)
	assert.Equal(t, 50, resp.Retention)
	assert.Equal(t, "stats", resp.Store.S3.Bucket)
	assert.Equal(t, "REDACTED", resp.Store.S3.AccessKey)
	assert.Equal(t, "REDACTED", resp.Store.S3.SecretKey)
	assert.Equal(t, "*/10 * * * *", resp.Sweep.Schedule)
	// the provider's copy is untouched
	assert.Equal(t, "secret", cfg.Store.S3.SecretKey)
}
