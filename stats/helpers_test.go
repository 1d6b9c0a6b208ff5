package stats

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/cloudstats/activity"
	"github.com/nomis52/cloudstats/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// logBuffer collects log output from concurrent goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func capturingLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// docStore hands out a fixed document and records every save.
type docStore struct {
	mu      sync.Mutex
	doc     *store.Document
	loadErr error
	saveErr error
	saved   []*store.Document
}

func (s *docStore) Load(ctx context.Context) (*store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, s.loadErr
}

func (s *docStore) Save(ctx context.Context, doc *store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, doc)
	return nil
}

func (s *docStore) saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *docStore) last() *store.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return nil
	}
	return s.saved[len(s.saved)-1]
}

var errDiskFull = errors.New("disk full")

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	base := []Option{WithLogger(testLogger()), WithStore(mem), WithStrict(true)}
	return New(context.Background(), append(base, opts...)...), mem
}

// record builds the stored form of an activity that went through phases.
func record(t *testing.T, name string, phases ...activity.Phase) activity.Record {
	t.Helper()
	a := activity.New(activity.NewID("hetzner", "cx22", name))
	for _, p := range phases {
		require.NoError(t, a.Enter(p))
	}
	return a.Record()
}

// assertSameDocument compares documents in their encoded form, which drops monotonic
// clock readings.
func assertSameDocument(t *testing.T, expected, actual *store.Document) {
	t.Helper()
	require.NotNil(t, actual)
	want, err := store.Encode(expected)
	require.NoError(t, err)
	got, err := store.Encode(actual)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func names(activities []*activity.Activity) []string {
	out := make([]string, 0, len(activities))
	for _, a := range activities {
		out = append(out, a.Name())
	}
	return out
}

func recordNames(records []activity.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Name)
	}
	return out
}
