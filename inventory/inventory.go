// Package inventory lists the resources that are currently alive, for the
// reconciliation sweep.
//
// Two sources are provided: a Snapshot that an orchestrator pushes to, and an SSHLister
// that runs a command on a remote host. Both produce one activity.ID per live resource.
package inventory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nomis52/cloudstats/activity"
)

// ErrNoSnapshot is returned by Snapshot.List before anything was pushed. Sweeping against
// an empty inventory would complete every launched activity.
var ErrNoSnapshot = errors.New("no inventory snapshot received yet")

// Snapshot holds the last inventory pushed by an orchestrator.
type Snapshot struct {
	mu      sync.RWMutex
	ids     []activity.ID
	updated time.Time
}

// NewSnapshot creates an empty Snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Set replaces the live resources.
func (s *Snapshot) Set(ids []activity.ID) {
	cp := make([]activity.ID, len(ids))
	copy(cp, ids)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = cp
	s.updated = time.Now()
}

// Updated returns when Set was last called, or the zero time.
func (s *Snapshot) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// List returns the live resources of the last Set.
func (s *Snapshot) List(ctx context.Context) ([]activity.ID, error) {
	ids, _, err := s.ListSnapshot(ctx)
	return ids, err
}

// ListSnapshot returns the live resources of the last Set and when they were set.
func (s *Snapshot) ListSnapshot(ctx context.Context) ([]activity.ID, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.updated.IsZero() {
		return nil, time.Time{}, ErrNoSnapshot
	}
	cp := make([]activity.ID, len(s.ids))
	copy(cp, s.ids)
	return cp, s.updated, nil
}

// ParseLines reads one activity ID per line in the form cloud/template/name#nonce, as
// written by activity.ID.String. Blank lines and lines starting with "#" are skipped.
func ParseLines(r io.Reader) ([]activity.ID, error) {
	var ids []activity.ID
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := activity.ParseID(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	return ids, nil
}
