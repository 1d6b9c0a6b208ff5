package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DiskStore persists the document to a single JSON file.
type DiskStore struct {
	path   string
	logger *slog.Logger
}

// NewDiskStore creates a disk-backed store writing to path.
// The parent directory is created if it doesn't exist.
func NewDiskStore(path string, logger *slog.Logger) (*DiskStore, error) {
	if path == "" {
		return nil, errors.New("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &DiskStore{
		path:   path,
		logger: logger,
	}, nil
}

// Path returns the file the store writes to.
func (s *DiskStore) Path() string {
	return s.path
}

// Load reads the document from disk. A missing file is not an error.
//
// A file that is not valid JSON is moved aside to <path>.bak-<unix time> so that the next
// save does not overwrite the evidence, and ErrCorrupt is returned.
func (s *DiskStore) Load(ctx context.Context) (*Document, error) {
	doc, err := ReadFile(s.path)
	if errors.Is(err, ErrCorrupt) {
		backup := fmt.Sprintf("%s.bak-%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			s.logger.Error("unable to move aside corrupt state file", "path", s.path, "error", renameErr)
		} else {
			s.logger.Warn("moved aside corrupt state file, please file a bug report attaching it",
				"path", s.path, "backup", backup)
		}
		return nil, err
	}
	if err != nil || doc == nil {
		return nil, err
	}

	warnIfNewer(s.logger, doc, s.path)
	s.logger.Debug("loaded statistics from disk", "path", s.path,
		"active", len(doc.Active), "history", len(doc.History))
	return doc, nil
}

// ReadFile reads the document at path and never modifies the file. A missing file
// returns (nil, nil).
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return Decode(data)
}

// Save writes the document to a temporary file and renames it over the previous one, so a
// crash mid-write never leaves a truncated document behind.
func (s *DiskStore) Save(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.Debug("saved statistics to disk", "path", s.path)
	return nil
}
