// Package store persists the statistics document.
//
// The document holds the active activities and the bounded history as one unit. Three
// sinks are provided:
//
//   - MemoryStore keeps the encoded document in memory (tests, ephemeral deployments)
//   - DiskStore writes a single JSON file, replacing it atomically
//   - S3Store writes a single object to S3 compatible object storage
//
// Load returns (nil, nil) when nothing has been stored yet.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nomis52/cloudstats/activity"
)

// CurrentVersion is the schema version written by this package.
//
// Version 0 documents kept every activity, finished or not, in a single "log" list.
// Version 1 split them into "active" and "history" without guaranteeing that active
// activities were unfinished. Version 2 makes that guarantee.
const CurrentVersion = 2

// ErrCorrupt is returned when a stored document is not valid JSON.
var ErrCorrupt = errors.New("corrupt statistics document")

// Document is the persisted state of the statistics registry.
type Document struct {
	Version  int               `json:"version"`
	Capacity int               `json:"capacity,omitempty"`
	Active   []activity.Record `json:"active"`
	History  []activity.Record `json:"history"`

	// Log is only read, from version 0 documents.
	Log []activity.Record `json:"log,omitempty"`
}

// Encode serializes doc as indented JSON.
func Encode(doc *Document) ([]byte, error) {
	out := *doc
	out.Version = CurrentVersion
	out.Log = nil
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal statistics: %w", err)
	}
	return data, nil
}

// Decode parses a document of any version. Version 0 documents have their log moved
// into History; the registry decides which of those activities are still active.
// Documents written by a newer release are read as far as the known fields allow, see
// Newer.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if len(doc.Log) > 0 {
		doc.History = append(doc.History, doc.Log...)
		doc.Log = nil
	}
	return &doc, nil
}

// Newer reports whether doc was written by a release with a later schema. Fields that
// release added are dropped on the next save.
func (doc *Document) Newer() bool {
	return doc.Version > CurrentVersion
}

func warnIfNewer(logger *slog.Logger, doc *Document, source string) {
	if doc.Newer() {
		logger.Warn("statistics were written by a newer release, unknown fields are ignored",
			"source", source, "version", doc.Version, "supported", CurrentVersion)
	}
}
