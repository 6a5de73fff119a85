// Package archive persists ceremony artifacts (generated documents, answer
// sets, verification output) after an execution completes. Two backends are
// provided: the local filesystem under the workspace state directory, and an
// S3 bucket for shared archives.
package archive

import (
	"context"
	"errors"
	"time"
)

// ErrArtifactNotFound is returned when no archived artifact matches.
var ErrArtifactNotFound = errors.New("artifact not found")

// SaveRequest describes one artifact to archive.
type SaveRequest struct {
	Ceremony    string            // ceremony kind, e.g. "release-notes"
	ExecutionID string            // execution the artifact belongs to
	Name        string            // file name within the execution, e.g. "document.md"
	Content     []byte
	ContentType string
	Metadata    map[string]string // optional extra metadata
}

// Metadata describes an archived artifact.
type Metadata struct {
	Ceremony    string            `json:"ceremony"`
	ExecutionID string            `json:"executionId"`
	Name        string            `json:"name"`
	StoragePath string            `json:"storagePath"`
	ContentType string            `json:"contentType"`
	Size        int64             `json:"size"`
	ArchivedAt  time.Time         `json:"archivedAt"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Artifact is an archived artifact with its content loaded.
type Artifact struct {
	Content  []byte
	Metadata Metadata
}

// Gateway is the archive backend contract.
type Gateway interface {
	// Save archives one artifact and returns its stored metadata.
	Save(ctx context.Context, req SaveRequest) (*Metadata, error)

	// Load retrieves a previously archived artifact.
	Load(ctx context.Context, ceremony, executionID, name string) (*Artifact, error)

	// List returns metadata for every artifact archived under one execution.
	List(ctx context.Context, ceremony, executionID string) ([]*Metadata, error)

	// Delete removes all artifacts archived under one execution.
	Delete(ctx context.Context, ceremony, executionID string) error
}
