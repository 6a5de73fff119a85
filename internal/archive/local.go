package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	avcfs "github.com/avclabs/avc/internal/infra/fs"
	"github.com/avclabs/avc/internal/verify"
)

// LocalGateway archives artifacts on the local filesystem.
// Layout: <baseDir>/<ceremony>/<executionID>/<name> plus a sibling
// <name>.meta.json holding the artifact metadata.
type LocalGateway struct {
	fs      afero.Fs
	baseDir string

	now func() time.Time
}

// NewLocalGateway creates a filesystem archive rooted at baseDir.
func NewLocalGateway(fsys afero.Fs, baseDir string) (*LocalGateway, error) {
	if err := fsys.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &LocalGateway{
		fs:      fsys,
		baseDir: baseDir,
		now:     time.Now,
	}, nil
}

func (g *LocalGateway) executionDir(ceremony, executionID string) string {
	return filepath.Join(g.baseDir, verify.Slugify(ceremony), executionID)
}

// Save writes the artifact and its metadata document.
func (g *LocalGateway) Save(_ context.Context, req SaveRequest) (*Metadata, error) {
	dir := g.executionDir(req.Ceremony, req.ExecutionID)
	if err := g.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create execution archive directory: %w", err)
	}

	contentPath := filepath.Join(dir, req.Name)
	if err := avcfs.WriteFileAtomic(g.fs, contentPath, req.Content); err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	meta := Metadata{
		Ceremony:    req.Ceremony,
		ExecutionID: req.ExecutionID,
		Name:        req.Name,
		StoragePath: contentPath,
		ContentType: req.ContentType,
		Size:        int64(len(req.Content)),
		ArchivedAt:  g.now().UTC(),
		Metadata:    req.Metadata,
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal artifact metadata: %w", err)
	}
	if err := avcfs.WriteFileAtomic(g.fs, metaPath(contentPath), metaJSON); err != nil {
		return nil, fmt.Errorf("write artifact metadata: %w", err)
	}

	return &meta, nil
}

// Load reads one archived artifact back.
func (g *LocalGateway) Load(_ context.Context, ceremony, executionID, name string) (*Artifact, error) {
	contentPath := filepath.Join(g.executionDir(ceremony, executionID), name)

	metaJSON, err := afero.ReadFile(g.fs, metaPath(contentPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s/%s", ErrArtifactNotFound, ceremony, executionID, name)
		}
		return nil, fmt.Errorf("read artifact metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal artifact metadata: %w", err)
	}

	content, err := afero.ReadFile(g.fs, contentPath)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	return &Artifact{Content: content, Metadata: meta}, nil
}

// List returns the metadata of every artifact archived for one execution.
// A missing execution directory is an empty list, not an error.
func (g *LocalGateway) List(_ context.Context, ceremony, executionID string) ([]*Metadata, error) {
	dir := g.executionDir(ceremony, executionID)

	entries, err := afero.ReadDir(g.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Metadata{}, nil
		}
		return nil, fmt.Errorf("read execution archive directory: %w", err)
	}

	var metas []*Metadata
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" || !isMetaName(entry.Name()) {
			continue
		}
		metaJSON, err := afero.ReadFile(g.fs, filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var meta Metadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			continue
		}
		metas = append(metas, &meta)
	}
	return metas, nil
}

// Delete removes everything archived for one execution.
func (g *LocalGateway) Delete(_ context.Context, ceremony, executionID string) error {
	if err := g.fs.RemoveAll(g.executionDir(ceremony, executionID)); err != nil {
		return fmt.Errorf("delete execution archive: %w", err)
	}
	return nil
}

func metaPath(contentPath string) string {
	return contentPath + ".meta.json"
}

func isMetaName(name string) bool {
	const suffix = ".meta.json"
	return len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix
}
