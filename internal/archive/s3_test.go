package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Gateway_SaveAndLoad(t *testing.T) {
	client := newMemS3()
	g := NewS3GatewayWithClient(client, "avc-archive", "avc/prod")

	meta, err := g.Save(context.Background(), SaveRequest{
		Ceremony:    "Release Notes",
		ExecutionID: "release-notes-20260826-100000",
		Name:        "document.md",
		Content:     []byte("# Notes\n"),
		ContentType: "text/markdown",
		Metadata:    map[string]string{"model": "mock-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://avc-archive/avc/prod/release-notes/release-notes-20260826-100000/document.md", meta.StoragePath)
	assert.Equal(t, int64(8), meta.Size)
	// content + metadata object
	assert.Equal(t, 2, client.count())

	art, err := g.Load(context.Background(), "Release Notes", "release-notes-20260826-100000", "document.md")
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n", string(art.Content))
	assert.Equal(t, "text/markdown", art.Metadata.ContentType)
	assert.Equal(t, "mock-1", art.Metadata.Metadata["model"])
}

func TestS3Gateway_LoadMissing(t *testing.T) {
	g := NewS3GatewayWithClient(newMemS3(), "avc-archive", "")

	_, err := g.Load(context.Background(), "docs", "docs-20260826-100000", "document.md")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestS3Gateway_ListAndDelete(t *testing.T) {
	client := newMemS3()
	g := NewS3GatewayWithClient(client, "avc-archive", "")
	ctx := context.Background()

	for _, name := range []string{"document.md", "answers.json"} {
		_, err := g.Save(ctx, SaveRequest{
			Ceremony:    "docs",
			ExecutionID: "docs-20260826-100000",
			Name:        name,
			Content:     []byte("x"),
			ContentType: "text/plain",
		})
		require.NoError(t, err)
	}
	_, err := g.Save(ctx, SaveRequest{
		Ceremony:    "docs",
		ExecutionID: "docs-20260827-100000",
		Name:        "document.md",
		Content:     []byte("y"),
		ContentType: "text/plain",
	})
	require.NoError(t, err)

	metas, err := g.List(ctx, "docs", "docs-20260826-100000")
	require.NoError(t, err)
	require.Len(t, metas, 2)

	require.NoError(t, g.Delete(ctx, "docs", "docs-20260826-100000"))

	metas, err = g.List(ctx, "docs", "docs-20260826-100000")
	require.NoError(t, err)
	assert.Empty(t, metas)

	// The other execution is untouched.
	metas, err = g.List(ctx, "docs", "docs-20260827-100000")
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}
