package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/avclabs/avc/internal/verify"
)

// S3Config configures the S3 archive backend.
type S3Config struct {
	Bucket string // bucket name, required
	Prefix string // optional key prefix, e.g. "avc/prod"
	Region string // optional region override
}

// S3Gateway archives artifacts in an S3 bucket.
// Key layout: <prefix>/<ceremony>/<executionID>/<name> with a sibling
// <name>.meta.json object holding the artifact metadata.
type S3Gateway struct {
	client S3API
	bucket string
	prefix string

	now func() time.Time
}

// NewS3Gateway creates an S3 archive using the ambient AWS credential chain.
func NewS3Gateway(ctx context.Context, cfg S3Config) (*S3Gateway, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archive: bucket is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}

	return NewS3GatewayWithClient(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

// NewS3GatewayWithClient creates an S3 archive over a caller-supplied client.
// Used by tests to inject an in-memory S3API.
func NewS3GatewayWithClient(client S3API, bucket, prefix string) *S3Gateway {
	return &S3Gateway{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

func (g *S3Gateway) key(ceremony, executionID string, parts ...string) string {
	all := []string{verify.Slugify(ceremony), executionID}
	all = append(all, parts...)
	if g.prefix != "" {
		all = append([]string{g.prefix}, all...)
	}
	return path.Join(all...)
}

// Save uploads the artifact and its metadata object.
func (g *S3Gateway) Save(ctx context.Context, req SaveRequest) (*Metadata, error) {
	contentKey := g.key(req.Ceremony, req.ExecutionID, req.Name)

	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(contentKey),
		Body:        bytes.NewReader(req.Content),
		ContentType: aws.String(req.ContentType),
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("upload artifact to S3: %w", err)
	}

	meta := Metadata{
		Ceremony:    req.Ceremony,
		ExecutionID: req.ExecutionID,
		Name:        req.Name,
		StoragePath: fmt.Sprintf("s3://%s/%s", g.bucket, contentKey),
		ContentType: req.ContentType,
		Size:        int64(len(req.Content)),
		ArchivedAt:  g.now().UTC(),
		Metadata:    req.Metadata,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact metadata: %w", err)
	}

	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(metaPath(contentKey)),
		Body:        bytes.NewReader(metaJSON),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload artifact metadata to S3: %w", err)
	}

	return &meta, nil
}

// Load downloads one archived artifact.
func (g *S3Gateway) Load(ctx context.Context, ceremony, executionID, name string) (*Artifact, error) {
	contentKey := g.key(ceremony, executionID, name)

	metaJSON, err := g.download(ctx, metaPath(contentKey))
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s/%s/%s", ErrArtifactNotFound, ceremony, executionID, name)
		}
		return nil, fmt.Errorf("download artifact metadata from S3: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal artifact metadata: %w", err)
	}

	content, err := g.download(ctx, contentKey)
	if err != nil {
		return nil, fmt.Errorf("download artifact from S3: %w", err)
	}

	return &Artifact{Content: content, Metadata: meta}, nil
}

// List downloads the metadata objects under one execution prefix. Objects
// with unreadable metadata are skipped.
func (g *S3Gateway) List(ctx context.Context, ceremony, executionID string) ([]*Metadata, error) {
	prefix := g.key(ceremony, executionID) + "/"

	listOut, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list S3 objects: %w", err)
	}

	var metas []*Metadata
	for _, obj := range listOut.Contents {
		key := aws.ToString(obj.Key)
		if !strings.HasSuffix(key, ".meta.json") {
			continue
		}
		metaJSON, err := g.download(ctx, key)
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

// Delete removes every object under one execution prefix.
func (g *S3Gateway) Delete(ctx context.Context, ceremony, executionID string) error {
	prefix := g.key(ceremony, executionID) + "/"

	listOut, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return fmt.Errorf("list S3 objects: %w", err)
	}

	for _, obj := range listOut.Contents {
		_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(g.bucket),
			Key:    obj.Key,
		})
		if err != nil {
			return fmt.Errorf("delete S3 object %s: %w", aws.ToString(obj.Key), err)
		}
	}
	return nil
}

func (g *S3Gateway) download(ctx context.Context, key string) ([]byte, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
