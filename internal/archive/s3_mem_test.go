package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// memS3 is an in-memory S3API for gateway tests.
type memS3 struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	content     []byte
	contentType string
	metadata    map[string]string
}

func newMemS3() *memS3 {
	return &memS3{objects: make(map[string]memObject)}
}

func (m *memS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	content, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	m.objects[aws.ToString(params.Key)] = memObject{
		content:     content,
		contentType: aws.ToString(params.ContentType),
		metadata:    params.Metadata,
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := aws.ToString(params.Key)
	obj, ok := m.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key: " + key)}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(obj.content)),
		ContentType: aws.String(obj.contentType),
		Metadata:    obj.metadata,
	}, nil
}

func (m *memS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := aws.ToString(params.Prefix)
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var contents []types.Object
	for _, key := range keys {
		contents = append(contents, types.Object{Key: aws.String(key)})
	}
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}

func (m *memS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
