// Package objstore stores raw uploaded statement files. Two implementations
// exist: Google Cloud Storage for deployments and a local filesystem store
// for development and tests.
package objstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/mfigueredo/spendy/internal/pipeline"
)

// GCSStore keeps statement blobs in a Google Cloud Storage bucket. It
// assumes Application Default Credentials are configured.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a store writing into the given bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("objstore: create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Put uploads data under objectName and returns the gs:// URI of the object.
func (s *GCSStore) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("objstore: write object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("objstore: finalize object %s: %w", objectName, err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

// Fetch downloads the object bytes for a gs:// URI produced by Put.
func (s *GCSStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	bucket, object, err := splitGCSURI(path)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("objstore: read object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("objstore: read bytes: %w", err)
	}
	return data, nil
}

// Delete removes the object for a gs:// URI produced by Put.
func (s *GCSStore) Delete(ctx context.Context, path string) error {
	bucket, object, err := splitGCSURI(path)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(bucket).Object(object).Delete(ctx); err != nil {
		return fmt.Errorf("objstore: delete object %s/%s: %w", bucket, object, err)
	}
	return nil
}

// Close releases the underlying storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func splitGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("objstore: invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("objstore: invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

var _ pipeline.ObjectStore = (*GCSStore)(nil)
