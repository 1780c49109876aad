package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mfigueredo/spendy/internal/pipeline"
)

// FSStore keeps statement blobs under a local directory. Object names map
// directly to file paths relative to the root.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objstore: create root dir %s: %w", dir, err)
	}
	return &FSStore{root: dir}, nil
}

// Put writes data under objectName and returns the object's path.
func (s *FSStore) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	full, err := s.resolve(objectName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("objstore: create dir for %s: %w", objectName, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("objstore: write %s: %w", objectName, err)
	}
	return objectName, nil
}

// Fetch reads back the bytes stored under a path returned by Put.
func (s *FSStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("objstore: read %s: %w", path, err)
	}
	return data, nil
}

// Delete removes the file stored under a path returned by Put.
func (s *FSStore) Delete(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("objstore: delete %s: %w", path, err)
	}
	return nil
}

// resolve joins the object path onto the root, rejecting escapes.
func (s *FSStore) resolve(objectName string) (string, error) {
	clean := filepath.Clean(objectName)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("objstore: invalid object name: %s", objectName)
	}
	return filepath.Join(s.root, clean), nil
}

var _ pipeline.ObjectStore = (*FSStore)(nil)
