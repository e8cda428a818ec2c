// Package blob abstracts the durable object store used for images and
// attachments. Presigning and bucket management live outside this core; the
// local implementation serves files over the HTTP server's static route.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the object store collaborator contract.
type Store interface {
	// Put writes an object and returns its public reference.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get reads an object's bytes.
	Get(ctx context.Context, key string) ([]byte, error)
	// URL returns the public reference for an existing key.
	URL(key string) string
	// DeletePrefix removes every object under the key prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// FSStore stores objects on the local filesystem.
type FSStore struct {
	dir     string
	baseURL string
}

// NewFSStore creates a filesystem store rooted at dir. baseURL is the
// public URL prefix under which the directory is served.
func NewFSStore(dir, baseURL string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create %s: %w", dir, err)
	}
	return &FSStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Put implements Store.
func (s *FSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	clean, err := s.cleanKey(key)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("blob: mkdir for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("blob: write %s: %w", key, err)
	}
	return s.baseURL + "/" + clean, nil
}

// Get implements Store.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	clean, err := s.cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(clean)))
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", key, err)
	}
	return data, nil
}

// URL implements Store.
func (s *FSStore) URL(key string) string {
	clean, err := s.cleanKey(key)
	if err != nil {
		return ""
	}
	return s.baseURL + "/" + clean
}

// DeletePrefix implements Store.
func (s *FSStore) DeletePrefix(ctx context.Context, prefix string) error {
	clean, err := s.cleanKey(prefix)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("blob: delete prefix %s: %w", prefix, err)
	}
	return nil
}

// cleanKey rejects traversal attempts and normalizes the key.
func (s *FSStore) cleanKey(key string) (string, error) {
	clean := strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+key)), "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("blob: invalid key %q", key)
	}
	return clean, nil
}
