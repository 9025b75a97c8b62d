package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore implements ObjectStore on the local filesystem. It is the
// default relay backend: documents land under basePath in their dated
// folders and the same tree is served back over the files URL prefix.
type LocalStore struct {
	basePath string
	baseURL  string
}

// NewLocalStore creates the base directory if missing. baseURL is the URL
// prefix the relay serves the tree under (defaults to /files).
func NewLocalStore(basePath, baseURL string) (*LocalStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "/files"
	}
	return &LocalStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// Dir returns the base directory, for wiring a static file handler.
func (l *LocalStore) Dir() string {
	return l.basePath
}

// Put writes the document to disk, creating intermediate dated directories.
func (l *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	rel, err := cleanKey(key)
	if err != nil {
		return err
	}
	target := filepath.Join(l.basePath, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dated dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// PresignGet returns the serving URL for a stored document. Local files are
// served directly, so the expiry is ignored.
func (l *LocalStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	rel, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return l.baseURL + "/" + rel, nil
}

// Delete removes a stored document. Missing files are not an error.
func (l *LocalStore) Delete(_ context.Context, key string) error {
	rel, err := cleanKey(key)
	if err != nil {
		return err
	}
	target := filepath.Join(l.basePath, filepath.FromSlash(rel))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// cleanKey normalizes a slash key and rejects anything that would escape
// the base directory.
func cleanKey(key string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("storage key is empty")
	}
	return cleaned, nil
}
