// Package storage persists uploaded media files and resolves their public
// URLs. The filesystem store keeps objects under a root directory that the
// HTTP layer serves read-only.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrObjectExists signals a write without the overwrite flag against an
	// existing object path.
	ErrObjectExists = errors.New("storage: object already exists")
	// ErrInvalidPath signals an empty or root-escaping object path.
	ErrInvalidPath = errors.New("storage: invalid object path")

	errMissingRootDir = errors.New("storage: root directory is required")
	errMissingBaseURL = errors.New("storage: public base url is required")
)

// FileStoreConfig configures the filesystem-backed blob store.
type FileStoreConfig struct {
	RootDir       string
	PublicBaseURL string
}

// FileStore writes objects below RootDir and maps them to URLs below
// PublicBaseURL/media/.
type FileStore struct {
	rootDir string
	baseURL string
}

// NewFileStore constructs the store and ensures the root directory exists.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	rootDir := strings.TrimSpace(cfg.RootDir)
	if rootDir == "" {
		return nil, errMissingRootDir
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root directory: %w", err)
	}
	return &FileStore{rootDir: rootDir, baseURL: baseURL}, nil
}

// Upload writes the object bytes at the given path. With overwrite false an
// existing object is left untouched and ErrObjectExists is returned.
func (s *FileStore) Upload(_ context.Context, path string, data []byte, overwrite bool) error {
	localPath, err := s.localPath(path)
	if err != nil {
		return err
	}

	if !overwrite {
		if _, statErr := os.Stat(localPath); statErr == nil {
			return ErrObjectExists
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("storage: stat object: %w", statErr)
		}
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("storage: create object directory: %w", err)
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return fmt.Errorf("storage: write object: %w", err)
	}
	return nil
}

// PublicURL returns the URL from which the object at path is served.
func (s *FileStore) PublicURL(path string) string {
	cleaned := strings.TrimLeft(strings.TrimSpace(path), "/")
	return s.baseURL + "/media/" + cleaned
}

// RootDir exposes the directory the HTTP layer serves as /media.
func (s *FileStore) RootDir() string {
	return s.rootDir
}

func (s *FileStore) localPath(path string) (string, error) {
	cleaned := strings.TrimLeft(strings.TrimSpace(path), "/")
	if cleaned == "" {
		return "", ErrInvalidPath
	}
	localPath := filepath.Join(s.rootDir, filepath.FromSlash(cleaned))
	rootWithSeparator := s.rootDir + string(os.PathSeparator)
	if !strings.HasPrefix(localPath, rootWithSeparator) && localPath != s.rootDir {
		return "", ErrInvalidPath
	}
	return localPath, nil
}
