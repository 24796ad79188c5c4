package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilesystemStorage keeps objects under a root directory.
type FilesystemStorage struct {
	root    string
	baseURL string
}

// NewFilesystemStorage creates root if needed. Returned URLs are baseURL
// joined with the object key.
func NewFilesystemStorage(root, baseURL string) (*FilesystemStorage, error) {
	if root == "" {
		return nil, errors.New("filesystem storage root is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FilesystemStorage{root: root, baseURL: baseURL}, nil
}

func (s *FilesystemStorage) path(key string) (string, string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Store implements Storage.
func (s *FilesystemStorage) Store(_ context.Context, data []byte, key string) (string, error) {
	cleaned, target, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	// Write then rename so readers never see a partial object.
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	return joinURL(s.baseURL, cleaned), nil
}

// Delete implements Storage.
func (s *FilesystemStorage) Delete(_ context.Context, key string) error {
	_, target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// HealthCheck implements Storage.
func (s *FilesystemStorage) HealthCheck(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("filesystem storage unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filesystem storage root %s is not a directory", s.root)
	}
	return nil
}
