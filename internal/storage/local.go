package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// LocalStore writes images to a directory served over HTTP at BaseURL.
type LocalStore struct {
	Root    string
	BaseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &LocalStore{Root: filepath.Clean(root), BaseURL: baseURL}, nil
}

func (s *LocalStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	key, err := NewKey(name)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(s.Root, key)
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(dst)
		return "", fmt.Errorf("write image %s: %w", key, copyErr)
	}
	if closeErr != nil {
		os.Remove(dst)
		return "", fmt.Errorf("close image %s: %w", key, closeErr)
	}
	return key, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("invalid image key %q", key)
	}
	if err := os.Remove(filepath.Join(s.Root, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove image %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) URL(key string) string {
	if key == "" {
		return ""
	}
	return path.Join(s.BaseURL, key)
}

var _ ImageStore = (*LocalStore)(nil)
