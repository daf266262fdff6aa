package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps attachments under a local base directory. Keys are
// treated as relative paths under BaseDir.
type FileStore struct {
	baseDir string
}

var _ Store = (*FileStore)(nil)

// FileConfig configures a FileStore.
type FileConfig struct {
	BaseDir string
}

func (c FileConfig) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

// NewFileStore creates a FileStore rooted at cfg.BaseDir, creating the
// directory if needed.
func NewFileStore(cfg FileConfig) (*FileStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("create attachment directory: %w", err)
	}
	return &FileStore{baseDir: base}, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) fullPath(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.baseDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return full, nil
}

func (s *FileStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	_ = ctx
	_ = contentType // content type is not recorded for local files

	full, err := s.fullPath(key)
	if err != nil {
		return &StoreError{Op: "Put", Backend: "file", Key: key, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return &StoreError{Op: "Put", Backend: "file", Key: key, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".attach.tmp.*")
	if err != nil {
		return &StoreError{Op: "Put", Backend: "file", Key: key, Err: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return &StoreError{Op: "Put", Backend: "file", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Op: "Put", Backend: "file", Key: key, Err: err}
	}
	if err := os.Rename(tmpName, full); err != nil {
		return &StoreError{Op: "Put", Backend: "file", Key: key, Err: err}
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx

	full, err := s.fullPath(key)
	if err != nil {
		return nil, &StoreError{Op: "Get", Backend: "file", Key: key, Err: err}
	}
	f, err := os.Open(full) // #nosec G304 -- path is validated against the base dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &StoreError{Op: "Get", Backend: "file", Key: key, Err: ErrNotFound}
		}
		return nil, &StoreError{Op: "Get", Backend: "file", Key: key, Err: err}
	}
	return f, nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	_ = ctx

	full, err := s.fullPath(key)
	if err != nil {
		return &StoreError{Op: "Delete", Backend: "file", Key: key, Err: err}
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StoreError{Op: "Delete", Backend: "file", Key: key, Err: err}
	}
	return nil
}
