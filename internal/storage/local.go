package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPublishNotConfigured is returned by Publish when no remote store is set up.
var ErrPublishNotConfigured = errors.New("publishing is not configured")

// LocalStorage implements Storage on a local directory. It cannot publish.
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates the directory if needed. An empty dir selects
// a clipstitch directory under os.TempDir().
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "clipstitch")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStorage{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// Save writes data to <dir>/<base>_<random><ext>.
func (s *LocalStorage) Save(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	name = filepath.Base(name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "upload"
	}

	f, err := os.CreateTemp(s.dir, base+"_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close file: %w", err)
	}

	return fileName, nil
}

// Open opens a stored file for reading.
func (s *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	f, err := os.Open(path) // #nosec G304 - path comes from a job record
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return f, nil
}

// Remove deletes the given files, ignoring ones already gone and returning
// the first failure.
func (s *LocalStorage) Remove(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Publish is not supported by LocalStorage.
func (s *LocalStorage) Publish(_ context.Context, _, _ string) (string, error) {
	return "", ErrPublishNotConfigured
}
