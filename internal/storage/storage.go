// Package storage keeps uploaded sources and export outputs on local disk and
// optionally publishes finished exports to S3.
package storage

import (
	"context"
	"io"
)

// Storage is the file store behind the studio.
type Storage interface {
	// Dir returns the directory outputs and uploads are kept in.
	Dir() string

	// Save writes data to a new uniquely named file and returns its path.
	// The name is used as a prefix; its extension is kept.
	Save(ctx context.Context, name string, data io.Reader) (path string, err error)

	// Open returns a reader for a stored file. The caller closes it.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes the given files, continuing past failures.
	Remove(ctx context.Context, paths []string) error

	// Publish uploads the file at path under key and returns its public URL.
	// Returns ErrPublishNotConfigured when no remote store is configured.
	Publish(ctx context.Context, key, path string) (url string, err error)
}
