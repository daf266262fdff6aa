// Package attach stores failure-photo attachments for test results.
//
// Stores implement a minimal put/get surface over a backing location -
// a local directory for fully-offline work, or an S3 bucket when the
// technician's kit syncs to shared storage. Authentication for S3 uses
// the SDK default credential chain; stores do not implement custom auth
// logic.
package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Store abstracts attachment storage.
type Store interface {
	// Put writes an attachment under the given key, replacing any
	// existing content.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get returns the attachment content. Returns ErrNotFound if the
	// key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an attachment. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested attachment does not exist.
	ErrNotFound = errors.New("attachment not found")

	// ErrInvalidKey indicates a key that escapes the store's namespace.
	ErrInvalidKey = errors.New("invalid attachment key")
)

// StoreError wraps store-specific errors with context.
type StoreError struct {
	// Op is the operation that failed (e.g., "Put", "Get").
	Op string

	// Backend identifies the store kind ("file", "s3").
	Backend string

	// Key is the attachment key.
	Key string

	// Err is the underlying error.
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err indicates a missing attachment.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Key builds the canonical attachment key for a result's photo:
// <session>/<local result id>/<file name>.
func Key(sessionID, localID, filename string) string {
	return path.Join(sessionID, localID, path.Base(filename))
}

// validateKey rejects empty keys and path escapes.
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	clean := path.Clean("/" + key)
	if strings.Contains(key, "..") || clean == "/" {
		return fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return nil
}
