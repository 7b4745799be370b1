// Package blob provides byte-stream access to source and quarantine
// locations. The ingestion core treats every location as an opaque store:
// local filesystem paths and glob patterns, or s3:// URIs.
package blob

import (
	"context"
	"io"
	"strings"
)

// Store is a minimal byte-addressable file store.
type Store interface {
	// List expands a locator (path, glob pattern, or prefix) into concrete
	// object keys.
	List(ctx context.Context, locator string) ([]string, error)
	// Open returns a reader over one object.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Write creates or replaces one object.
	Write(ctx context.Context, key string, r io.Reader) error
	// Remove deletes one object.
	Remove(ctx context.Context, key string) error
	// Join builds a key under a base location.
	Join(base, name string) string
}

// ForURI selects a store implementation for the given locator.
func ForURI(uri string) Store {
	if strings.HasPrefix(uri, "s3://") {
		return NewS3()
	}
	return NewFilesystem()
}
