package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("object not found")

// Cache-control values used across the service. Content-addressed paths are
// immutable forever; pointer and index documents are short-lived or uncached.
const (
	CacheImmutable = "public, max-age=31536000, immutable"
	CacheShort     = "public, max-age=60"
	CacheNone      = "no-store"
)

// PutOptions carries the HTTP metadata persisted alongside an object.
type PutOptions struct {
	ContentType  string
	CacheControl string
}

// ObjectInfo describes a stored object without its body.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	CacheControl string
}

// ListOptions selects a key range. Cursor is the last key of the previous
// page; listing resumes strictly after it.
type ListOptions struct {
	Prefix string
	Cursor string
	Limit  int
}

// ListResult is one page of keys under a prefix.
type ListResult struct {
	Objects   []ObjectInfo
	Cursor    string
	Truncated bool
}

// Store defines the object/blob store interface. Content-addressed keys are
// write-once; only the render pointer and index documents are overwritten.
type Store interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error

	// Get returns the object body and metadata, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error)

	// Head returns object metadata without the body, or ErrNotFound.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns one page of objects whose keys start with opts.Prefix,
	// in lexicographic key order.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
}
