// Package storage reads private photo originals from an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotConfigured is returned by the disabled store.
var ErrNotConfigured = errors.New("object store not configured")

// Object is an open object body with its metadata. Callers must close Body.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Store serves image objects by key.
type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// NormalizeKey accepts either an object key or a full object URL. Values that
// start with "http" are reduced to their final path segment.
func NormalizeKey(key string) string {
	if strings.HasPrefix(key, "http") {
		if i := strings.LastIndex(key, "/"); i >= 0 {
			return key[i+1:]
		}
	}
	return key
}

// Disabled is the Store used when no bucket is configured.
type Disabled struct{}

// Get implements Store.
func (Disabled) Get(context.Context, string) (*Object, error) { return nil, ErrNotConfigured }

// PresignGet implements Store.
func (Disabled) PresignGet(context.Context, string) (string, error) { return "", ErrNotConfigured }
