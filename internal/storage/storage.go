package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// PutOptions carries object headers. Metadata keys are stored as
// user metadata (x-amz-meta-*) by S3-compatible backends.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is the archive target for transcript batches. Keys are
// relative to the store's root and never escape it.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
