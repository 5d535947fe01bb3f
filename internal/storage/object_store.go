package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is a key/value blob store scoped to a single bucket. Every method
// reports failures as errors; none of them silently no-op.
type ObjectStore interface {
	Bucket() string

	CreateBucket(ctx context.Context) error

	PutObject(ctx context.Context, key string, data io.Reader, contentType string) error

	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	CopyObject(ctx context.Context, srcKey, destKey string) error

	DeleteObject(ctx context.Context, key string) error

	ObjectExists(ctx context.Context, key string) (bool, error)
}
