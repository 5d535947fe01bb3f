package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalObjectStore keeps objects as files under <baseDir>/<bucket>/<key>. It is
// used for local development and tests where no S3 endpoint is available.
type LocalObjectStore struct {
	baseDir string
	bucket  string
}

var _ ObjectStore = (*LocalObjectStore)(nil)

func NewLocalObjectStore(dir, bucket string) (*LocalObjectStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	return &LocalObjectStore{baseDir: baseDir, bucket: bucket}, nil
}

func (s *LocalObjectStore) fullpath(key string) string {
	return filepath.Join(s.baseDir, s.bucket, filepath.FromSlash(key))
}

func (s *LocalObjectStore) Bucket() string {
	return s.bucket
}

func (s *LocalObjectStore) CreateBucket(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.baseDir, s.bucket), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create bucket directory %s/%s: %w", s.baseDir, s.bucket, err)
	}
	return nil
}

func (s *LocalObjectStore) PutObject(ctx context.Context, key string, data io.Reader, contentType string) error {
	path := s.fullpath(key)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s/%s: %w", s.bucket, key, err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s/%s: %w", s.bucket, key, err)
	}

	_, err = io.Copy(dst, data)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// A partial file must not be visible as an object.
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			slog.Error("error removing partial file", "bucket", s.bucket, "key", key, "error", rmErr)
		}
		return fmt.Errorf("failed to write file %s/%s: %w", s.bucket, key, err)
	}

	return nil
}

func (s *LocalObjectStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(s.fullpath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to open file %s/%s: %w", s.bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open file %s/%s: %w", s.bucket, key, err)
	}
	return file, nil
}

func (s *LocalObjectStore) CopyObject(ctx context.Context, srcKey, destKey string) error {
	src, err := s.GetObject(ctx, srcKey)
	if err != nil {
		return fmt.Errorf("failed to copy %s/%s to %s: %w", s.bucket, srcKey, destKey, err)
	}
	defer src.Close()

	return s.PutObject(ctx, destKey, src, "")
}

func (s *LocalObjectStore) DeleteObject(ctx context.Context, key string) error {
	if err := os.Remove(s.fullpath(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete file %s/%s: %w", s.bucket, key, ErrObjectNotFound)
		}
		return fmt.Errorf("failed to delete file %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *LocalObjectStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	info, err := os.Stat(s.fullpath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file %s/%s: %w", s.bucket, key, err)
	}
	return !info.IsDir(), nil
}
