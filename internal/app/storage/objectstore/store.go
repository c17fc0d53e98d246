// Package objectstore fetches, stores and signs blobs in S3, MinIO or memory.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"voxmeter/internal/app/errors"
	"voxmeter/internal/config"
)

// ErrObjectNotFound is returned by Get for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// Store is the blob capability the pipeline depends on.
type Store interface {
	// Get opens key for reading. Callers must close the body.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Put writes body under key and returns the object URL.
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// PresignPut returns a time-limited upload URL for key.
	PresignPut(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error)

	// PresignGet returns a time-limited download URL for key.
	PresignGet(ctx context.Context, bucket, key string, expires time.Duration) (string, error)

	// URL returns the unsigned object URL.
	URL(bucket, key string) string
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3(ctx, cfg, logger)
	case "minio":
		return NewMinio(ctx, cfg, logger)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// Download copies key into dst and returns the number of bytes written.
func Download(ctx context.Context, store Store, bucket, key, dst string) (int64, error) {
	body, err := store.Get(ctx, bucket, key)
	if err != nil {
		return 0, errors.WrapKind(errors.KindDownloadFailure, err, fmt.Sprintf("failed to fetch %s", key))
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, errors.WrapKind(errors.KindDownloadFailure, err, "failed to create download directory")
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, errors.WrapKind(errors.KindDownloadFailure, err, "failed to create download file")
	}
	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, errors.WrapKind(errors.KindDownloadFailure, err, fmt.Sprintf("failed to read %s", key))
	}
	return n, nil
}

// UploadFile stores the local file at path under key.
func UploadFile(ctx context.Context, store Store, bucket, key, path, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.WrapKind(errors.KindUploadFailure, err, "failed to open upload source")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.WrapKind(errors.KindUploadFailure, err, "failed to stat upload source")
	}

	url, err := store.Put(ctx, bucket, key, f, info.Size(), contentType)
	if err != nil {
		return "", errors.WrapKind(errors.KindUploadFailure, err, fmt.Sprintf("failed to upload %s", key))
	}
	return url, nil
}
