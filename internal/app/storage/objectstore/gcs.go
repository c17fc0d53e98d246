package objectstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"voxmeter/internal/config"
)

// GCSEndpoint is the S3-compatible XML API of Cloud Storage.
const GCSEndpoint = "storage.googleapis.com"

// NewGCS reaches Cloud Storage through its XML API with HMAC keys.
// Speech reads gs:// URIs, so audio staged for it must land here rather
// than in the artifact store.
func NewGCS(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Minio, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = GCSEndpoint
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	cfg.UseSSL = true
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("GCS HMAC access key and secret are required")
	}
	return NewMinio(ctx, cfg, logger)
}

// NewStaging builds the store behind cfg.StagingBucket.
func NewStaging(ctx context.Context, cfg config.GoogleConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Staging.Backend {
	case "", "gcs":
		return NewGCS(ctx, cfg.Staging, logger)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported staging backend %q", cfg.Staging.Backend)
	}
}
