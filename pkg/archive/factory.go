package archive

import (
	"context"
	"fmt"
)

// Backend identifies an archive storage backend.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFS     Backend = "fs"
	BackendS3     Backend = "s3"
	BackendGCS    Backend = "gcs"
)

// Config selects and configures an archive backend.
type Config struct {
	Backend Backend

	// FS backend.
	Dir string

	// S3 backend.
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string

	// GCS backend (requires the gcp build tag).
	GCSBucket string
	GCSPrefix string
}

// New creates the configured archive backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendFS:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("archive dir is required for the fs backend")
		}
		return NewFileStore(cfg.Dir)
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3 bucket is required for the s3 backend")
		}
		region := cfg.S3Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
	case BackendGCS:
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}
