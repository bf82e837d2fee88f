//go:build gcp

package archive

import (
	"context"
	"fmt"
)

func newGCSStore(ctx context.Context, cfg Config) (Store, error) {
	if cfg.GCSBucket == "" {
		return nil, fmt.Errorf("GCS bucket is required for the gcs backend")
	}
	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: cfg.GCSBucket,
		Prefix: cfg.GCSPrefix,
	})
}
