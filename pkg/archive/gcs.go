//go:build gcp

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore implements Store on Google Cloud Storage. Blobs are stored under
// their SHA-256 hash.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string // Optional key prefix
}

// NewGCSStore creates a new GCS-backed archive. Uses ADC credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *GCSStore) object(rawHash string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + rawHash + ".blob")
}

func (s *GCSStore) Store(ctx context.Context, data []byte) (string, error) {
	handle := HandleFor(data)
	raw, _ := parseHandle(handle)
	obj := s.object(raw)

	// Content-addressed: skip the write if the object already exists.
	if _, err := obj.Attrs(ctx); err == nil {
		return handle, nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("stat blob %s: %w", handle, err)
	}

	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write blob %s: %w", handle, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("commit blob %s: %w", handle, err)
	}
	return handle, nil
}

func (s *GCSStore) Retrieve(ctx context.Context, handle string) ([]byte, error) {
	raw, err := parseHandle(handle)
	if err != nil {
		return nil, err
	}

	r, err := s.object(raw).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("blob not found: %s", handle)
		}
		return nil, fmt.Errorf("open blob %s: %w", handle, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", handle, err)
	}
	return data, nil
}

func (s *GCSStore) Exists(ctx context.Context, handle string) (bool, error) {
	raw, err := parseHandle(handle)
	if err != nil {
		return false, err
	}

	_, err = s.object(raw).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob %s: %w", handle, err)
}
