// Package archive is the encrypted-blob collaborator: content-addressed
// storage for sealed vault payloads. The registry only ever holds the
// opaque "sha256:<hex>" handle an archive returns; payload bytes never
// touch the vault record store.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is the contract for content-addressed payload storage.
type Store interface {
	// Store persists data and returns its content handle ("sha256:<hex>").
	Store(ctx context.Context, data []byte) (string, error)
	// Retrieve returns the data for a handle.
	Retrieve(ctx context.Context, handle string) ([]byte, error)
	// Exists checks whether a handle is present.
	Exists(ctx context.Context, handle string) (bool, error)
}

// HandleFor computes the content handle for a blob.
func HandleFor(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// parseHandle validates a "sha256:<hex>" handle and returns the hex part.
func parseHandle(handle string) (string, error) {
	if len(handle) < 8 || handle[:7] != "sha256:" {
		return "", fmt.Errorf("invalid handle format: %s", handle)
	}
	raw := handle[7:]
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid handle hex: %w", err)
	}
	return raw, nil
}

// MemoryStore is an in-memory archive for tests and single-process use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Store(ctx context.Context, data []byte) (string, error) {
	handle := HandleFor(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[handle]; !ok {
		buf := make([]byte, len(data))
		copy(buf, data)
		s.blobs[handle] = buf
	}
	return handle, nil
}

func (s *MemoryStore) Retrieve(ctx context.Context, handle string) ([]byte, error) {
	if _, err := parseHandle(handle); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[handle]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", handle)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Exists(ctx context.Context, handle string) (bool, error) {
	if _, err := parseHandle(handle); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[handle]
	return ok, nil
}

// FileStore is a filesystem-backed archive.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates an archive rooted at the given directory.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure archive dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Store(ctx context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := HandleFor(data)
	raw, _ := parseHandle(handle)
	path := filepath.Join(s.baseDir, raw+".blob")

	// Idempotent: content-addressed writes never conflict.
	if _, err := os.Stat(path); err == nil {
		return handle, nil
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return handle, nil
}

func (s *FileStore) Retrieve(ctx context.Context, handle string) ([]byte, error) {
	raw, err := parseHandle(handle)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.baseDir, raw+".blob"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob not found: %s", handle)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(ctx context.Context, handle string) (bool, error) {
	raw, err := parseHandle(handle)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(filepath.Join(s.baseDir, raw+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob: %w", err)
}
