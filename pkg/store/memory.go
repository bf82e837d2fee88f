package store

import (
	"context"
	"sort"
	"sync"

	"github.com/sentinel-labs/sentinel/pkg/contracts"
)

// MemoryVaultStore is an in-memory VaultStore for tests and single-process
// deployments. Records are copied on the way in and out so callers can
// never mutate stored state through a retained pointer.
type MemoryVaultStore struct {
	mu      sync.RWMutex
	records map[string]contracts.VaultRecord
}

// NewMemoryVaultStore creates an empty in-memory store.
func NewMemoryVaultStore() *MemoryVaultStore {
	return &MemoryVaultStore{records: make(map[string]contracts.VaultRecord)}
}

func (s *MemoryVaultStore) Get(ctx context.Context, ownerID string) (*contracts.VaultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[ownerID]
	if !ok {
		return nil, contracts.ErrVaultNotFound
	}
	out := r
	return &out, nil
}

func (s *MemoryVaultStore) Put(ctx context.Context, record *contracts.VaultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.OwnerID] = *record
	return nil
}

func (s *MemoryVaultStore) Delete(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, ownerID)
	return nil
}

func (s *MemoryVaultStore) ListOwners(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make([]string, 0, len(s.records))
	for id := range s.records {
		owners = append(owners, id)
	}
	sort.Strings(owners)
	return owners, nil
}
