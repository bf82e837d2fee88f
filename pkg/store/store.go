// Package store provides keyed persistent storage for vault records.
// Semantics are deliberately key-value: one record per owner, replaced
// wholesale on every write, so a record can never be observed half-updated.
package store

import (
	"context"

	"github.com/sentinel-labs/sentinel/pkg/contracts"
)

// VaultStore maps an owner identity to at most one VaultRecord.
//
// Get returns contracts.ErrVaultNotFound for absent owners. Put fully
// replaces any existing record for the same owner. Implementations must
// make each individual operation atomic; serialization of read-modify-write
// cycles across operations is the registry's responsibility.
type VaultStore interface {
	Get(ctx context.Context, ownerID string) (*contracts.VaultRecord, error)
	Put(ctx context.Context, record *contracts.VaultRecord) error
	Delete(ctx context.Context, ownerID string) error
	ListOwners(ctx context.Context) ([]string, error)
}
