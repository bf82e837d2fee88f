package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-labs/sentinel/pkg/contracts"
)

func sampleRecord(owner string) *contracts.VaultRecord {
	return &contracts.VaultRecord{
		OwnerID:           owner,
		BeneficiaryID:     "heir.test",
		Balance:           500,
		HeartbeatInterval: time.Minute,
		GracePeriod:       time.Minute,
		LastActive:        time.Unix(1000, 0).UTC(),
	}
}

// exerciseStore runs the shared VaultStore contract against any backend.
func exerciseStore(t *testing.T, s VaultStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing.test")
	assert.ErrorIs(t, err, contracts.ErrVaultNotFound)

	require.NoError(t, s.Put(ctx, sampleRecord("a.test")))
	require.NoError(t, s.Put(ctx, sampleRecord("b.test")))

	got, err := s.Get(ctx, "a.test")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got.Balance)
	assert.Equal(t, "heir.test", got.BeneficiaryID)

	// Put replaces the whole record.
	updated := sampleRecord("a.test")
	updated.Balance = 0
	updated.IsCompleted = true
	require.NoError(t, s.Put(ctx, updated))

	got, err = s.Get(ctx, "a.test")
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)
	assert.Zero(t, got.Balance)

	owners, err := s.ListOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.test", "b.test"}, owners)

	require.NoError(t, s.Delete(ctx, "a.test"))
	_, err = s.Get(ctx, "a.test")
	assert.ErrorIs(t, err, contracts.ErrVaultNotFound)
}

func TestMemoryVaultStore(t *testing.T) {
	exerciseStore(t, NewMemoryVaultStore())
}

func TestMemoryVaultStoreCopiesRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVaultStore()

	r := sampleRecord("a.test")
	require.NoError(t, s.Put(ctx, r))
	r.Balance = 9999

	got, err := s.Get(ctx, "a.test")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got.Balance, "stored record must not alias the caller's pointer")

	got.Balance = 1
	again, err := s.Get(ctx, "a.test")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), again.Balance)
}

func TestSQLiteVaultStore(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	s, err := NewSQLiteVaultStore(db)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestSQLiteVaultStoreRoundTripsTimes(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	s, err := NewSQLiteVaultStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	r := sampleRecord("a.test")
	r.WarningTriggeredAt = time.Unix(2000, 0).UTC()
	require.NoError(t, s.Put(ctx, r))

	got, err := s.Get(ctx, "a.test")
	require.NoError(t, err)
	assert.True(t, got.LastActive.Equal(r.LastActive))
	assert.True(t, got.WarningTriggeredAt.Equal(r.WarningTriggeredAt))
	assert.True(t, got.WarningOutstanding())
}
