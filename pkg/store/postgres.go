package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sentinel-labs/sentinel/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresVaultStore is the Postgres-backed VaultStore, using the same
// blob-per-row shape as the SQLite variant.
type PostgresVaultStore struct {
	db *sql.DB
}

// NewPostgresVaultStore wraps an opened database and ensures the schema.
func NewPostgresVaultStore(db *sql.DB) (*PostgresVaultStore, error) {
	s := &PostgresVaultStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresVaultStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS vaults (
        owner_id   TEXT PRIMARY KEY,
        record     JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *PostgresVaultStore) Get(ctx context.Context, ownerID string) (*contracts.VaultRecord, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM vaults WHERE owner_id = $1`, ownerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrVaultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query vault %s: %w", ownerID, err)
	}

	var record contracts.VaultRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode vault %s: %w", ownerID, err)
	}
	return &record, nil
}

func (s *PostgresVaultStore) Put(ctx context.Context, record *contracts.VaultRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode vault %s: %w", record.OwnerID, err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO vaults (owner_id, record, updated_at) VALUES ($1, $2, $3)
        ON CONFLICT (owner_id) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`,
		record.OwnerID, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store vault %s: %w", record.OwnerID, err)
	}
	return nil
}

func (s *PostgresVaultStore) Delete(ctx context.Context, ownerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vaults WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("delete vault %s: %w", ownerID, err)
	}
	return nil
}

func (s *PostgresVaultStore) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id FROM vaults ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return owners, nil
}
