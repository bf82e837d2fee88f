package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sentinel-labs/sentinel/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteVaultStore persists records in a single SQLite table, one JSON blob
// per owner row. The blob-per-row shape keeps the record's serialization
// self-contained: a write either replaces the whole record or nothing.
type SQLiteVaultStore struct {
	db *sql.DB
}

// NewSQLiteVaultStore wraps an opened database and ensures the schema.
func NewSQLiteVaultStore(db *sql.DB) (*SQLiteVaultStore, error) {
	s := &SQLiteVaultStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteVaultStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS vaults (
        owner_id   TEXT PRIMARY KEY,
        record     TEXT NOT NULL,
        updated_at DATETIME NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteVaultStore) Get(ctx context.Context, ownerID string) (*contracts.VaultRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM vaults WHERE owner_id = ?`, ownerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrVaultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query vault %s: %w", ownerID, err)
	}

	var record contracts.VaultRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode vault %s: %w", ownerID, err)
	}
	return &record, nil
}

func (s *SQLiteVaultStore) Put(ctx context.Context, record *contracts.VaultRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode vault %s: %w", record.OwnerID, err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO vaults (owner_id, record, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(owner_id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		record.OwnerID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store vault %s: %w", record.OwnerID, err)
	}
	return nil
}

func (s *SQLiteVaultStore) Delete(ctx context.Context, ownerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vaults WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("delete vault %s: %w", ownerID, err)
	}
	return nil
}

func (s *SQLiteVaultStore) ListOwners(ctx context.Context) ([]string, error) {
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
