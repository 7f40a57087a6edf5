package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKey is a hashed project API key. The plaintext is returned exactly once
// at creation and never stored.
type APIKey struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID uuid.UUID  `json:"project_id"`
	KeyType   string     `json:"key_type"`
	KeyHash   string     `json:"-"`
	KeyPrefix string     `json:"key_prefix"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the key is currently usable.
func (k APIKey) Active(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

const apiKeyColumns = `id, project_id, key_type, key_hash, key_prefix, created_at, expires_at, revoked_at`

func scanAPIKey(row pgx.Row) (APIKey, error) {
	var k APIKey
	err := row.Scan(&k.ID, &k.ProjectID, &k.KeyType, &k.KeyHash, &k.KeyPrefix,
		&k.CreatedAt, &k.ExpiresAt, &k.RevokedAt)
	return k, err
}

func scanAPIKeys(rows pgx.Rows) ([]APIKey, error) {
	defer rows.Close()
	var items []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.ProjectID, &k.KeyType, &k.KeyHash, &k.KeyPrefix,
			&k.CreatedAt, &k.ExpiresAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		items = append(items, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api key rows: %w", err)
	}
	return items, nil
}

// CreateAPIKey inserts a hashed key row.
func (s *Store) CreateAPIKey(ctx context.Context, projectID uuid.UUID, keyType, hash, prefix string, expiresAt *time.Time) (APIKey, error) {
	query := `INSERT INTO api_keys (project_id, key_type, key_hash, key_prefix, expires_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + apiKeyColumns

	k, err := scanAPIKey(s.db.QueryRow(ctx, query, projectID, keyType, hash, prefix, expiresAt))
	if err != nil {
		return APIKey{}, fmt.Errorf("creating api key: %w", err)
	}
	return k, nil
}

// GetAPIKey returns a key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id uuid.UUID) (APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return scanAPIKey(s.db.QueryRow(ctx, query, id))
}

// ListAPIKeys returns all keys for a project, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, projectID uuid.UUID) ([]APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE project_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

// ListActiveAPIKeys returns every key that is not revoked and not expired,
// across all projects. The key service scans these for constant-time hash
// comparison.
func (s *Store) ListActiveAPIKeys(ctx context.Context) ([]APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys
	WHERE revoked_at IS NULL AND (expires_at IS NULL OR expires_at > now())`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing active api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

// RevokeAPIKey sets revoked_at iff the key is currently active.
func (s *Store) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE api_keys SET revoked_at = now()
	WHERE id = $1 AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > now())`
	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RevokeActiveAPIKeysByType revokes all active keys of one type for a project.
func (s *Store) RevokeActiveAPIKeysByType(ctx context.Context, projectID uuid.UUID, keyType string) error {
	query := `UPDATE api_keys SET revoked_at = now()
	WHERE project_id = $1 AND key_type = $2 AND revoked_at IS NULL`
	if _, err := s.db.Exec(ctx, query, projectID, keyType); err != nil {
		return fmt.Errorf("revoking %s keys: %w", keyType, err)
	}
	return nil
}

// DeleteAPIKeys removes all key rows for a project.
func (s *Store) DeleteAPIKeys(ctx context.Context, projectID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM api_keys WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("deleting api keys: %w", err)
	}
	return nil
}
