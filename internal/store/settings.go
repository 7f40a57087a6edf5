package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetSetting reads one platform setting value into dst. Returns false when
// the key has never been written.
func (s *Store) GetSetting(ctx context.Context, key string, dst any) (bool, error) {
	var raw json.RawMessage
	err := s.db.QueryRow(ctx, `SELECT value FROM platform_settings WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading setting %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decoding setting %q: %w", key, err)
	}
	return true, nil
}

// PutSetting upserts one platform setting value.
func (s *Store) PutSetting(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %q: %w", key, err)
	}
	query := `INSERT INTO platform_settings (key, value) VALUES ($1, $2)
	ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()`
	if _, err := s.db.Exec(ctx, query, key, raw); err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}
