// Package apikey issues, validates, rotates, and revokes project API keys.
package apikey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Marczelloo/atlas-hub/internal/auth"
	"github.com/Marczelloo/atlas-hub/internal/crypto"
	"github.com/Marczelloo/atlas-hub/internal/store"
)

// Service encapsulates API key business logic.
type Service struct {
	pool   *pgxpool.Pool
	store  *store.Store
	logger *slog.Logger
}

// NewService creates an API key Service backed by the platform pool.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{
		pool:   pool,
		store:  store.New(pool),
		logger: logger,
	}
}

// CreateResult carries a stored key row plus the plaintext, which is
// returned exactly once.
type CreateResult struct {
	Key    store.APIKey `json:"key"`
	RawKey string       `json:"raw_key"`
}

// Create generates a new key of the given type, stores its hash, and
// returns the raw key once.
func (s *Service) Create(ctx context.Context, projectID uuid.UUID, keyType string, expiresAt *time.Time) (CreateResult, error) {
	if keyType != crypto.KeyTypePublishable && keyType != crypto.KeyTypeSecret {
		return CreateResult{}, fmt.Errorf("unknown key type %q", keyType)
	}

	raw, hash, prefix := crypto.GenerateAPIKey(keyType)
	row, err := s.store.CreateAPIKey(ctx, projectID, keyType, hash, prefix, expiresAt)
	if err != nil {
		return CreateResult{}, fmt.Errorf("creating api key: %w", err)
	}
	return CreateResult{Key: row, RawKey: raw}, nil
}

// List returns all keys for a project (hashes omitted from JSON).
func (s *Service) List(ctx context.Context, projectID uuid.UUID) ([]store.APIKey, error) {
	keys, err := s.store.ListAPIKeys(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	return keys, nil
}

// Validate resolves a raw key to its project context, or nil when no active
// key matches.
//
// The hash is computed once, then compared against every active key under a
// constant-time comparison. The linear scan is deliberate: an index lookup
// on the hash would leak through timing what the comparison is protecting.
func (s *Service) Validate(ctx context.Context, rawKey string) (*auth.ProjectContext, error) {
	if rawKey == "" {
		return nil, nil
	}

	hash := crypto.HashKey(rawKey)
	keys, err := s.store.ListActiveAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active keys: %w", err)
	}

	for i := range keys {
		if crypto.HashesEqual(hash, keys[i].KeyHash) {
			return &auth.ProjectContext{
				ProjectID: keys[i].ProjectID,
				KeyID:     keys[i].ID,
				KeyType:   keys[i].KeyType,
			}, nil
		}
	}
	return nil, nil
}

// Rotate revokes all active keys of the given type and issues a replacement,
// in one transaction.
func (s *Service) Rotate(ctx context.Context, projectID uuid.UUID, keyType string) (CreateResult, error) {
	if keyType != crypto.KeyTypePublishable && keyType != crypto.KeyTypeSecret {
		return CreateResult{}, fmt.Errorf("unknown key type %q", keyType)
	}

	raw, hash, prefix := crypto.GenerateAPIKey(keyType)

	var row store.APIKey
	err := store.WithTx(ctx, s.pool, func(tx *store.Store) error {
		if err := tx.RevokeActiveAPIKeysByType(ctx, projectID, keyType); err != nil {
			return err
		}
		var err error
		row, err = tx.CreateAPIKey(ctx, projectID, keyType, hash, prefix, nil)
		return err
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("rotating %s key: %w", keyType, err)
	}

	s.logger.Info("api key rotated", "project_id", projectID, "key_type", keyType)
	return CreateResult{Key: row, RawKey: raw}, nil
}

// Revoke sets revoked_at on a key iff it is currently active.
func (s *Service) Revoke(ctx context.Context, keyID uuid.UUID) error {
	if err := s.store.RevokeAPIKey(ctx, keyID); err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	return nil
}
