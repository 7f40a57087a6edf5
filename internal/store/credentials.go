package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Principal names one of the two database roles every project carries.
const (
	PrincipalOwner = "owner"
	PrincipalApp   = "app"
)

// Credential is an encrypted tenant database connection descriptor. Exactly
// two rows exist per project, one per principal.
type Credential struct {
	ProjectID  uuid.UUID
	Principal  string
	Ciphertext string
	IV         string
	AuthTag    string
	CreatedAt  time.Time
}

// CreateCredential inserts an encrypted credential row.
func (s *Store) CreateCredential(ctx context.Context, c Credential) error {
	query := `INSERT INTO project_db_creds (project_id, principal, ciphertext, iv, auth_tag)
	VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.Exec(ctx, query, c.ProjectID, c.Principal, c.Ciphertext, c.IV, c.AuthTag); err != nil {
		return fmt.Errorf("creating credential: %w", err)
	}
	return nil
}

// GetCredential returns the encrypted credential for (project, principal).
func (s *Store) GetCredential(ctx context.Context, projectID uuid.UUID, principal string) (Credential, error) {
	query := `SELECT project_id, principal, ciphertext, iv, auth_tag, created_at
	FROM project_db_creds WHERE project_id = $1 AND principal = $2`

	var c Credential
	err := s.db.QueryRow(ctx, query, projectID, principal).Scan(
		&c.ProjectID, &c.Principal, &c.Ciphertext, &c.IV, &c.AuthTag, &c.CreatedAt,
	)
	if err != nil {
		return Credential{}, fmt.Errorf("getting %s credential: %w", principal, err)
	}
	return c, nil
}

// DeleteCredentials removes both credential rows for a project.
func (s *Store) DeleteCredentials(ctx context.Context, projectID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM project_db_creds WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}
