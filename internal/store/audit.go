package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is an append-only record of an administrative or public action.
type AuditEntry struct {
	ID        uuid.UUID       `json:"id"`
	ProjectID *uuid.UUID      `json:"project_id,omitempty"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateAuditEntry appends one audit row.
func (s *Store) CreateAuditEntry(ctx context.Context, e AuditEntry) error {
	details := e.Details
	if details == nil {
		details = json.RawMessage(`{}`)
	}
	query := `INSERT INTO audit_logs (project_id, user_id, action, details) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.Exec(ctx, query, e.ProjectID, e.UserID, e.Action, details); err != nil {
		return fmt.Errorf("creating audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns audit rows newest first, optionally filtered by
// project.
func (s *Store) ListAuditEntries(ctx context.Context, projectID *uuid.UUID, limit, offset int) ([]AuditEntry, error) {
	query := `SELECT id, project_id, user_id, action, details, created_at FROM audit_logs
	WHERE ($1::uuid IS NULL OR project_id = $1)
	ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.Query(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var items []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.UserID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}
	return items, nil
}

// DeleteAuditEntries removes all audit rows for a project. Only project
// deletion calls this.
func (s *Store) DeleteAuditEntries(ctx context.Context, projectID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM audit_logs WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("deleting audit entries: %w", err)
	}
	return nil
}
