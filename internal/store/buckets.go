package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Bucket is a logical bucket: a named prefix inside a project's single
// physical bucket.
type Bucket struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateBucket inserts a logical bucket row.
func (s *Store) CreateBucket(ctx context.Context, projectID uuid.UUID, name string) (Bucket, error) {
	query := `INSERT INTO buckets (project_id, name) VALUES ($1, $2)
	RETURNING id, project_id, name, created_at`

	var b Bucket
	err := s.db.QueryRow(ctx, query, projectID, name).Scan(&b.ID, &b.ProjectID, &b.Name, &b.CreatedAt)
	if err != nil {
		return Bucket{}, fmt.Errorf("creating bucket: %w", err)
	}
	return b, nil
}

// GetBucket returns the logical bucket with the given name, or pgx.ErrNoRows.
func (s *Store) GetBucket(ctx context.Context, projectID uuid.UUID, name string) (Bucket, error) {
	query := `SELECT id, project_id, name, created_at FROM buckets
	WHERE project_id = $1 AND name = $2`

	var b Bucket
	err := s.db.QueryRow(ctx, query, projectID, name).Scan(&b.ID, &b.ProjectID, &b.Name, &b.CreatedAt)
	return b, err
}

// ListBuckets returns a project's logical buckets.
func (s *Store) ListBuckets(ctx context.Context, projectID uuid.UUID) ([]Bucket, error) {
	query := `SELECT id, project_id, name, created_at FROM buckets
	WHERE project_id = $1 ORDER BY name`
	rows, err := s.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}
	defer rows.Close()

	var items []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning bucket row: %w", err)
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bucket rows: %w", err)
	}
	return items, nil
}

// DeleteBucket removes a logical bucket row.
func (s *Store) DeleteBucket(ctx context.Context, projectID uuid.UUID, name string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM buckets WHERE project_id = $1 AND name = $2`, projectID, name)
	if err != nil {
		return fmt.Errorf("deleting bucket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteBuckets removes all logical bucket rows for a project.
func (s *Store) DeleteBuckets(ctx context.Context, projectID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM buckets WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("deleting buckets: %w", err)
	}
	return nil
}
