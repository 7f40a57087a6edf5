package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FileMetadata records an object expected to exist in the project's physical
// bucket. Rows are written on presigned-upload issuance, so they are
// best-effort — the object store is the ground truth.
type FileMetadata struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	BucketName  string    `json:"bucket_name"`
	ObjectKey   string    `json:"object_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// UpsertFileMetadata inserts or refreshes the metadata row keyed by
// (project, object key).
func (s *Store) UpsertFileMetadata(ctx context.Context, f FileMetadata) (FileMetadata, error) {
	query := `INSERT INTO file_metadata (project_id, bucket_name, object_key, content_type, size_bytes)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (project_id, object_key)
	DO UPDATE SET bucket_name = $2, content_type = $4, size_bytes = $5
	RETURNING id, project_id, bucket_name, object_key, content_type, size_bytes, created_at`

	var out FileMetadata
	err := s.db.QueryRow(ctx, query, f.ProjectID, f.BucketName, f.ObjectKey, f.ContentType, f.SizeBytes).Scan(
		&out.ID, &out.ProjectID, &out.BucketName, &out.ObjectKey, &out.ContentType, &out.SizeBytes, &out.CreatedAt,
	)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("upserting file metadata: %w", err)
	}
	return out, nil
}

// ListFileMetadata returns a project's file metadata, optionally filtered to
// one logical bucket.
func (s *Store) ListFileMetadata(ctx context.Context, projectID uuid.UUID, bucketName string, limit int) ([]FileMetadata, error) {
	query := `SELECT id, project_id, bucket_name, object_key, content_type, size_bytes, created_at
	FROM file_metadata WHERE project_id = $1 AND ($2 = '' OR bucket_name = $2)
	ORDER BY created_at DESC LIMIT $3`
	rows, err := s.db.Query(ctx, query, projectID, bucketName, limit)
	if err != nil {
		return nil, fmt.Errorf("listing file metadata: %w", err)
	}
	defer rows.Close()

	var items []FileMetadata
	for rows.Next() {
		var f FileMetadata
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.BucketName, &f.ObjectKey, &f.ContentType, &f.SizeBytes, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning file metadata row: %w", err)
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating file metadata rows: %w", err)
	}
	return items, nil
}

// DeleteFileMetadata removes the metadata row for one object.
func (s *Store) DeleteFileMetadata(ctx context.Context, projectID uuid.UUID, objectKey string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM file_metadata WHERE project_id = $1 AND object_key = $2`, projectID, objectKey); err != nil {
		return fmt.Errorf("deleting file metadata: %w", err)
	}
	return nil
}

// DeleteAllFileMetadata removes every metadata row for a project.
func (s *Store) DeleteAllFileMetadata(ctx context.Context, projectID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM file_metadata WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("deleting file metadata: %w", err)
	}
	return nil
}

// SumFileSizes returns the total recorded object size for a project.
func (s *Store) SumFileSizes(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COALESCE(sum(size_bytes), 0) FROM file_metadata WHERE project_id = $1`, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("summing file sizes: %w", err)
	}
	return n, nil
}
