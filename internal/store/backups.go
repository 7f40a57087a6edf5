package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Backup types, formats, and statuses.
const (
	BackupTypePlatform = "platform"
	BackupTypeProject  = "project"
	BackupTypeTable    = "table"

	BackupFormatSQL  = "sql"
	BackupFormatCSV  = "csv"
	BackupFormatJSON = "json"

	BackupStatusPending   = "pending"
	BackupStatusRunning   = "running"
	BackupStatusCompleted = "completed"
	BackupStatusFailed    = "failed"
)

// Backup is a dump of the platform database, a project database, or a single
// table. Legal status transitions: pending → running → (completed | failed).
type Backup struct {
	ID            uuid.UUID  `json:"id"`
	ProjectID     *uuid.UUID `json:"project_id,omitempty"`
	BackupType    string     `json:"backup_type"`
	TableName     *string    `json:"table_name,omitempty"`
	ObjectKey     string     `json:"object_key"`
	SizeBytes     int64      `json:"size_bytes"`
	Format        string     `json:"format"`
	Status        string     `json:"status"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	RetentionDays *int       `json:"retention_days,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

const backupColumns = `id, project_id, backup_type, table_name, object_key, size_bytes, format,
	status, error_message, retention_days, expires_at, created_by, created_at, completed_at`

func scanBackup(row pgx.Row) (Backup, error) {
	var b Backup
	err := row.Scan(&b.ID, &b.ProjectID, &b.BackupType, &b.TableName, &b.ObjectKey, &b.SizeBytes,
		&b.Format, &b.Status, &b.ErrorMessage, &b.RetentionDays, &b.ExpiresAt, &b.CreatedBy,
		&b.CreatedAt, &b.CompletedAt)
	return b, err
}

func scanBackups(rows pgx.Rows) ([]Backup, error) {
	defer rows.Close()
	var items []Backup
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.BackupType, &b.TableName, &b.ObjectKey, &b.SizeBytes,
			&b.Format, &b.Status, &b.ErrorMessage, &b.RetentionDays, &b.ExpiresAt, &b.CreatedBy,
			&b.CreatedAt, &b.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning backup row: %w", err)
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating backup rows: %w", err)
	}
	return items, nil
}

// CreateBackup inserts a backup row at status pending.
func (s *Store) CreateBackup(ctx context.Context, b Backup) (Backup, error) {
	query := `INSERT INTO backups (project_id, backup_type, table_name, format, retention_days, expires_at, created_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING ` + backupColumns

	out, err := scanBackup(s.db.QueryRow(ctx, query,
		b.ProjectID, b.BackupType, b.TableName, b.Format, b.RetentionDays, b.ExpiresAt, b.CreatedBy))
	if err != nil {
		return Backup{}, fmt.Errorf("creating backup: %w", err)
	}
	return out, nil
}

// GetBackup returns a backup by ID.
func (s *Store) GetBackup(ctx context.Context, id uuid.UUID) (Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backups WHERE id = $1`
	return scanBackup(s.db.QueryRow(ctx, query, id))
}

// ListBackups returns backups newest first, optionally filtered by project.
func (s *Store) ListBackups(ctx context.Context, projectID *uuid.UUID, limit, offset int) ([]Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backups
	WHERE ($1::uuid IS NULL OR project_id = $1)
	ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.Query(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	return scanBackups(rows)
}

// ListCompletedProjectBackups returns a project's completed project-type
// backups newest first, for the retention classifier.
func (s *Store) ListCompletedProjectBackups(ctx context.Context, projectID uuid.UUID) ([]Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backups
	WHERE project_id = $1 AND backup_type = 'project' AND status = 'completed'
	ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing completed project backups: %w", err)
	}
	return scanBackups(rows)
}

// ListExpiredBackups returns completed backups whose expires_at has passed.
func (s *Store) ListExpiredBackups(ctx context.Context, now time.Time) ([]Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backups
	WHERE expires_at IS NOT NULL AND expires_at < $1 AND status = 'completed'`
	rows, err := s.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("listing expired backups: %w", err)
	}
	return scanBackups(rows)
}

// MarkBackupRunning transitions a backup to running.
func (s *Store) MarkBackupRunning(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE backups SET status = 'running' WHERE id = $1 AND status = 'pending'`
	if _, err := s.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("marking backup running: %w", err)
	}
	return nil
}

// MarkBackupCompleted records the uploaded object and size, and stamps
// completed_at. Only the entry to completed sets these fields.
func (s *Store) MarkBackupCompleted(ctx context.Context, id uuid.UUID, objectKey string, sizeBytes int64) error {
	query := `UPDATE backups SET status = 'completed', object_key = $2, size_bytes = $3, completed_at = now()
	WHERE id = $1 AND status = 'running'`
	if _, err := s.db.Exec(ctx, query, id, objectKey, sizeBytes); err != nil {
		return fmt.Errorf("marking backup completed: %w", err)
	}
	return nil
}

// MarkBackupFailed records the failure message.
func (s *Store) MarkBackupFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `UPDATE backups SET status = 'failed', error_message = $2 WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, errMsg); err != nil {
		return fmt.Errorf("marking backup failed: %w", err)
	}
	return nil
}

// DeleteBackup removes a backup row.
func (s *Store) DeleteBackup(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM backups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting backup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
