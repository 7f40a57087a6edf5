package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Cron job types and run statuses.
const (
	CronJobTypeHTTP     = "http"
	CronJobTypePlatform = "platform"

	CronRunStatusRunning = "running"
	CronRunStatusSuccess = "success"
	CronRunStatusFail    = "fail"
	CronRunStatusTimeout = "timeout"
)

// CronJob is a scheduled job. HTTP jobs carry an encrypted header/body pair
// whose plaintext exists only inside a single dispatch; platform jobs name a
// built-in action.
type CronJob struct {
	ID               uuid.UUID       `json:"id"`
	ProjectID        *uuid.UUID      `json:"project_id,omitempty"`
	Name             string          `json:"name"`
	JobType          string          `json:"job_type"`
	CronExpr         string          `json:"cron_expr"`
	Timezone         string          `json:"timezone"`
	URL              *string         `json:"url,omitempty"`
	Method           *string         `json:"method,omitempty"`
	EncryptedHeaders *string         `json:"-"`
	EncryptedBody    *string         `json:"-"`
	Action           *string         `json:"action,omitempty"`
	Config           json.RawMessage `json:"config"`
	Enabled          bool            `json:"enabled"`
	TimeoutMs        int             `json:"timeout_ms"`
	Retries          int             `json:"retries"`
	RetryBackoffMs   int             `json:"retry_backoff_ms"`
	LastRunAt        *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt        *time.Time      `json:"next_run_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// CronJobRun is one attempt of a dispatch.
type CronJobRun struct {
	ID            uuid.UUID  `json:"id"`
	JobID         uuid.UUID  `json:"job_id"`
	AttemptNumber int        `json:"attempt_number"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	DurationMs    *int64     `json:"duration_ms,omitempty"`
	Status        string     `json:"status"`
	HTTPStatus    *int       `json:"http_status,omitempty"`
	ErrorText     *string    `json:"error_text,omitempty"`
	LogPreview    *string    `json:"log_preview,omitempty"`
}

const cronJobColumns = `id, project_id, name, job_type, cron_expr, timezone, url, method,
	encrypted_headers, encrypted_body, action, config, enabled, timeout_ms, retries,
	retry_backoff_ms, last_run_at, next_run_at, created_at, updated_at`

func scanCronJob(row pgx.Row) (CronJob, error) {
	var j CronJob
	err := row.Scan(&j.ID, &j.ProjectID, &j.Name, &j.JobType, &j.CronExpr, &j.Timezone,
		&j.URL, &j.Method, &j.EncryptedHeaders, &j.EncryptedBody, &j.Action, &j.Config,
		&j.Enabled, &j.TimeoutMs, &j.Retries, &j.RetryBackoffMs, &j.LastRunAt, &j.NextRunAt,
		&j.CreatedAt, &j.UpdatedAt)
	return j, err
}

func scanCronJobs(rows pgx.Rows) ([]CronJob, error) {
	defer rows.Close()
	var items []CronJob
	for rows.Next() {
		var j CronJob
		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Name, &j.JobType, &j.CronExpr, &j.Timezone,
			&j.URL, &j.Method, &j.EncryptedHeaders, &j.EncryptedBody, &j.Action, &j.Config,
			&j.Enabled, &j.TimeoutMs, &j.Retries, &j.RetryBackoffMs, &j.LastRunAt, &j.NextRunAt,
			&j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning cron job row: %w", err)
		}
		items = append(items, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cron job rows: %w", err)
	}
	return items, nil
}

// CreateCronJob inserts a job row.
func (s *Store) CreateCronJob(ctx context.Context, j CronJob) (CronJob, error) {
	config := j.Config
	if config == nil {
		config = json.RawMessage(`{}`)
	}
	query := `INSERT INTO cron_jobs (project_id, name, job_type, cron_expr, timezone, url, method,
	encrypted_headers, encrypted_body, action, config, enabled, timeout_ms, retries, retry_backoff_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	RETURNING ` + cronJobColumns

	out, err := scanCronJob(s.db.QueryRow(ctx, query,
		j.ProjectID, j.Name, j.JobType, j.CronExpr, j.Timezone, j.URL, j.Method,
		j.EncryptedHeaders, j.EncryptedBody, j.Action, config, j.Enabled,
		j.TimeoutMs, j.Retries, j.RetryBackoffMs))
	if err != nil {
		return CronJob{}, fmt.Errorf("creating cron job: %w", err)
	}
	return out, nil
}

// GetCronJob returns a job by ID.
func (s *Store) GetCronJob(ctx context.Context, id uuid.UUID) (CronJob, error) {
	query := `SELECT ` + cronJobColumns + ` FROM cron_jobs WHERE id = $1`
	return scanCronJob(s.db.QueryRow(ctx, query, id))
}

// ListCronJobs returns all jobs.
func (s *Store) ListCronJobs(ctx context.Context) ([]CronJob, error) {
	query := `SELECT ` + cronJobColumns + ` FROM cron_jobs ORDER BY created_at`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing cron jobs: %w", err)
	}
	return scanCronJobs(rows)
}

// ListEnabledCronJobs returns all enabled jobs for the scheduler sync.
func (s *Store) ListEnabledCronJobs(ctx context.Context) ([]CronJob, error) {
	query := `SELECT ` + cronJobColumns + ` FROM cron_jobs WHERE enabled ORDER BY created_at`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing enabled cron jobs: %w", err)
	}
	return scanCronJobs(rows)
}

// UpdateCronJob replaces the mutable fields of a job.
func (s *Store) UpdateCronJob(ctx context.Context, j CronJob) (CronJob, error) {
	query := `UPDATE cron_jobs SET name = $2, cron_expr = $3, timezone = $4, url = $5, method = $6,
	encrypted_headers = $7, encrypted_body = $8, action = $9, config = $10, enabled = $11,
	timeout_ms = $12, retries = $13, retry_backoff_ms = $14, updated_at = now()
	WHERE id = $1
	RETURNING ` + cronJobColumns

	return scanCronJob(s.db.QueryRow(ctx, query, j.ID, j.Name, j.CronExpr, j.Timezone,
		j.URL, j.Method, j.EncryptedHeaders, j.EncryptedBody, j.Action, j.Config,
		j.Enabled, j.TimeoutMs, j.Retries, j.RetryBackoffMs))
}

// DeleteCronJob removes a job row.
func (s *Store) DeleteCronJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM cron_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting cron job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateCronJobNextRun persists the next computed fire time.
func (s *Store) UpdateCronJobNextRun(ctx context.Context, id uuid.UUID, nextRunAt time.Time) error {
	if _, err := s.db.Exec(ctx, `UPDATE cron_jobs SET next_run_at = $2 WHERE id = $1`, id, nextRunAt); err != nil {
		return fmt.Errorf("updating next run: %w", err)
	}
	return nil
}

// UpdateCronJobRunTimes refreshes last_run_at and next_run_at after a dispatch.
func (s *Store) UpdateCronJobRunTimes(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt time.Time) error {
	if _, err := s.db.Exec(ctx, `UPDATE cron_jobs SET last_run_at = $2, next_run_at = $3 WHERE id = $1`, id, lastRunAt, nextRunAt); err != nil {
		return fmt.Errorf("updating run times: %w", err)
	}
	return nil
}

// CreateCronJobRun inserts a run row at status running.
func (s *Store) CreateCronJobRun(ctx context.Context, jobID uuid.UUID, attempt int) (CronJobRun, error) {
	query := `INSERT INTO cron_job_runs (job_id, attempt_number)
	VALUES ($1, $2)
	RETURNING id, job_id, attempt_number, started_at, finished_at, duration_ms, status, http_status, error_text, log_preview`

	var r CronJobRun
	err := s.db.QueryRow(ctx, query, jobID, attempt).Scan(
		&r.ID, &r.JobID, &r.AttemptNumber, &r.StartedAt, &r.FinishedAt, &r.DurationMs,
		&r.Status, &r.HTTPStatus, &r.ErrorText, &r.LogPreview,
	)
	if err != nil {
		return CronJobRun{}, fmt.Errorf("creating cron job run: %w", err)
	}
	return r, nil
}

// FinishCronJobRun records the outcome of one attempt.
func (s *Store) FinishCronJobRun(ctx context.Context, id uuid.UUID, status string, httpStatus *int, errorText, logPreview *string, durationMs int64) error {
	query := `UPDATE cron_job_runs SET status = $2, http_status = $3, error_text = $4,
	log_preview = $5, duration_ms = $6, finished_at = now() WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, status, httpStatus, errorText, logPreview, durationMs); err != nil {
		return fmt.Errorf("finishing cron job run: %w", err)
	}
	return nil
}

// ListCronJobRuns returns a job's runs newest first.
func (s *Store) ListCronJobRuns(ctx context.Context, jobID uuid.UUID, limit int) ([]CronJobRun, error) {
	query := `SELECT id, job_id, attempt_number, started_at, finished_at, duration_ms, status, http_status, error_text, log_preview
	FROM cron_job_runs WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2`
	rows, err := s.db.Query(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing cron job runs: %w", err)
	}
	defer rows.Close()

	var items []CronJobRun
	for rows.Next() {
		var r CronJobRun
		if err := rows.Scan(&r.ID, &r.JobID, &r.AttemptNumber, &r.StartedAt, &r.FinishedAt,
			&r.DurationMs, &r.Status, &r.HTTPStatus, &r.ErrorText, &r.LogPreview); err != nil {
			return nil, fmt.Errorf("scanning cron job run row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cron job run rows: %w", err)
	}
	return items, nil
}
