package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Project is a tenant unit: it owns a database, two roles, an object-store
// namespace, API keys, and metadata.
type Project struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const projectColumns = `id, name, slug, description, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreateProject inserts a project row and returns it.
func (s *Store) CreateProject(ctx context.Context, id uuid.UUID, name, slug string, description *string) (Project, error) {
	query := `INSERT INTO projects (id, name, slug, description)
	VALUES ($1, $2, $3, $4)
	RETURNING ` + projectColumns

	p, err := scanProject(s.db.QueryRow(ctx, query, id, name, slug, description))
	if err != nil {
		return Project{}, fmt.Errorf("creating project: %w", err)
	}
	return p, nil
}

// GetProject returns a project by ID.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return scanProject(s.db.QueryRow(ctx, query, id))
}

// GetProjectBySlug returns a project by slug.
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE slug = $1`
	return scanProject(s.db.QueryRow(ctx, query, slug))
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var items []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}
	return items, nil
}

// UpdateProject updates name and description.
func (s *Store) UpdateProject(ctx context.Context, id uuid.UUID, name string, description *string) (Project, error) {
	query := `UPDATE projects SET name = $2, description = $3, updated_at = now()
	WHERE id = $1
	RETURNING ` + projectColumns
	return scanProject(s.db.QueryRow(ctx, query, id, name, description))
}

// DeleteProject removes a project row.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountProjects returns the number of projects.
func (s *Store) CountProjects(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM projects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting projects: %w", err)
	}
	return n, nil
}
