package crud

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Marczelloo/atlas-hub/internal/apperr"
	"github.com/Marczelloo/atlas-hub/internal/telemetry"
)

// maxInsertRows bounds a single insert request.
const maxInsertRows = 1000

// Service executes compiled CRUD statements on the app privilege tier.
type Service struct {
	pools   AppPool
	schemas *SchemaCache
	maxRows func() int // runtime sqlMaxRows setting
	logger  *slog.Logger
}

// NewService creates a CRUD service. maxRows reads the runtime row cap.
func NewService(pools AppPool, schemas *SchemaCache, maxRows func() int, logger *slog.Logger) *Service {
	return &Service{pools: pools, schemas: schemas, maxRows: maxRows, logger: logger}
}

// Tables returns the project's visible tables and columns.
func (s *Service) Tables(ctx context.Context, projectID uuid.UUID) ([]Table, error) {
	schema, err := s.schemas.Get(ctx, projectID, "")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamDatabase, "failed to load schema", err)
	}
	return schema.Tables, nil
}

// resolve validates the table name and returns the allowed-column set plus
// the app pool.
func (s *Service) resolve(ctx context.Context, projectID uuid.UUID, table string) (map[string]struct{}, *Schema, error) {
	if !ValidTableName(table) {
		return nil, nil, apperr.Newf(apperr.KindBadRequest, "invalid table name %q", table)
	}
	schema, err := s.schemas.Get(ctx, projectID, table)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindUpstreamDatabase, "failed to load schema", err)
	}
	if !schema.HasTable(table) {
		return nil, nil, apperr.Newf(apperr.KindSchema, "unknown table %q", table)
	}
	return schema.AllowedColumns(table), schema, nil
}

// SelectResult carries the selected rows and their count.
type SelectResult struct {
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowCount"`
}

// Select compiles and runs a read against the app pool.
func (s *Service) Select(ctx context.Context, projectID uuid.UUID, table string, params url.Values) (SelectResult, error) {
	q, err := ParseQuery(params, s.maxRows())
	if err != nil {
		return SelectResult{}, err
	}

	allowed, _, err := s.resolve(ctx, projectID, table)
	if err != nil {
		return SelectResult{}, err
	}

	stmt, err := CompileSelect(table, q, allowed)
	if err != nil {
		return SelectResult{}, err
	}

	pool, err := s.pools.App(ctx, projectID)
	if err != nil {
		return SelectResult{}, apperr.Wrap(apperr.KindUpstreamDatabase, "failed to reach project database", err)
	}

	rows, err := pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return SelectResult{}, apperr.Wrap(apperr.KindUpstreamDatabase, sanitizeDBError(err), err)
	}
	out, err := collectRows(rows)
	if err != nil {
		return SelectResult{}, apperr.Wrap(apperr.KindUpstreamDatabase, sanitizeDBError(err), err)
	}

	telemetry.CRUDQueriesTotal.WithLabelValues("select").Inc()
	return SelectResult{Rows: out, RowCount: len(out)}, nil
}

// InsertResult carries per-row outcomes of a bulk insert.
type InsertResult struct {
	Rows     []map[string]any `json:"rows,omitempty"`
	Inserted int              `json:"inserted"`
}

// Insert executes 1–1000 rows one statement at a time on the app pool. The
// contract is all-or-none per row, best-effort across rows: a failing row
// stops the loop and reports what was inserted.
func (s *Service) Insert(ctx context.Context, projectID uuid.UUID, table string, rowsIn []map[string]any, returning bool) (InsertResult, error) {
	if len(rowsIn) == 0 {
		return InsertResult{}, apperr.New(apperr.KindBadRequest, "rows must contain at least one row")
	}
	if len(rowsIn) > maxInsertRows {
		return InsertResult{}, apperr.Newf(apperr.KindBadRequest, "rows must contain at most %d rows", maxInsertRows)
	}

	allowed, _, err := s.resolve(ctx, projectID, table)
	if err != nil {
		return InsertResult{}, err
	}

	pool, err := s.pools.App(ctx, projectID)
	if err != nil {
		return InsertResult{}, apperr.Wrap(apperr.KindUpstreamDatabase, "failed to reach project database", err)
	}

	result := InsertResult{}
	for i, row := range rowsIn {
		stmt, err := CompileInsert(table, row, allowed, returning)
		if err != nil {
			return result, err
		}

		if returning {
			rows, err := pool.Query(ctx, stmt.SQL, stmt.Args...)
			if err != nil {
				return result, apperr.Wrap(apperr.KindUpstreamDatabase,
					fmt.Sprintf("row %d: %s", i, sanitizeDBError(err)), err)
			}
			returned, err := collectRows(rows)
			if err != nil {
				return result, apperr.Wrap(apperr.KindUpstreamDatabase,
					fmt.Sprintf("row %d: %s", i, sanitizeDBError(err)), err)
			}
			result.Rows = append(result.Rows, returned...)
		} else {
			if _, err := pool.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
				return result, apperr.Wrap(apperr.KindUpstreamDatabase,
					fmt.Sprintf("row %d: %s", i, sanitizeDBError(err)), err)
			}
		}
		result.Inserted++
	}

	telemetry.CRUDQueriesTotal.WithLabelValues("insert").Inc()
	return result, nil
}

// UpdateResult carries the outcome of an update.
type UpdateResult struct {
	Rows         []map[string]any `json:"rows,omitempty"`
	UpdatedCount int              `json:"updatedCount"`
}

// Update compiles and runs a filtered update.
func (s *Service) Update(ctx context.Context, projectID uuid.UUID, table string, values map[string]any, params url.Values, returning bool) (UpdateResult, error) {
	q, err := ParseQuery(params, s.maxRows())
	if err != nil {
		return UpdateResult{}, err
	}

	allowed, _, err := s.resolve(ctx, projectID, table)
	if err != nil {
		return UpdateResult{}, err
	}

	stmt, err := CompileUpdate(table, values, q, allowed, returning)
	if err != nil {
		return UpdateResult{}, err
	}

	pool, err := s.pools.App(ctx, projectID)
	if err != nil {
		return UpdateResult{}, apperr.Wrap(apperr.KindUpstreamDatabase, "failed to reach project database", err)
	}

	telemetry.CRUDQueriesTotal.WithLabelValues("update").Inc()

	if returning {
		rows, err := pool.Query(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return UpdateResult{}, apperr.Wrap(apperr.KindUpstreamDatabase, sanitizeDBError(err), err)
		}
		out, err := collectRows(rows)
		if err != nil {
			return UpdateResult{}, apperr.Wrap(apperr.KindUpstreamDatabase, sanitizeDBError(err), err)
		}
		return UpdateResult{Rows: out, UpdatedCount: len(out)}, nil
	}

	tag, err := pool.Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return UpdateResult{}, apperr.Wrap(apperr.KindUpstreamDatabase, sanitizeDBError(err), err)
	}
	return UpdateResult{UpdatedCount: int(tag.RowsAffected())}, nil
}

// Delete compiles and runs a filtered delete, returning the deleted count.
func (s *Service) Delete(ctx context.Context, projectID uuid.UUID, table string, params url.Values) (int, error) {
	q, err := ParseQuery(params, s.maxRows())
	if err != nil {
		return 0, err
	}

	allowed, _, err := s.resolve(ctx, projectID, table)
	if err != nil {
		return 0, err
	}

	stmt, err := CompileDelete(table, q, allowed)
	if err != nil {
		return 0, err
	}

	pool, err := s.pools.App(ctx, projectID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUpstreamDatabase, "failed to reach project database", err)
	}

	tag, err := pool.Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUpstreamDatabase, sanitizeDBError(err), err)
	}

	telemetry.CRUDQueriesTotal.WithLabelValues("delete").Inc()
	return int(tag.RowsAffected()), nil
}

// collectRows reads pgx rows into generic maps keyed by column name.
func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// sanitizeDBError extracts the backend's message without internal detail.
func sanitizeDBError(err error) string {
	return fmt.Sprintf("database error: %s", firstLine(err.Error()))
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
