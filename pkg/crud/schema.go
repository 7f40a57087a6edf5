package crud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaTTL is how long a cached project schema stays fresh. Recomputing
// redundantly on a race is safe, so the cache takes no lock during fetch.
const schemaTTL = 60 * time.Second

// Column describes one column of a tenant table.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// Table describes one tenant table with its columns.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Schema is the validated table/column set of one project.
type Schema struct {
	tables map[string]map[string]struct{}
	Tables []Table
}

// HasTable reports whether the schema contains the table.
func (s *Schema) HasTable(table string) bool {
	_, ok := s.tables[table]
	return ok
}

// AllowedColumns returns the column whitelist for a table, or nil.
func (s *Schema) AllowedColumns(table string) map[string]struct{} {
	return s.tables[table]
}

// AppPool resolves the app-tier pool for a project. Satisfied by the tenant
// router.
type AppPool interface {
	App(ctx context.Context, projectID uuid.UUID) (*pgxpool.Pool, error)
}

type cachedSchema struct {
	schema    *Schema
	fetchedAt time.Time
}

// SchemaCache caches per-project schemas fetched from information_schema
// via the app-privilege pool.
type SchemaCache struct {
	pools AppPool

	mu    sync.Mutex
	cache map[uuid.UUID]cachedSchema
}

// NewSchemaCache creates a schema cache over the tenant router.
func NewSchemaCache(pools AppPool) *SchemaCache {
	return &SchemaCache{
		pools: pools,
		cache: make(map[uuid.UUID]cachedSchema),
	}
}

// Get returns the project schema, refreshing the cache when stale or when
// the named table is missing from a fresh-enough snapshot (a table created
// moments ago should be visible on the next call).
func (c *SchemaCache) Get(ctx context.Context, projectID uuid.UUID, wantTable string) (*Schema, error) {
	c.mu.Lock()
	entry, ok := c.cache[projectID]
	c.mu.Unlock()

	if ok && time.Since(entry.fetchedAt) < schemaTTL {
		if wantTable == "" || entry.schema.HasTable(wantTable) {
			return entry.schema, nil
		}
	}

	schema, err := c.fetch(ctx, projectID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[projectID] = cachedSchema{schema: schema, fetchedAt: time.Now()}
	c.mu.Unlock()
	return schema, nil
}

// Invalidate drops a project's cached schema. Called after admin DDL.
func (c *SchemaCache) Invalidate(projectID uuid.UUID) {
	c.mu.Lock()
	delete(c.cache, projectID)
	c.mu.Unlock()
}

// fetch loads the table/column set from information_schema.
func (c *SchemaCache) fetch(ctx context.Context, projectID uuid.UUID) (*Schema, error) {
	pool, err := c.pools.App(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("resolving app pool: %w", err)
	}

	query := `SELECT table_name, column_name, data_type, is_nullable
	FROM information_schema.columns
	WHERE table_schema = 'public'
	ORDER BY table_name, ordinal_position`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying information_schema: %w", err)
	}
	defer rows.Close()

	schema := &Schema{tables: make(map[string]map[string]struct{})}
	tableIdx := make(map[string]int)

	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}

		cols, ok := schema.tables[table]
		if !ok {
			cols = make(map[string]struct{})
			schema.tables[table] = cols
			tableIdx[table] = len(schema.Tables)
			schema.Tables = append(schema.Tables, Table{Name: table})
		}
		cols[column] = struct{}{}

		i := tableIdx[table]
		schema.Tables[i].Columns = append(schema.Tables[i].Columns, Column{
			Name:     column,
			DataType: dataType,
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema rows: %w", err)
	}

	return schema, nil
}
