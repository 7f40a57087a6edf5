// Package sqlexec runs administrator-supplied SQL against a tenant database
// behind a single-statement gate, a denylist of privileged operations, a row
// cap, and a statement timeout.
package sqlexec

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Marczelloo/atlas-hub/internal/apperr"
)

// denylist matches operations no admin statement may perform, regardless of
// role privileges.
var denylist = []*regexp.Regexp{
	regexp.MustCompile(`(?is)\bCOPY\b.*\bPROGRAM\b`),
	regexp.MustCompile(`(?is)\bDO\s*\$\$`),
	regexp.MustCompile(`(?i)\bpg_sleep\s*\(`),
	regexp.MustCompile(`(?i)\bCREATE\s+EXTENSION\b`),
	regexp.MustCompile(`(?i)\bDROP\s+DATABASE\b`),
	regexp.MustCompile(`(?i)\bDROP\s+ROLE\b`),
	regexp.MustCompile(`(?i)\bALTER\s+SYSTEM\b`),
}

// hasLimit detects an explicit LIMIT clause.
var hasLimit = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)

// OwnerPool resolves the owner-tier pool for a project. Satisfied by the
// tenant router.
type OwnerPool interface {
	Owner(ctx context.Context, projectID uuid.UUID) (*pgxpool.Pool, error)
}

// Limits supplies the runtime row cap and statement timeout.
type Limits func() (maxRows int, timeout time.Duration)

// Executor validates and runs a single admin statement on the owner pool.
type Executor struct {
	pools  OwnerPool
	limits Limits
	logger *slog.Logger
}

// NewExecutor creates an admin SQL executor.
func NewExecutor(pools OwnerPool, limits Limits, logger *slog.Logger) *Executor {
	return &Executor{pools: pools, limits: limits, logger: logger}
}

// Result is the outcome of one executed statement.
type Result struct {
	Columns         []string `json:"columns"`
	Rows            [][]any  `json:"rows"`
	RowCount        int      `json:"rowCount"`
	ExecutionTimeMs int64    `json:"executionTimeMs"`
}

// Validate applies the single-statement gate and the denylist without
// touching the database.
//
// The statement split is a plain ';' split with empties discarded — it is
// string-literal-unaware, so a literal containing ';' is misclassified as
// multiple statements. That false positive is accepted as conservative.
func Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return apperr.New(apperr.KindBadRequest, "sql is required")
	}

	var statements int
	for _, part := range strings.Split(trimmed, ";") {
		if strings.TrimSpace(part) != "" {
			statements++
		}
	}
	if statements > 1 {
		return apperr.New(apperr.KindBadRequest, "only a single statement is allowed")
	}

	for _, re := range denylist {
		if re.MatchString(trimmed) {
			return apperr.New(apperr.KindDenied, "statement contains a denied operation")
		}
	}
	return nil
}

// prepare appends a LIMIT to uncapped reads and strips a trailing ';'.
func prepare(sql string, maxRows int) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	upper := strings.ToUpper(trimmed)
	if (strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")) && !hasLimit.MatchString(trimmed) {
		return fmt.Sprintf("%s LIMIT %d", trimmed, maxRows)
	}
	return trimmed
}

// Execute validates sql and runs it on the project's owner pool with the
// configured statement timeout. Database failures surface as 400-class
// errors carrying the server message.
func (e *Executor) Execute(ctx context.Context, projectID uuid.UUID, sql string) (Result, error) {
	if err := Validate(sql); err != nil {
		return Result{}, err
	}

	maxRows, timeout := e.limits()
	stmt := prepare(sql, maxRows)

	pool, err := e.pools.Owner(ctx, projectID)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindUpstreamDatabase, "failed to reach project database", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindUpstreamDatabase, "failed to acquire connection", err)
	}
	defer conn.Release()

	// Session-level timeout on this connection; it is reset before the
	// connection returns to the pool.
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return Result{}, apperr.Wrap(apperr.KindUpstreamDatabase, "failed to set statement timeout", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "SET statement_timeout = 0")
	}()

	start := time.Now()
	rows, err := conn.Query(ctx, stmt)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindUpstreamDatabase, dbMessage(err), err)
	}

	result := Result{Columns: []string{}, Rows: [][]any{}}
	for _, fd := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			rows.Close()
			return Result{}, apperr.Wrap(apperr.KindUpstreamDatabase, dbMessage(err), err)
		}
		result.Rows = append(result.Rows, values)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Result{}, apperr.Wrap(apperr.KindUpstreamDatabase, dbMessage(err), err)
	}

	result.RowCount = len(result.Rows)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	e.logger.Debug("admin sql executed",
		"project_id", projectID,
		"rows", result.RowCount,
		"duration_ms", result.ExecutionTimeMs,
	)
	return result, nil
}

// dbMessage extracts the backend's first error line for the client.
func dbMessage(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
