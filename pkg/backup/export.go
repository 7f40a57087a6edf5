package backup

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Marczelloo/atlas-hub/pkg/crud"
)

// exportRowCap bounds a single table export.
const exportRowCap = 100000

// exportTable reads up to exportRowCap rows of a table through the owner
// pool and serializes them in the requested format.
func exportTable(ctx context.Context, pool *pgxpool.Pool, table, format string) ([]byte, error) {
	if !crud.ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	query := fmt.Sprintf(`SELECT * FROM %q LIMIT %d`, table, exportRowCap)
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", table, err)
	}
	defer rows.Close()

	columns := make([]string, 0, len(rows.FieldDescriptions()))
	for _, fd := range rows.FieldDescriptions() {
		columns = append(columns, fd.Name)
	}

	var records [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		records = append(records, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	switch format {
	case "csv":
		return encodeCSV(columns, records)
	case "json":
		return encodeJSON(columns, records)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// encodeCSV writes a header row plus one record per row, with RFC 4180
// quoting handled by encoding/csv.
func encodeCSV(columns []string, records [][]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	for _, rec := range records {
		fields := make([]string, len(rec))
		for i, v := range rec {
			fields[i] = formatValue(v)
		}
		if err := w.Write(fields); err != nil {
			return nil, fmt.Errorf("writing CSV record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeJSON renders rows as an array of column-keyed objects.
func encodeJSON(columns []string, records [][]any) ([]byte, error) {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = rec[i]
		}
		out = append(out, row)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding JSON: %w", err)
	}
	return data, nil
}

// formatValue renders one database value as a CSV field.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
