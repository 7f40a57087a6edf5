package crud

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Marczelloo/atlas-hub/internal/apperr"
)

// Statement is a compiled, parameterized SQL statement. Every client value
// appears in Args and is referenced only through a positional placeholder.
type Statement struct {
	SQL  string
	Args []any
}

// quoteIdent double-quotes a validated identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// checkColumns verifies every referenced column against the table whitelist.
func checkColumns(allowed map[string]struct{}, cols ...string) error {
	for _, c := range cols {
		if _, ok := allowed[c]; !ok {
			return apperr.Newf(apperr.KindSchema, "unknown column %q", c)
		}
	}
	return nil
}

// compileWhere renders the AND of all filters starting at placeholder $start.
// Returns the clause (without the WHERE keyword), the bound args, and the
// next free placeholder index.
func compileWhere(filters []Filter, allowed map[string]struct{}, start int) (string, []any, int, error) {
	if len(filters) == 0 {
		return "", nil, start, nil
	}

	var conds []string
	var args []any
	n := start

	for _, f := range filters {
		if err := checkColumns(allowed, f.Column); err != nil {
			return "", nil, 0, err
		}

		if f.Op == OpIn {
			placeholders := make([]string, len(f.Values))
			for i, v := range f.Values {
				placeholders[i] = fmt.Sprintf("$%d", n)
				args = append(args, v)
				n++
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", quoteIdent(f.Column), strings.Join(placeholders, ", ")))
			continue
		}

		conds = append(conds, fmt.Sprintf("%s %s $%d", quoteIdent(f.Column), sqlOps[f.Op], n))
		args = append(args, f.Values[0])
		n++
	}

	return strings.Join(conds, " AND "), args, n, nil
}

// CompileSelect builds a SELECT statement for the parsed query.
func CompileSelect(table string, q Query, allowed map[string]struct{}) (Statement, error) {
	cols := "*"
	if len(q.Select) > 0 {
		if err := checkColumns(allowed, q.Select...); err != nil {
			return Statement{}, err
		}
		quoted := make([]string, len(q.Select))
		for i, c := range q.Select {
			quoted[i] = quoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, quoteIdent(table))

	where, args, _, err := compileWhere(q.Filters, allowed, 1)
	if err != nil {
		return Statement{}, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if q.Order != nil {
		if err := checkColumns(allowed, q.Order.Column); err != nil {
			return Statement{}, err
		}
		dir := "ASC"
		if q.Order.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", quoteIdent(q.Order.Column), dir)
	}

	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", q.Limit, q.Offset)
	return Statement{SQL: b.String(), Args: args}, nil
}

// CompileInsert builds an INSERT for a single row. Column order is sorted
// for a deterministic statement.
func CompileInsert(table string, row map[string]any, allowed map[string]struct{}, returning bool) (Statement, error) {
	if len(row) == 0 {
		return Statement{}, apperr.New(apperr.KindBadRequest, "insert row has no columns")
	}

	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	if err := checkColumns(allowed, cols...); err != nil {
		return Statement{}, err
	}

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[c]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if returning {
		sql += " RETURNING *"
	}
	return Statement{SQL: sql, Args: args}, nil
}

// CompileUpdate builds an UPDATE. At least one filter is required — the
// compiler never issues an unscoped mutation.
func CompileUpdate(table string, values map[string]any, q Query, allowed map[string]struct{}, returning bool) (Statement, error) {
	if len(q.Filters) == 0 {
		return Statement{}, apperr.New(apperr.KindBadRequest, "update requires at least one filter")
	}
	if len(values) == 0 {
		return Statement{}, apperr.New(apperr.KindBadRequest, "update body has no values")
	}

	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	if err := checkColumns(allowed, cols...); err != nil {
		return Statement{}, err
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(q.Filters))
	n := 1
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdent(c), n)
		args = append(args, values[c])
		n++
	}

	where, whereArgs, _, err := compileWhere(q.Filters, allowed, n)
	if err != nil {
		return Statement{}, err
	}
	args = append(args, whereArgs...)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quoteIdent(table), strings.Join(sets, ", "), where)
	if returning {
		sql += " RETURNING *"
	}
	return Statement{SQL: sql, Args: args}, nil
}

// CompileDelete builds a DELETE. At least one filter is required.
func CompileDelete(table string, q Query, allowed map[string]struct{}) (Statement, error) {
	if len(q.Filters) == 0 {
		return Statement{}, apperr.New(apperr.KindBadRequest, "delete requires at least one filter")
	}

	where, args, _, err := compileWhere(q.Filters, allowed, 1)
	if err != nil {
		return Statement{}, err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(table), where)
	return Statement{SQL: sql, Args: args}, nil
}
