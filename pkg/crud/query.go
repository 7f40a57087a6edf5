// Package crud compiles the public REST query grammar into parameterized
// SQL against a validated per-project schema. No client-supplied SQL ever
// reaches a tenant database.
package crud

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Marczelloo/atlas-hub/internal/apperr"
)

// Op is one case of the closed filter-operator set.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLike  Op = "like"
	OpILike Op = "ilike"
	OpIn    Op = "in"
)

// sqlOps maps each operator to its SQL counterpart. Membership here defines
// the closed operator set; unknown operators are rejected at parse time.
var sqlOps = map[Op]string{
	OpEq:    "=",
	OpNeq:   "<>",
	OpLt:    "<",
	OpLte:   "<=",
	OpGt:    ">",
	OpGte:   ">=",
	OpLike:  "LIKE",
	OpILike: "ILIKE",
	// OpIn is compiled separately as IN ($n, ...).
	OpIn: "IN",
}

// Filter is one parsed filter. Values holds a single element except for the
// "in" operator, which carries the comma-separated list.
type Filter struct {
	Op     Op
	Column string
	Values []string
}

// Order is a parsed order=col.dir parameter.
type Order struct {
	Column string
	Desc   bool
}

// Query is the parsed form of the REST query string.
type Query struct {
	Select  []string // empty means *
	Order   *Order
	Limit   int
	Offset  int
	Filters []Filter
}

// DefaultLimit applies when the client omits limit.
const DefaultLimit = 100

// tableNamePattern is the only shape of table name the compiler accepts.
var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidTableName reports whether name is an acceptable table identifier.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// reservedParams are query keys that are not filters.
var reservedParams = map[string]struct{}{
	"select": {},
	"order":  {},
	"limit":  {},
	"offset": {},
}

// ParseQuery parses the REST query string into a Query. maxLimit caps the
// limit parameter (the runtime sqlMaxRows setting).
func ParseQuery(values url.Values, maxLimit int) (Query, error) {
	q := Query{Limit: DefaultLimit}

	if sel := values.Get("select"); sel != "" && sel != "*" {
		for _, col := range strings.Split(sel, ",") {
			col = strings.TrimSpace(col)
			if col == "" {
				return Query{}, apperr.New(apperr.KindBadRequest, "empty column in select")
			}
			q.Select = append(q.Select, col)
		}
	}

	if ord := values.Get("order"); ord != "" {
		col, dir, ok := strings.Cut(ord, ".")
		if !ok || col == "" {
			return Query{}, apperr.New(apperr.KindBadRequest, "order must be of the form column.asc or column.desc")
		}
		switch dir {
		case "asc":
			q.Order = &Order{Column: col}
		case "desc":
			q.Order = &Order{Column: col, Desc: true}
		default:
			return Query{}, apperr.Newf(apperr.KindBadRequest, "unknown order direction %q", dir)
		}
	}

	if lim := values.Get("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil || n < 1 || n > maxLimit {
			return Query{}, apperr.Newf(apperr.KindBadRequest, "limit must be an integer between 1 and %d", maxLimit)
		}
		q.Limit = n
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}

	if off := values.Get("offset"); off != "" {
		n, err := strconv.Atoi(off)
		if err != nil || n < 0 {
			return Query{}, apperr.New(apperr.KindBadRequest, "offset must be a non-negative integer")
		}
		q.Offset = n
	}

	for key, vals := range values {
		if _, reserved := reservedParams[key]; reserved {
			continue
		}
		opName, col, ok := strings.Cut(key, ".")
		if !ok {
			// Not filter-shaped; ignore unknown plain parameters.
			continue
		}
		op := Op(opName)
		if _, known := sqlOps[op]; !known {
			return Query{}, apperr.Newf(apperr.KindBadRequest, "unknown filter operator %q", opName)
		}
		if col == "" {
			return Query{}, apperr.Newf(apperr.KindBadRequest, "filter %q is missing a column", key)
		}

		for _, v := range vals {
			f := Filter{Op: op, Column: col}
			if op == OpIn {
				f.Values = strings.Split(v, ",")
				if len(f.Values) == 0 {
					return Query{}, apperr.Newf(apperr.KindBadRequest, "in filter on %q needs at least one value", col)
				}
			} else {
				f.Values = []string{v}
			}
			q.Filters = append(q.Filters, f)
		}
	}

	return q, nil
}
