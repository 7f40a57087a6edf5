package crud

import (
	"net/url"
	"testing"
)

func TestParseQueryBasics(t *testing.T) {
	values, _ := url.ParseQuery("select=id,name&order=id.asc&limit=10&offset=5&eq.name=John")
	q, err := ParseQuery(values, 1000)
	if err != nil {
		t.Fatal(err)
	}

	if len(q.Select) != 2 || q.Select[0] != "id" || q.Select[1] != "name" {
		t.Errorf("Select = %v, want [id name]", q.Select)
	}
	if q.Order == nil || q.Order.Column != "id" || q.Order.Desc {
		t.Errorf("Order = %+v, want id asc", q.Order)
	}
	if q.Limit != 10 || q.Offset != 5 {
		t.Errorf("Limit/Offset = %d/%d, want 10/5", q.Limit, q.Offset)
	}
	if len(q.Filters) != 1 || q.Filters[0].Op != OpEq || q.Filters[0].Column != "name" || q.Filters[0].Values[0] != "John" {
		t.Errorf("Filters = %+v, want eq.name=John", q.Filters)
	}
}

func TestParseQueryDefaults(t *testing.T) {
	q, err := ParseQuery(url.Values{}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if q.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want default %d", q.Limit, DefaultLimit)
	}
	if q.Offset != 0 || len(q.Select) != 0 || q.Order != nil || len(q.Filters) != 0 {
		t.Errorf("unexpected non-zero query: %+v", q)
	}
}

func TestParseQuerySelectStar(t *testing.T) {
	values, _ := url.ParseQuery("select=*")
	q, err := ParseQuery(values, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Select) != 0 {
		t.Errorf("select=* should leave Select empty, got %v", q.Select)
	}
}

func TestParseQueryInFilter(t *testing.T) {
	values, _ := url.ParseQuery("in.status=active,pending,closed")
	q, err := ParseQuery(values, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Filters) != 1 {
		t.Fatalf("Filters = %+v, want one in filter", q.Filters)
	}
	f := q.Filters[0]
	if f.Op != OpIn || len(f.Values) != 3 || f.Values[1] != "pending" {
		t.Errorf("in filter = %+v", f)
	}
}

func TestParseQueryErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"unknown operator", "matches.name=x"},
		{"order missing direction", "order=name"},
		{"order bad direction", "order=name.upward"},
		{"limit zero", "limit=0"},
		{"limit above cap", "limit=5000"},
		{"limit not a number", "limit=ten"},
		{"negative offset", "offset=-1"},
		{"filter without column", "eq.=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, _ := url.ParseQuery(tt.query)
			if _, err := ParseQuery(values, 1000); err == nil {
				t.Errorf("ParseQuery(%q) succeeded, want error", tt.query)
			}
		})
	}
}

func TestParseQueryAllOperators(t *testing.T) {
	ops := []string{"eq", "neq", "lt", "lte", "gt", "gte", "like", "ilike", "in"}
	for _, op := range ops {
		values, _ := url.ParseQuery(op + ".col=v")
		q, err := ParseQuery(values, 1000)
		if err != nil {
			t.Errorf("operator %s rejected: %v", op, err)
			continue
		}
		if len(q.Filters) != 1 || string(q.Filters[0].Op) != op {
			t.Errorf("operator %s parsed as %+v", op, q.Filters)
		}
	}
}

func TestValidTableName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"users", true},
		{"_internal", true},
		{"order_items2", true},
		{"Users", false},
		{"1users", false},
		{"users; drop table", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidTableName(tt.name); got != tt.valid {
			t.Errorf("ValidTableName(%q) = %v, want %v", tt.name, got, tt.valid)
		}
	}
}
