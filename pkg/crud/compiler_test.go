package crud

import (
	"fmt"
	"strings"
	"testing"
)

var testColumns = map[string]struct{}{
	"id":    {},
	"name":  {},
	"email": {},
}

func TestCompileSelect(t *testing.T) {
	q := Query{
		Select: []string{"id", "name"},
		Order:  &Order{Column: "id", Desc: true},
		Limit:  10,
		Offset: 20,
		Filters: []Filter{
			{Op: OpEq, Column: "name", Values: []string{"John"}},
			{Op: OpGt, Column: "id", Values: []string{"5"}},
		},
	}

	stmt, err := CompileSelect("users", q, testColumns)
	if err != nil {
		t.Fatal(err)
	}

	want := `SELECT "id", "name" FROM "users" WHERE "name" = $1 AND "id" > $2 ORDER BY "id" DESC LIMIT 10 OFFSET 20`
	if stmt.SQL != want {
		t.Errorf("SQL = %q, want %q", stmt.SQL, want)
	}
	if len(stmt.Args) != 2 || stmt.Args[0] != "John" || stmt.Args[1] != "5" {
		t.Errorf("Args = %v", stmt.Args)
	}
}

func TestCompileSelectInFilter(t *testing.T) {
	q := Query{
		Limit: DefaultLimit,
		Filters: []Filter{
			{Op: OpIn, Column: "id", Values: []string{"1", "2", "3"}},
		},
	}

	stmt, err := CompileSelect("users", q, testColumns)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(stmt.SQL, `"id" IN ($1, $2, $3)`) {
		t.Errorf("SQL = %q, want IN with one placeholder per value", stmt.SQL)
	}
	if len(stmt.Args) != 3 {
		t.Errorf("Args = %v, want 3 values", stmt.Args)
	}
}

func TestCompileValuesNeverInline(t *testing.T) {
	// Every client value must reach the statement only through a
	// placeholder, even when it looks like SQL.
	hostile := `'; DROP TABLE users; --`
	q := Query{
		Limit: DefaultLimit,
		Filters: []Filter{
			{Op: OpEq, Column: "name", Values: []string{hostile}},
		},
	}

	stmt, err := CompileSelect("users", q, testColumns)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(stmt.SQL, "DROP TABLE") {
		t.Fatalf("client value leaked into SQL: %q", stmt.SQL)
	}
	if len(stmt.Args) != 1 || stmt.Args[0] != hostile {
		t.Errorf("Args = %v, want the hostile string bound as a parameter", stmt.Args)
	}
}

func TestCompileSelectUnknownColumn(t *testing.T) {
	cases := []Query{
		{Limit: 1, Select: []string{"password"}},
		{Limit: 1, Order: &Order{Column: "secret"}},
		{Limit: 1, Filters: []Filter{{Op: OpEq, Column: "hidden", Values: []string{"x"}}}},
	}
	for i, q := range cases {
		if _, err := CompileSelect("users", q, testColumns); err == nil {
			t.Errorf("case %d: unknown column accepted", i)
		}
	}
}

func TestCompileInsert(t *testing.T) {
	row := map[string]any{"name": "John", "email": "john@x"}
	stmt, err := CompileInsert("users", row, testColumns, true)
	if err != nil {
		t.Fatal(err)
	}

	want := `INSERT INTO "users" ("email", "name") VALUES ($1, $2) RETURNING *`
	if stmt.SQL != want {
		t.Errorf("SQL = %q, want %q", stmt.SQL, want)
	}
	if len(stmt.Args) != 2 || stmt.Args[0] != "john@x" || stmt.Args[1] != "John" {
		t.Errorf("Args = %v", stmt.Args)
	}
}

func TestCompileInsertUnknownColumn(t *testing.T) {
	if _, err := CompileInsert("users", map[string]any{"role": "admin"}, testColumns, false); err == nil {
		t.Error("unknown body column accepted")
	}
}

func TestCompileUpdateRequiresFilter(t *testing.T) {
	_, err := CompileUpdate("users", map[string]any{"name": "x"}, Query{}, testColumns, false)
	if err == nil {
		t.Fatal("unfiltered update compiled")
	}
	if !strings.Contains(err.Error(), "filter") {
		t.Errorf("error %q should mention filter", err)
	}
}

func TestCompileUpdate(t *testing.T) {
	q := Query{Filters: []Filter{{Op: OpEq, Column: "id", Values: []string{"7"}}}}
	stmt, err := CompileUpdate("users", map[string]any{"name": "Jane"}, q, testColumns, true)
	if err != nil {
		t.Fatal(err)
	}

	want := `UPDATE "users" SET "name" = $1 WHERE "id" = $2 RETURNING *`
	if stmt.SQL != want {
		t.Errorf("SQL = %q, want %q", stmt.SQL, want)
	}
	if fmt.Sprint(stmt.Args) != "[Jane 7]" {
		t.Errorf("Args = %v", stmt.Args)
	}
}

func TestCompileDeleteRequiresFilter(t *testing.T) {
	_, err := CompileDelete("users", Query{}, testColumns)
	if err == nil {
		t.Fatal("unfiltered delete compiled")
	}
	if !strings.Contains(err.Error(), "filter") {
		t.Errorf("error %q should mention filter", err)
	}
}

func TestCompileDelete(t *testing.T) {
	q := Query{Filters: []Filter{{Op: OpLt, Column: "id", Values: []string{"100"}}}}
	stmt, err := CompileDelete("users", q, testColumns)
	if err != nil {
		t.Fatal(err)
	}

	want := `DELETE FROM "users" WHERE "id" < $1`
	if stmt.SQL != want {
		t.Errorf("SQL = %q, want %q", stmt.SQL, want)
	}
}
