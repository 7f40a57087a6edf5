package sqlexec

import (
	"strings"
	"testing"
)

func TestValidateSingleStatement(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"plain select", "SELECT 1", false},
		{"trailing semicolon", "SELECT 1;", false},
		{"create table", "CREATE TABLE users(id SERIAL PRIMARY KEY, name VARCHAR(100))", false},
		{"two statements", "SELECT 1; SELECT 2", true},
		{"empty", "   ", true},
		// The split is string-literal-unaware: a ';' inside a literal is a
		// conservative false positive.
		{"semicolon inside literal", "SELECT 'a;b'", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.sql)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.sql, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDenylist(t *testing.T) {
	denied := []string{
		"COPY users TO PROGRAM 'cat'",
		"copy users from program 'sh'",
		"DO $$ BEGIN NULL; END $$",
		"SELECT pg_sleep(60)",
		"SELECT PG_SLEEP (1)",
		"CREATE EXTENSION pgcrypto",
		"DROP DATABASE proj_abc",
		"DROP ROLE proj_abc_owner",
		"ALTER SYSTEM SET shared_buffers = '1GB'",
	}
	for _, sql := range denied {
		if err := Validate(sql); err == nil {
			t.Errorf("Validate(%q) passed, want denied", sql)
		}
	}

	allowed := []string{
		"SELECT * FROM users",
		"INSERT INTO roles(name) VALUES ($1)",
		"DROP TABLE old_data",
		"ALTER TABLE users ADD COLUMN age INT",
	}
	for _, sql := range allowed {
		if err := Validate(sql); err != nil {
			t.Errorf("Validate(%q) rejected: %v", sql, err)
		}
	}
}

func TestPrepareAppendsLimit(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"select without limit", "SELECT * FROM users", "SELECT * FROM users LIMIT 1000"},
		{"select with limit", "SELECT * FROM users LIMIT 10", "SELECT * FROM users LIMIT 10"},
		{"with query", "WITH t AS (SELECT 1) SELECT * FROM t", "WITH t AS (SELECT 1) SELECT * FROM t LIMIT 1000"},
		{"insert untouched", "INSERT INTO users(name) VALUES ('x')", "INSERT INTO users(name) VALUES ('x')"},
		{"trailing semicolon stripped", "SELECT 1;", "SELECT 1 LIMIT 1000"},
		{"lowercase select", "select id from users", "select id from users LIMIT 1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := prepare(tt.sql, 1000)
			if got != tt.want {
				t.Errorf("prepare(%q) = %q, want %q", tt.sql, got, tt.want)
			}
		})
	}
}

func TestDBMessageFirstLine(t *testing.T) {
	err := &multilineError{"ERROR: relation does not exist\nDETAIL: internal"}
	if got := dbMessage(err); strings.Contains(got, "DETAIL") {
		t.Errorf("dbMessage leaked detail lines: %q", got)
	}
}

type multilineError struct{ msg string }

func (e *multilineError) Error() string { return e.msg }
