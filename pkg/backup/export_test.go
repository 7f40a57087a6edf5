package backup

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEncodeCSVEscaping(t *testing.T) {
	columns := []string{"id", "note"}
	records := [][]any{
		{1, `plain`},
		{2, `has "quotes"`},
		{3, "has,comma"},
		{4, "has\nnewline"},
		{5, nil},
	}

	data, err := encodeCSV(columns, records)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	if !strings.HasPrefix(out, "id,note\n") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, `"has ""quotes"""`) {
		t.Errorf("quotes not escaped per RFC 4180: %q", out)
	}
	if !strings.Contains(out, `"has,comma"`) {
		t.Errorf("comma field not quoted: %q", out)
	}
	if !strings.Contains(out, "\"has\nnewline\"") {
		t.Errorf("newline field not quoted: %q", out)
	}
}

func TestEncodeCSVTimeFormat(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	data, err := encodeCSV([]string{"at"}, [][]any{{ts}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "2026-03-01T12:30:00Z") {
		t.Errorf("timestamp not RFC3339: %q", data)
	}
}

func TestEncodeJSON(t *testing.T) {
	data, err := encodeJSON([]string{"id", "name"}, [][]any{{1, "John"}, {2, "Jane"}})
	if err != nil {
		t.Fatal(err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["name"] != "John" || rows[1]["name"] != "Jane" {
		t.Errorf("rows = %v", rows)
	}
}

func TestEncodeJSONEmpty(t *testing.T) {
	data, err := encodeJSON([]string{"id"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("empty export = %q, want []", data)
	}
}
