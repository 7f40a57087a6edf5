package project

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDatabaseName(t *testing.T) {
	id := uuid.MustParse("4f8a7c2e-1b3d-4a5e-9f60-1234567890ab")
	got := DatabaseName(id)
	want := "proj_4f8a7c2e1b3d4a5e9f601234567890ab"
	if got != want {
		t.Errorf("DatabaseName = %q, want %q", got, want)
	}
	if strings.Contains(got, "-") {
		t.Error("database name contains dashes")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Project", "my-project"},
		{"  spaced  out  ", "spaced-out"},
		{"Emoji 🚀 Name", "emoji-name"},
		{"already-slugged", "already-slugged"},
		{"UPPER_case.2", "upper-case-2"},
		{"---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSlugPattern(t *testing.T) {
	valid := []string{"my-project", "a2", "proj-with-many-parts"}
	for _, s := range valid {
		if !slugPattern.MatchString(s) {
			t.Errorf("slug %q rejected", s)
		}
	}
	invalid := []string{"", "A", "-starts-with-dash", "1starts-with-digit", strings.Repeat("a", 80)}
	for _, s := range invalid {
		if slugPattern.MatchString(s) {
			t.Errorf("slug %q accepted", s)
		}
	}
}

func TestQuoting(t *testing.T) {
	if got := quoteIdent(`proj_abc`); got != `"proj_abc"` {
		t.Errorf("quoteIdent = %q", got)
	}
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("quoteIdent with quote = %q", got)
	}
	if got := quoteLiteral(`pa'ss`); got != `'pa''ss'` {
		t.Errorf("quoteLiteral = %q", got)
	}
}
