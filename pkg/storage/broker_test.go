package storage

import (
	"testing"

	"github.com/google/uuid"
)

func TestPhysicalBucket(t *testing.T) {
	id := uuid.MustParse("4f8a7c2e-1b3d-4a5e-9f60-1234567890ab")
	got := PhysicalBucket(id)
	want := "proj-4f8a7c2e-1b3d-4a5e-9f60-1234567890ab"
	if got != want {
		t.Errorf("PhysicalBucket = %q, want %q", got, want)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "avatar.png", "avatar.png", false},
		{"nested path", "images/2026/avatar.png", "images/2026/avatar.png", false},
		{"leading slash stripped", "/avatar.png", "avatar.png", false},
		{"underscores and dashes", "my_file-v2.tar.gz", "my_file-v2.tar.gz", false},
		{"empty", "", "", true},
		{"spaces", "my file.png", "", true},
		{"traversal", "../../etc/passwd", "", true},
		{"hidden traversal", "images/../secret", "", true},
		{"control characters", "file\x00name", "", true},
		{"query-ish", "file?x=1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SanitizeKey(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("SanitizeKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
