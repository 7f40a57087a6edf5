package httpserver

import (
	"net/http/httptest"
	"strings"
	"testing"
)

type sampleRequest struct {
	Name  string `json:"name" validate:"required,min=2"`
	Email string `json:"email" validate:"omitempty,email"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"ok"}`, false},
		{"unknown field", `{"name":"ok","bogus":1}`, true},
		{"empty body", ``, true},
		{"trailing data", `{"name":"ok"}{"name":"again"}`, true},
		{"not json", `name=ok`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var dst sampleRequest
			err := Decode(r, &dst)
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode(%q) error = %v, wantErr %v", tt.body, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFieldErrors(t *testing.T) {
	errs := Validate(sampleRequest{Name: "", Email: "not-an-email"})
	if len(errs) != 2 {
		t.Fatalf("errors = %+v, want 2", errs)
	}

	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	if !fields["name"] || !fields["email"] {
		t.Errorf("fields = %v, want name and email", fields)
	}
}

func TestValidateOK(t *testing.T) {
	if errs := Validate(sampleRequest{Name: "fine"}); len(errs) != 0 {
		t.Errorf("unexpected errors: %+v", errs)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Name", "name"},
		{"MaxSize", "max_size"},
		{"URL", "u_r_l"},
		{"already_snake", "already_snake"},
	}
	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
