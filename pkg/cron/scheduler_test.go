package cron

import (
	"testing"
	"time"

	"github.com/Marczelloo/atlas-hub/internal/crypto"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		timezone string
		wantErr  bool
	}{
		{"every minute", "* * * * *", "UTC", false},
		{"daily at 3am", "0 3 * * *", "UTC", false},
		{"descriptor", "@hourly", "", false},
		{"with timezone", "30 8 * * 1-5", "Europe/Warsaw", false},
		{"six fields", "0 0 3 * * *", "UTC", true},
		{"garbage", "not a cron", "UTC", true},
		{"bad timezone", "* * * * *", "Mars/Olympus", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseSchedule(tt.expr, tt.timezone)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseSchedule(%q, %q) error = %v, wantErr %v", tt.expr, tt.timezone, err, tt.wantErr)
			}
		})
	}
}

func TestParseScheduleNextInTimezone(t *testing.T) {
	sched, loc, err := parseSchedule("0 3 * * *", "UTC")
	if err != nil {
		t.Fatal(err)
	}

	from := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)
	next := sched.Next(from)
	want := time.Date(2026, 3, 2, 3, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", from, next, want)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	cipher, err := crypto.NewCipher("this-is-a-32-byte-secret-phrase!")
	if err != nil {
		t.Fatal(err)
	}

	plaintext := []byte(`{"Authorization":"Bearer token-123"}`)
	sealed, err := Seal(cipher, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if string(sealed) == string(plaintext) {
		t.Fatal("sealed value equals plaintext")
	}

	opened, err := openSealed(cipher, sealed)
	if err != nil {
		t.Fatal(err)
	}
	if string(opened) != string(plaintext) {
		t.Errorf("round trip = %q, want %q", opened, plaintext)
	}
}

func TestOpenSealedRejectsGarbage(t *testing.T) {
	cipher, _ := crypto.NewCipher("this-is-a-32-byte-secret-phrase!")
	if _, err := openSealed(cipher, "not json"); err == nil {
		t.Error("garbage sealed value opened")
	}
	if _, err := openSealed(cipher, `{"ciphertext":"YWJj","iv":"YWJj","authTag":"YWJj"}`); err == nil {
		t.Error("forged envelope opened")
	}
}
