package backup

import (
	"context"
	"strings"
	"testing"
)

// fakeRunner returns scripted results without spawning processes.
type fakeRunner struct {
	stdout   []byte
	stderr   []byte
	exitCode int

	gotName  string
	gotArgs  []string
	gotStdin []byte
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, stdin []byte) ([]byte, []byte, int, error) {
	f.gotName = name
	f.gotArgs = args
	f.gotStdin = stdin
	return f.stdout, f.stderr, f.exitCode, nil
}

func TestDumpInvokesPgDump(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("ARCHIVE")}

	data, err := dump(context.Background(), runner, "postgres://u:p@localhost/db")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ARCHIVE" {
		t.Errorf("dump output = %q", data)
	}
	if runner.gotName != "pg_dump" {
		t.Errorf("command = %q, want pg_dump", runner.gotName)
	}
	joined := strings.Join(runner.gotArgs, " ")
	for _, want := range []string{"--no-owner", "--no-acl", "-Fc"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

func TestDumpNonZeroExit(t *testing.T) {
	runner := &fakeRunner{stderr: []byte("connection refused"), exitCode: 1}
	if _, err := dump(context.Background(), runner, "postgres://u:p@localhost/db"); err == nil {
		t.Fatal("dump with exit 1 succeeded")
	}
}

func TestRestoreExitCodes(t *testing.T) {
	archive := []byte("ARCHIVE")

	t.Run("exit 0 is clean success", func(t *testing.T) {
		runner := &fakeRunner{exitCode: 0}
		out, err := restore(context.Background(), runner, "postgres://u:p@localhost/db", archive)
		if err != nil {
			t.Fatal(err)
		}
		if len(out.Warnings) != 0 {
			t.Errorf("warnings = %v, want none", out.Warnings)
		}
		if string(runner.gotStdin) != "ARCHIVE" {
			t.Error("archive was not fed to stdin")
		}
		joined := strings.Join(runner.gotArgs, " ")
		for _, want := range []string{"--clean", "--if-exists", "--no-owner", "--no-acl"} {
			if !strings.Contains(joined, want) {
				t.Errorf("args %q missing %q", joined, want)
			}
		}
	})

	t.Run("exit 1 is success with warnings", func(t *testing.T) {
		stderr := strings.Repeat("pg_restore: warning: line\n", 15)
		runner := &fakeRunner{exitCode: 1, stderr: []byte(stderr)}
		out, err := restore(context.Background(), runner, "postgres://u:p@localhost/db", archive)
		if err != nil {
			t.Fatal(err)
		}
		if len(out.Warnings) != 10 {
			t.Errorf("warnings = %d, want the first 10 stderr lines", len(out.Warnings))
		}
	})

	t.Run("exit 2 is failure", func(t *testing.T) {
		runner := &fakeRunner{exitCode: 2, stderr: []byte("fatal")}
		if _, err := restore(context.Background(), runner, "postgres://u:p@localhost/db", archive); err == nil {
			t.Fatal("restore with exit 2 succeeded")
		}
	})
}
