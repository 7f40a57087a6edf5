// Package backup drives database dumps and restores through pg_dump and
// pg_restore subprocesses, streams the results to the object store, exports
// tables as CSV/JSON, and applies the tiered retention policy.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command with bound stdin/stdout/stderr. The
// indirection keeps the dump pipeline testable without PostgreSQL binaries.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) (stdout, stderr []byte, exitCode int, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes the command, capturing stdout and stderr fully. A non-zero
// exit is reported through exitCode, not err.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
		}
		return nil, stderr.Bytes(), -1, fmt.Errorf("running %s: %w", name, err)
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

// dump runs pg_dump against connURL and returns the custom-format archive.
func dump(ctx context.Context, runner Runner, connURL string) ([]byte, error) {
	args := []string{"-d", connURL, "--no-owner", "--no-acl", "-Fc"}
	stdout, stderr, code, err := runner.Run(ctx, "pg_dump", args, nil)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("pg_dump exited %d: %s", code, firstLines(string(stderr), 5))
	}
	return stdout, nil
}

// RestoreOutcome reports a completed restore; warnings carry up to the
// first 10 stderr lines when pg_restore exits 1.
type RestoreOutcome struct {
	Warnings []string `json:"warnings,omitempty"`
}

// restore feeds a dump archive to pg_restore. Exit 0 is success, exit 1 is
// success with warnings, anything else is failure.
func restore(ctx context.Context, runner Runner, connURL string, archive []byte) (RestoreOutcome, error) {
	args := []string{"-d", connURL, "--clean", "--if-exists", "--no-owner", "--no-acl"}
	_, stderr, code, err := runner.Run(ctx, "pg_restore", args, archive)
	if err != nil {
		return RestoreOutcome{}, err
	}

	switch code {
	case 0:
		return RestoreOutcome{}, nil
	case 1:
		return RestoreOutcome{Warnings: splitLines(string(stderr), 10)}, nil
	default:
		return RestoreOutcome{}, fmt.Errorf("pg_restore exited %d: %s", code, firstLines(string(stderr), 5))
	}
}

// splitLines returns up to max non-empty lines of s.
func splitLines(s string, max int) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}

// firstLines joins up to max lines for an error message.
func firstLines(s string, max int) string {
	return strings.Join(splitLines(s, max), "; ")
}
