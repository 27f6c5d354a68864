// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/blocksql/internal/cli/config"
	"github.com/leapstack-labs/blocksql/internal/testutil"
	"github.com/spf13/cobra"

	// sqlite driver for the fixture database.
	_ "modernc.org/sqlite"
)

// UsersTemplate is the queries/users.sql fixture written by SetupTestProject.
const UsersTemplate = `/*---
description: User lookups
owner: data
tags: [users, core]
---*/
{* sql list_users, note = "all users" *}
SELECT id, name FROM users{* if active_cond *} WHERE {{ active_cond }}{* endif *} ORDER BY id
{* endsql *}

{* sql active_cond, cond_for = list_users *}
active = :active
{* endsql *}

{* sql by_id *}
SELECT id, name FROM users WHERE id = {{ guards.integer(id) }}
{* endsql *}

{* sql rename, note = "update a name" *}
UPDATE users SET name = {{ guards.string(name) }} WHERE id = {{ guards.integer(id) }}
{* endsql *}
`

// SetupTestProject creates a temporary project with a blocksql.yaml, a
// queries/users.sql template and an empty macros directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	for _, dir := range []string{"queries", "macros"} {
		if err := os.MkdirAll(filepath.Join(tmpDir, dir), 0o750); err != nil {
			t.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}

	files := map[string]string{
		"blocksql.yaml":     "sql_root: queries\ntarget:\n  type: sqlite\n",
		"queries/users.sql": UsersTemplate,
		"queries/empty.sql": "-- nothing here\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	return tmpDir
}

// SetupTestDB creates a sqlite database at path with a users table.
func SetupTestDB(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, active INTEGER NOT NULL);
		INSERT INTO users (id, name, active) VALUES (1, 'ada', 1), (2, 'bob', 0), (3, 'cy', 1);
	`)
	if err != nil {
		t.Fatalf("failed to create users table: %v", err)
	}
}

// TestConfig returns a config rooted at a project created by SetupTestProject.
func TestConfig(projectDir string) *config.Config {
	return &config.Config{
		SQLRoot:        filepath.Join(projectDir, "queries"),
		MacrosDir:      filepath.Join(projectDir, "macros"),
		CacheSize:      config.DefaultCacheSize,
		EscapeRendered: true,
		OutputFormat:   "text",
		Target:         &config.Target{Type: "sqlite", DSN: ":memory:"},
		ProjectRoot:    projectDir,
	}
}

// Run executes cmd with args, cfg and a test logger in its context.
// It returns what the command wrote to stdout and stderr.
func Run(t *testing.T, cmd *cobra.Command, cfg *config.Config, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	ctx := config.WithConfig(context.Background(), cfg)
	ctx = context.WithValue(ctx, config.LoggerKey(), testutil.NewTestLogger(t))
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}

	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
