package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/blocksql/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupExec(t *testing.T) (string, string) {
	t.Helper()
	project := testutil.SetupTestProject(t)
	dbPath := filepath.Join(project, "app.db")
	testutil.SetupTestDB(t, dbPath)
	return project, dbPath
}

func TestExecCommand_Query(t *testing.T) {
	project, dbPath := setupExec(t)
	cfg := testutil.TestConfig(project)
	cfg.Target.DSN = dbPath
	cfg.OutputFormat = "json"

	out, _, err := testutil.Run(t, NewExecCommand(), cfg,
		"users.sql", "list_users", "--cond", "active_cond=active_cond", "--bind", "active=int:1")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "ada", rows[0]["name"])
	assert.Equal(t, "cy", rows[1]["name"])
}

func TestExecCommand_Table(t *testing.T) {
	project, dbPath := setupExec(t)
	cfg := testutil.TestConfig(project)
	cfg.Target.DSN = dbPath
	cfg.OutputFormat = "markdown"

	out, _, err := testutil.Run(t, NewExecCommand(), cfg, "users.sql", "by_id", "-p", "id=int:2")
	require.NoError(t, err)
	assert.Contains(t, out, "| id | name |")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "(1 rows)")
}

func TestExecCommand_Statement(t *testing.T) {
	project, dbPath := setupExec(t)
	cfg := testutil.TestConfig(project)
	cfg.Target.DSN = dbPath
	cfg.EscapeRendered = false

	out, _, err := testutil.Run(t, NewExecCommand(), cfg, "users.sql", "rename", "-p", "id=int:2", "-p", "name=eve")
	require.NoError(t, err)
	assert.Contains(t, out, "1 row affected")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var name string
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT name FROM users WHERE id = 2").Scan(&name))
	assert.Equal(t, "eve", name)
}

func TestExecCommand_EscapedLiteralIsRejected(t *testing.T) {
	project, dbPath := setupExec(t)
	cfg := testutil.TestConfig(project)
	cfg.Target.DSN = dbPath

	// With escaping on, guards.string quotes are doubled and the statement is invalid.
	_, _, err := testutil.Run(t, NewExecCommand(), cfg, "users.sql", "rename", "-p", "id=int:2", "-p", "name=eve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rename: exec failed")
}

func TestExecCommand_DryRun(t *testing.T) {
	project := testutil.SetupTestProject(t)
	cfg := testutil.TestConfig(project)
	cfg.Target.Type = "postgres"
	cfg.Target.DSN = "postgres://nowhere.invalid/db"

	out, _, err := testutil.Run(t, NewExecCommand(), cfg, "users.sql", "by_id", "-p", "id=int:9", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users WHERE id = 9\n", out)
}

func TestExecCommand_UnknownTarget(t *testing.T) {
	project := testutil.SetupTestProject(t)
	cfg := testutil.TestConfig(project)
	cfg.Target.Type = "oracle"

	_, _, err := testutil.Run(t, NewExecCommand(), cfg, "users.sql", "list_users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target type "oracle"`)
}

func TestExecCommand_HeaderTargetMismatchWarns(t *testing.T) {
	project, dbPath := setupExec(t)
	tmpl := "/*---\ntarget: duckdb\n---*/\n{* sql one *}SELECT 1 AS n{* endsql *}\n"
	require.NoError(t, os.WriteFile(filepath.Join(project, "queries", "duck.sql"), []byte(tmpl), 0o600))

	cfg := testutil.TestConfig(project)
	cfg.Target.DSN = dbPath

	_, errOut, err := testutil.Run(t, NewExecCommand(), cfg, "duck.sql", "one")
	require.NoError(t, err)
	assert.Contains(t, errOut, "duck.sql is written for duckdb, running on sqlite")
}
