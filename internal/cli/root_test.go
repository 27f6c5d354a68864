package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/blocksql/internal/cli/config"
	"github.com/leapstack-labs/blocksql/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestHelpCommand(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"init", "render", "list", "check", "exec", "watch", "shell", "version", "completion"} {
		assert.Contains(t, out, name)
	}
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "blocksql "+Version), "got %q", out)
}

func TestRenderThroughRoot(t *testing.T) {
	project := testutil.SetupTestProject(t)

	out, err := execute(t,
		"--config", filepath.Join(project, "blocksql.yaml"),
		"--output", "text",
		"render", "users.sql", "by_id", "-p", "id=int:5")
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users WHERE id = 5\n", out)
}

func TestProjectDirFlag(t *testing.T) {
	project := testutil.SetupTestProject(t)

	out, err := execute(t, "--project-dir", project, "-o", "json", "check")
	require.NoError(t, err)
	assert.Contains(t, out, `"passed": 2`)
}

func TestInvalidOutputFormat(t *testing.T) {
	project := testutil.SetupTestProject(t)

	_, err := execute(t, "--project-dir", project, "--output", "yaml", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestCompletionCommand(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "blocksql")

	_, err = execute(t, "completion", "tcsh")
	assert.Error(t, err)
}
