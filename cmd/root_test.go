package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicwatch/alertwatch/internal/buildinfo"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := RootCommand(buildinfo.NewContext("test", ""))
	root.SetArgs(args)
	return root.Execute()
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, execute(t, "config", "init", path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "confirmthreshold: 3")
	assert.Contains(t, string(data), "votingpolicy: reevaluate")

	assert.Error(t, execute(t, "config", "init", path), "existing file must not be overwritten")
	assert.NoError(t, execute(t, "config", "init", "--force", path))
}

func TestActorAndMaintenanceCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("ALERTWATCH_DB_PATH", filepath.Join(dir, "alertwatch.db"))
	t.Setenv("ALERTWATCH_LOGGING_LEVEL", "error")

	require.NoError(t, execute(t, "config", "init", path))
	require.NoError(t, execute(t, "--config", path, "migrate"))
	require.NoError(t, execute(t, "--config", path, "actor", "add", "--id", "alice", "--name", "Alice"))
	require.NoError(t, execute(t, "--config", path, "actor", "promote", "alice"))
	require.NoError(t, execute(t, "--config", path, "actor", "list"))
	require.NoError(t, execute(t, "--config", path, "recount"))

	assert.FileExists(t, filepath.Join(dir, "alertwatch.db"))
	assert.Error(t, execute(t, "--config", path, "actor", "promote", "nobody"))
	assert.Error(t, execute(t, "--config", path, "actor", "add", "--id", "alice", "--name", "Again"))
}

func TestMissingConfigFile(t *testing.T) {
	err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "migrate")
	assert.Error(t, err)
}
