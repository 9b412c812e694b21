package main

import (
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/question-bank/internal/config"
)

// testConfig loads defaults from an empty working directory with an
// in-memory store and no delay between items.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	c, err := config.Load()
	require.NoError(t, err)
	c.Store.Driver = "memory"
	for name, w := range c.Workflows {
		w.ItemDelayMs = 0
		c.Workflows[name] = w
	}
	return c
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"migrate", "ingest", "populate", "cycle", "run", "status", "tasks"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "qbank", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCommandMode(t *testing.T) {
	assert.Equal(t, config.ModeEnrich, commandMode(runCmd))
	assert.Equal(t, config.ModeEnrich, commandMode(cycleCmd))
	assert.Equal(t, config.ModeStore, commandMode(ingestCmd))
	assert.Equal(t, config.ModeStore, commandMode(populateCmd))
	assert.Equal(t, config.ModeStore, commandMode(&cobra.Command{}))
}

func TestIngestCommand_Flags(t *testing.T) {
	require.NotNil(t, ingestCmd.Flags().Lookup("format"))
	require.NotNil(t, ingestCmd.Flags().Lookup("json"))
	assert.Error(t, ingestCmd.Args(ingestCmd, nil))
	assert.NoError(t, ingestCmd.Args(ingestCmd, []string{"lote.json"}))
}

func TestRunCommand_Flags(t *testing.T) {
	flag := runCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "run command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestTasksCommand_Flags(t *testing.T) {
	flag := tasksCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
	require.NotNil(t, tasksCmd.Flags().Lookup("status"))
	require.NotNil(t, tasksCmd.Flags().Lookup("kind"))
}

func TestKindsFlag(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("kind", "", "")

	kinds, err := kindsFlag(cmd)
	require.NoError(t, err)
	assert.Nil(t, kinds)

	require.NoError(t, cmd.Flags().Set("kind", "full_review"))
	kinds, err = kindsFlag(cmd)
	require.NoError(t, err)
	assert.Len(t, kinds, 1)

	require.NoError(t, cmd.Flags().Set("kind", "translation"))
	_, err = kindsFlag(cmd)
	assert.Error(t, err)
}
