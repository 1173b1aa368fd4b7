package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "forum", cfg.Stack.Name)
	assert.Equal(t, "postgres", cfg.Stack.DBService)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10*time.Second, cfg.Timing.SettleDelay)
	assert.Equal(t, 30*time.Second, cfg.Timing.RetryDelay)
	assert.Equal(t, 30, cfg.Timing.ReadinessAttempts)
	assert.Equal(t, 5*time.Second, cfg.Timing.ReadinessInterval)
	assert.Equal(t, int64(1024), cfg.Resources.MinMemoryMB)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forumctl.yaml")
	content := `
stack:
  name: community
  db_user: community
log:
  level: debug
  format: json
timing:
  settle_delay: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "community", cfg.Stack.Name)
	assert.Equal(t, "community", cfg.Stack.DBUser)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 2*time.Second, cfg.Timing.SettleDelay)
	// Untouched keys keep their defaults.
	assert.Equal(t, "postgres", cfg.Stack.DBService)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("FORUMCTL_STACK_NAME", "env-forum")
	t.Setenv("FORUMCTL_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "env-forum", cfg.Stack.Name)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "forum", cfg.Stack.Name)
}

func TestEngineConfigTranslation(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	eng := cfg.EngineConfig()
	assert.Equal(t, cfg.Stack.Name, eng.StackName)
	assert.Equal(t, cfg.Stack.Manifest, eng.ManifestPath)
	assert.Equal(t, cfg.Timing.SettleDelay, eng.SettleDelay)
	assert.Equal(t, cfg.Backup.Dir, eng.BackupDir)
	assert.Equal(t, cfg.Resources.MinDiskMB, eng.MinDiskMB)
}
