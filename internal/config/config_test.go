package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/Applications/Intent by Augment.app", cfg.App.Bundle)
	assert.Equal(t, "dist/renderer/app/immutable/chunks", cfg.Paths.ChunksDir)
	assert.Equal(t, "dist/features/agent/services/agent-factory.js", cfg.Paths.AgentFactory)
	assert.Equal(t, 5*time.Minute, cfg.PackTimeout())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autopatch.yaml")
	body := `
app:
  bundle: /tmp/Test.app
paths:
  extracted: /tmp/work/extracted
timeouts:
  pack_seconds: 90
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/Test.app", cfg.App.Bundle)
	assert.Equal(t, "/tmp/work/extracted", cfg.Paths.Extracted)
	assert.Equal(t, 90*time.Second, cfg.PackTimeout())
	// Untouched fields keep their defaults.
	assert.Equal(t, "app.asar.backup", cfg.Paths.Backup)
}

func TestLoad_EnvWinsOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autopatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  bundle: /tmp/FromYAML.app\n"), 0o644))

	t.Setenv("AUTOPATCH_APP_BUNDLE", "/tmp/FromEnv.app")
	t.Setenv("AUTOPATCH_DB", "/tmp/ledger.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/FromEnv.app", cfg.App.Bundle)
	assert.Equal(t, "/tmp/ledger.db", cfg.Paths.Database)
}

func TestConfig_BundlePaths(t *testing.T) {
	cfg := Default()
	cfg.App.Bundle = "/Applications/Test.app"

	assert.Equal(t, "/Applications/Test.app/Contents/Resources/app.asar", cfg.Asar())
	assert.Equal(t, "/Applications/Test.app/Contents/Resources/app.asar.unpacked", cfg.Unpacked())
	assert.Equal(t, "/Applications/Test.app/Contents/Info.plist", cfg.Plist())
}
