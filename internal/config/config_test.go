package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":1337", cfg.Server.Addr)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
	assert.Equal(t, "federalist-development/build", cfg.GitHub.StatusContext)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  host: https://pages.example.gov/
  environment: production
database:
  path: /var/lib/federalist/builds.sqlite
github:
  token: ghp_test
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// trailing slash trimmed so deep links compose cleanly
	assert.Equal(t, "https://pages.example.gov", cfg.App.Host)
	assert.Equal(t, "/var/lib/federalist/builds.sqlite", cfg.Database.Path)
	assert.Equal(t, "ghp_test", cfg.GitHub.Token)
	assert.Equal(t, "federalist/build", cfg.GitHub.StatusContext)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  host: http://file-host\n"), 0o600))

	t.Setenv("FEDERALIST_HOST", "http://env-host")
	t.Setenv("GITHUB_STATUS_CONTEXT", "federalist-ci/build")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env-host", cfg.App.Host)
	assert.Equal(t, "federalist-ci/build", cfg.GitHub.StatusContext)
}

func TestValidateRejectsEmptyAddr(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ""
	assert.Error(t, cfg.Validate())
}
