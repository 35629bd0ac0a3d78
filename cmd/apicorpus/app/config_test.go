package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/apicorpus/pkg/constants"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, constants.RegistryFile, config.Registry)
	assert.Equal(t, constants.OutputDir, config.OutputDir)
	assert.Equal(t, constants.FetchTimeout, config.FetchTimeout)
	assert.Equal(t, constants.UpdateInterval, config.UpdateInterval)
	assert.Equal(t, "auto", config.LogFormat)
	assert.False(t, config.Strict)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("APICORPUS_REGISTRY", "/tmp/custom.yaml")
	t.Setenv("APICORPUS_OUTPUT_DIR", "/tmp/apis")
	t.Setenv("APICORPUS_FETCH_TIMEOUT", "5s")
	t.Setenv("APICORPUS_STRICT", "true")
	t.Setenv("APICORPUS_FORMAT", "json")

	config, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.yaml", config.Registry)
	assert.Equal(t, "/tmp/apis", config.OutputDir)
	assert.Equal(t, 5*time.Second, config.FetchTimeout)
	assert.True(t, config.Strict)
	assert.Equal(t, "json", config.Format)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`registry: corpus/metadata.yaml
output_dir: corpus/APIs
force_refresh: true
update_interval: 1h
ledger: failures.yaml
`), 0o644))

	config, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, path, config.ConfigFile)
	assert.Equal(t, "corpus/metadata.yaml", config.Registry)
	assert.Equal(t, "corpus/APIs", config.OutputDir)
	assert.True(t, config.ForceRefresh)
	assert.Equal(t, time.Hour, config.UpdateInterval)
	assert.Equal(t, "failures.yaml", config.Ledger)
}

func TestLoadConfigEnvironmentBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registry: from-file.yaml\n"), 0o644))
	t.Setenv("APICORPUS_REGISTRY", "from-env.yaml")

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.yaml", config.Registry)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registry: [unterminated\n"), 0o644))

	_, err := loadConfig(path)
	require.Error(t, err)
}
