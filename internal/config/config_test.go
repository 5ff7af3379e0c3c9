package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearWorkerEnv(t *testing.T) {
	t.Helper()
	keys := []string{"WORKER_CONFIG_FILE", "API_HOST", "API_PORT", "MASTER_IP", "MASTER_PORT", "LOG_LEVEL", "LOG_JSON", "METRICS_ADDR"}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadWorkerRequiresMasterIP(t *testing.T) {
	clearWorkerEnv(t)

	_, err := LoadWorker()
	assert.Error(t, err)
}

func TestLoadWorkerAppliesDefaultsThenEnvOverrides(t *testing.T) {
	clearWorkerEnv(t)
	t.Setenv("MASTER_IP", "10.0.0.5")
	t.Setenv("API_PORT", "6000")
	t.Setenv("LOG_JSON", "true")

	cfg, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.APIHost)
	assert.Equal(t, 6000, cfg.APIPort)
	assert.Equal(t, "10.0.0.5", cfg.MasterIP)
	assert.Equal(t, 8000, cfg.MasterPort)
	assert.True(t, cfg.LogJSON)
}

func TestLoadWorkerRejectsNonIntegerPort(t *testing.T) {
	clearWorkerEnv(t)
	t.Setenv("MASTER_IP", "10.0.0.5")
	t.Setenv("API_PORT", "not-a-number")

	_, err := LoadWorker()
	assert.Error(t, err)
}

func TestLoadWorkerEnvWinsOverYAMLFile(t *testing.T) {
	clearWorkerEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("master_ip: 10.1.1.1\napi_port: 7000\n"), 0o644))

	t.Setenv("WORKER_CONFIG_FILE", path)
	t.Setenv("API_PORT", "9000")

	cfg, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1", cfg.MasterIP, "file supplies fields env leaves unset")
	assert.Equal(t, 9000, cfg.APIPort, "env overrides the file")
}

func TestLoadCoordinatorDefaults(t *testing.T) {
	t.Setenv("COORDINATOR_CONFIG_FILE", "")
	os.Unsetenv("COORDINATOR_CONFIG_FILE")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")
	t.Setenv("LOG_JSON", "")
	os.Unsetenv("LOG_JSON")
	t.Setenv("METRICS_ADDR", "")
	os.Unsetenv("METRICS_ADDR")

	cfg, err := LoadCoordinator()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadCoordinatorReadsMetricsAddr(t *testing.T) {
	os.Unsetenv("COORDINATOR_CONFIG_FILE")
	t.Setenv("METRICS_ADDR", ":9100")

	cfg, err := LoadCoordinator()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}
