package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreaterFire/trojan/internal/digest"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadServerConfig(t *testing.T) {
	path := writeConfig(t, `{
		"run_type": "server",
		"local_addr": "0.0.0.0",
		"local_port": 443,
		"remote_addr": "example.com",
		"remote_port": 80,
		"password": "hunter2",
		"certfile": "cert.pem",
		"keyfile": "key.pem",
		"log_level": 3
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, RunServer, cfg.RunType)
	assert.Equal(t, uint16(443), cfg.LocalPort)
	assert.Equal(t, uint16(80), cfg.RemotePort)
	assert.Equal(t, digest.Compute([]byte("hunter2")), cfg.PasswordDigest)
	assert.Equal(t, 3, cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
}

func TestLoadClampsLogLevel(t *testing.T) {
	path := writeConfig(t, `{
		"run_type": "server", "local_port": 443, "remote_addr": "x", "remote_port": 80,
		"certfile": "c", "keyfile": "k", "log_level": 99
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.LogLevel)
}

func TestLoadRejectsMissingFallback(t *testing.T) {
	path := writeConfig(t, `{"run_type": "server", "local_port": 443, "certfile": "c", "keyfile": "k"}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingTLSMaterial(t *testing.T) {
	path := writeConfig(t, `{"run_type": "server", "local_port": 443, "remote_addr": "x", "remote_port": 80}`)
	_, err := Load(path)
	assert.Error(t, err)
}
