package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/beholder
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 64, cfg.Scanner.MaxConcurrency)
	assert.Equal(t, int64(8*1024*1024), cfg.Scanner.MaxBytes)
	assert.Equal(t, 33554432, cfg.Scanner.MaxPixelArea)
	assert.Equal(t, "./tessd", cfg.Scanner.TessdPath)
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	path := writeConfig(t, `
server:
  port: ":9999"
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/beholder
scanner:
  max_concurrency: 8
  allow_list:
    - "https://*.tenor.com/*"
label_api:
  url: https://api.example.com/label
  key: secret
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Scanner.MaxConcurrency)
	assert.Equal(t, []string{"https://*.tenor.com/*"}, cfg.Scanner.AllowList)
	assert.Equal(t, "secret", cfg.LabelAPI.Key)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
