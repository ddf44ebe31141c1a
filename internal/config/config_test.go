package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, validateConfig(GetDefaults()))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad mode", func(c *Config) { c.Privacy.DefaultMode = "mask" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero upload limit", func(c *Config) { c.Extraction.MaxUploadMB = 0 }},
		{"rate limit without rate", func(c *Config) { c.RateLimit.RequestsPerMin = 0 }},
		{"audit without dsn", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.DatabaseURL = ""
		}},
		{"no workers", func(c *Config) { c.Batch.WorkerCount = 0 }},
		{"tiny ner window", func(c *Config) { c.Privacy.NER.MaxLength = 4 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestValidateConfigAcceptsEmptyMode(t *testing.T) {
	cfg := GetDefaults()
	cfg.Privacy.DefaultMode = " EMPTY "
	assert.NoError(t, validateConfig(cfg))
}

func TestLoadFromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
privacy:
  default_mode: empty
  ner:
    enabled: false
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "empty", cfg.Privacy.DefaultMode)
	assert.False(t, cfg.Privacy.NER.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 4, cfg.Batch.WorkerCount)
	assert.Equal(t, path, FileUsed())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
