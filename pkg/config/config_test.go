package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.3, cfg.Moderator.HamCutoff)
	assert.Equal(t, 0.7, cfg.Moderator.SpamCutoff)
	assert.Equal(t, 3, cfg.Moderator.AbuseCutoff)
	assert.Equal(t, "sql", cfg.Moderator.Classifier)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Moderator.Classifier = "couchdb" }},
		{"ham above spam", func(c *Config) { c.Moderator.HamCutoff = 0.8 }},
		{"spam above one", func(c *Config) { c.Moderator.SpamCutoff = 1.5 }},
		{"negative ham", func(c *Config) { c.Moderator.HamCutoff = -0.1 }},
		{"zero abuse cutoff", func(c *Config) { c.Moderator.AbuseCutoff = 0 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"redis without url", func(c *Config) { c.Moderator.Classifier = "redis"; c.Redis.RedisURL = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"no workers", func(c *Config) { c.Worker.Workers = 0 }},
		{"weak discriminators", func(c *Config) { c.Learning.MaxDiscriminators = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Moderator.AbuseCutoff = 5
	cfg.Moderator.Classifier = "redis"
	cfg.Redis.KeyPrefix = "custom:"
	require.NoError(t, cfg.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Moderator.AbuseCutoff)
	assert.Equal(t, "redis", loaded.Moderator.Classifier)
	assert.Equal(t, "custom:", loaded.Redis.KeyPrefix)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("moderator:\n  spam_cutoff: 0.9\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Moderator.SpamCutoff)
	assert.Equal(t, 0.3, cfg.Moderator.HamCutoff)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("moderator: [not, a, map"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("moderator:\n  abuse_cutoff: 0\n"), 0644))
	_, err = LoadConfig(invalid)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvDatabaseDSN, "postgres://localhost/moderator")
	t.Setenv(EnvDatabaseDriver, "postgres")
	t.Setenv(EnvClassifier, "redis")
	t.Setenv(EnvRedisURL, "redis://cache:6379/2")
	t.Setenv(EnvAbuseCutoff, "7")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/moderator", cfg.Database.DSN)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "redis", cfg.Moderator.Classifier)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.RedisURL)
	assert.Equal(t, 7, cfg.Moderator.AbuseCutoff)
}

func TestEnvironmentOverrideParseError(t *testing.T) {
	t.Setenv(EnvHamCutoff, "low")
	_, err := LoadConfig("")
	assert.Error(t, err)
}
