package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Probation.Interval.Duration)
	assert.False(t, cfg.Probation.Enabled)
}

func TestDecode_TOML(t *testing.T) {
	doc := `
[server]
port = 9000

[database]
type = "postgres"
dsn  = "postgres://hr@localhost/hr"

[probation]
enabled   = true
interval  = "30m"
companies = ["acme", "globex"]

[notify]
language = "de"
`
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(doc), "toml", cfg))

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 30*time.Minute, cfg.Probation.Interval.Duration)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Probation.Companies)
	assert.Equal(t, "de", cfg.Notify.Language)
	// untouched sections keep defaults
	assert.Equal(t, "filesystem", cfg.Storage.Type)
	require.NoError(t, cfg.Validate())
}

func TestDecode_YAML(t *testing.T) {
	doc := `
storage:
  type: s3
  bucket: hr-certificates
  region: eu-central-1
probation:
  interval: 2h
`
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(doc), "yaml", cfg))

	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "hr-certificates", cfg.Storage.Bucket)
	assert.Equal(t, 2*time.Hour, cfg.Probation.Interval.Duration)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(cfg, envMap(map[string]string{
		"HR_PORT":                "7000",
		"HR_DATABASE_TYPE":       "memory",
		"HR_PROBATION_ENABLED":   "true",
		"HR_PROBATION_INTERVAL":  "15m",
		"HR_PROBATION_COMPANIES": "acme, globex ,",
		"HR_KAFKA_BROKERS":       "k1:9092,k2:9092",
		"HR_TELEGRAM_CHAT_ID":    "-100123",
	}))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.True(t, cfg.Probation.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Probation.Interval.Duration)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Probation.Companies)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, int64(-100123), cfg.Notify.TelegramChatID)
}

func TestApplyEnv_RejectsBadValues(t *testing.T) {
	for _, env := range []map[string]string{
		{"HR_PORT": "eighty"},
		{"HR_PROBATION_ENABLED": "sometimes"},
		{"HR_PROBATION_INTERVAL": "hourly"},
		{"HR_TELEGRAM_CHAT_ID": "chat"},
	} {
		assert.Error(t, ApplyEnv(Default(), envMap(env)), "%v", env)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown database", func(c *Config) { c.Database.Type = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Database.Type = "postgres" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"scanner without companies", func(c *Config) { c.Probation.Enabled = true }},
		{"telegram without chat", func(c *Config) { c.Notify.TelegramToken = "t" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0644))

	t.Setenv("HR_DATABASE_TYPE", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Type)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
