package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")
	t.Setenv("BYBIT_TESTNET", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("LOG_LEVEL", "")

	path := writeConfig(t, `
exchange:
  api_key: key
  api_secret: secret
  testnet: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bybit", cfg.Exchange.Name)
	assert.Equal(t, BybitTestnetURL, cfg.Exchange.RESTEndpoint)
	assert.Equal(t, BybitTestnetWSURL, cfg.Exchange.WSEndpoint)
	assert.Equal(t, "spot", cfg.Exchange.Category)
	assert.Equal(t, 10*time.Second, cfg.Exchange.Timeout)
	assert.Equal(t, "sqlite3", cfg.Storage.Driver)
	assert.Equal(t, "bots.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Monitor.PollInterval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "env-key")
	t.Setenv("BYBIT_API_SECRET", "env-secret")
	t.Setenv("BYBIT_TESTNET", "false")
	t.Setenv("DB_DSN", "file:env.db")
	t.Setenv("LOG_LEVEL", "debug")

	path := writeConfig(t, `
exchange:
  api_key: file-key
  api_secret: file-secret
  testnet: true
  timeout: 3s
storage:
  dsn: file.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Exchange.APIKey)
	assert.Equal(t, "env-secret", cfg.Exchange.APISecret)
	assert.False(t, cfg.Exchange.Testnet)
	assert.Equal(t, BybitMainnetURL, cfg.Exchange.RESTEndpoint)
	assert.Equal(t, 3*time.Second, cfg.Exchange.Timeout)
	assert.Equal(t, "file:env.db", cfg.Storage.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidTestnetFlag(t *testing.T) {
	t.Setenv("BYBIT_TESTNET", "maybe")
	path := writeConfig(t, "exchange:\n  api_key: k\n  api_secret: s\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "BYBIT_TESTNET")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{Exchange: ExchangeConfig{APIKey: "k", APISecret: "s"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing key", func(c *Config) { c.Exchange.APIKey = "" }, "api_key"},
		{"missing secret", func(c *Config) { c.Exchange.APISecret = "" }, "api_secret"},
		{"unknown exchange", func(c *Config) { c.Exchange.Name = "okx" }, "unsupported exchange"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "unsupported storage driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres"; c.Storage.DSN = "" }, "dsn"},
		{"poll too fast", func(c *Config) { c.Monitor.PollInterval = time.Millisecond }, "poll_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
