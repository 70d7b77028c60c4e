// FILE: wiretap/src/internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(8888), cfg.Relay.Port)
	assert.Equal(t, "https://api.anthropic.com", cfg.Relay.Target)
	assert.Equal(t, int64(8000), cfg.Dashboard.Port)
	assert.Equal(t, "log.jsonl", cfg.RecordLog.Path)
	assert.Equal(t, int64(0), cfg.Relay.UpstreamTimeoutMS, "upstream wait is unbounded by default")
	assert.Equal(t, "/ws", cfg.Dashboard.StreamPath)
}

func TestValidate_Relay(t *testing.T) {
	t.Run("TrailingSlashStripped", func(t *testing.T) {
		cfg := Defaults()
		cfg.Relay.Target = "http://stub:9000/api/"
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://stub:9000/api", cfg.Relay.Target)
	})

	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"PortZero", func(c *Config) { c.Relay.Port = 0 }},
		{"PortTooLarge", func(c *Config) { c.Relay.Port = 70000 }},
		{"EmptyTarget", func(c *Config) { c.Relay.Target = "" }},
		{"UnsupportedScheme", func(c *Config) { c.Relay.Target = "ftp://example.com" }},
		{"MissingHost", func(c *Config) { c.Relay.Target = "http://" }},
		{"TargetWithQuery", func(c *Config) { c.Relay.Target = "http://example.com?x=1" }},
		{"NegativeTimeout", func(c *Config) { c.Relay.UpstreamTimeoutMS = -1 }},
		{"EmptyRecordLog", func(c *Config) { c.RecordLog.Path = "" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_Dashboard(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"StreamPathWithoutSlash", func(c *Config) { c.Dashboard.StreamPath = "ws" }},
		{"StreamPathUnderStatic", func(c *Config) { c.Dashboard.StreamPath = "/static/ws" }},
		{"SamePaths", func(c *Config) { c.Dashboard.StatusPath = c.Dashboard.StreamPath }},
		{"PollTooFast", func(c *Config) { c.Dashboard.PollIntervalMS = 5 }},
		{"NegativeRate", func(c *Config) { c.Dashboard.AcceptRatePerSecond = -1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("PollingDisabled", func(t *testing.T) {
		cfg := Defaults()
		cfg.Dashboard.PollIntervalMS = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("BurstRaisedWithRate", func(t *testing.T) {
		cfg := Defaults()
		cfg.Dashboard.AcceptRatePerSecond = 5
		cfg.Dashboard.AcceptBurst = 0
		require.NoError(t, cfg.Validate())
		assert.Equal(t, int64(1), cfg.Dashboard.AcceptBurst)
	})
}

func TestValidate_Logging(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Logging.Output = "syslog"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Logging = nil
	require.NoError(t, cfg.Validate())
	assert.NotNil(t, cfg.Logging)
}

func TestCustomEnvTransform(t *testing.T) {
	assert.Equal(t, "WIRETAP_RELAY_PORT", customEnvTransform("relay.port"))
	assert.Equal(t, "WIRETAP_DASHBOARD_POLL_INTERVAL_MS", customEnvTransform("dashboard.poll_interval_ms"))
}

func TestGetConfigPath(t *testing.T) {
	t.Run("ExplicitFile", func(t *testing.T) {
		t.Setenv("WIRETAP_CONFIG_FILE", "/etc/wiretap/prod.toml")
		assert.Equal(t, "/etc/wiretap/prod.toml", GetConfigPath())
	})

	t.Run("RelativeFileInDir", func(t *testing.T) {
		t.Setenv("WIRETAP_CONFIG_FILE", "prod.toml")
		t.Setenv("WIRETAP_CONFIG_DIR", "/etc/wiretap")
		assert.Equal(t, "/etc/wiretap/prod.toml", GetConfigPath())
	})

	t.Run("DirOnly", func(t *testing.T) {
		t.Setenv("WIRETAP_CONFIG_FILE", "")
		t.Setenv("WIRETAP_CONFIG_DIR", "/etc/wiretap")
		assert.Equal(t, "/etc/wiretap/wiretap.toml", GetConfigPath())
	})
}

func TestLoad(t *testing.T) {
	t.Run("MissingFileUsesDefaults", func(t *testing.T) {
		t.Setenv("WIRETAP_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))

		cfg, err := Load()
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, int64(8888), cfg.Relay.Port)
		assert.Equal(t, "log.jsonl", cfg.RecordLog.Path)
		assert.NotNil(t, cfg.Logging)
	})

	t.Run("FileValues", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "wiretap.toml")
		content := "[relay]\nport = 9100\ntarget = \"http://stub:9000\"\n\n[dashboard]\nport = 8100\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		t.Setenv("WIRETAP_CONFIG_FILE", path)

		cfg, err := Load()
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, int64(9100), cfg.Relay.Port)
		assert.Equal(t, "http://stub:9000", cfg.Relay.Target)
		assert.Equal(t, int64(8100), cfg.Dashboard.Port)
	})
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, validatePort(1))
	assert.NoError(t, validatePort(65535))
	assert.Error(t, validatePort(0))
	assert.Error(t, validatePort(-1))
	assert.Error(t, validatePort(65536))
}

func TestNonEmpty(t *testing.T) {
	assert.NoError(t, nonEmpty("log.jsonl"))
	assert.Error(t, nonEmpty(""))
	assert.Error(t, nonEmpty("   "))
}
