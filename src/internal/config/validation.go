// FILE: wiretap/src/internal/config/validation.go
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the whole configuration and normalizes derived values
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if c.Logging == nil {
		c.Logging = DefaultLogConfig()
	}
	if err := validateLogConfig(c.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := nonEmpty(c.RecordLog.Path); err != nil {
		return fmt.Errorf("record_log: path: %w", err)
	}

	if c.StatusIntervalSeconds < 1 {
		c.StatusIntervalSeconds = 30
	}

	if err := validateRelay(&c.Relay); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := validateDashboard(&c.Dashboard); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	return nil
}

func validateLogConfig(cfg *LogConfig) error {
	validOutputs := map[string]bool{
		"file": true, "stdout": true, "stderr": true,
		"split": true, "all": true, "none": true,
	}
	if !validOutputs[cfg.Output] {
		return fmt.Errorf("invalid log output mode: %s", cfg.Output)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		return fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	if cfg.Console != nil {
		validTargets := map[string]bool{
			"stdout": true, "stderr": true, "split": true,
		}
		if !validTargets[cfg.Console.Target] {
			return fmt.Errorf("invalid console target: %s", cfg.Console.Target)
		}

		validFormats := map[string]bool{
			"txt": true, "json": true, "": true,
		}
		if !validFormats[cfg.Console.Format] {
			return fmt.Errorf("invalid console format: %s", cfg.Console.Format)
		}
	}

	return nil
}

func validateRelay(cfg *RelayConfig) error {
	if err := validatePort(cfg.Port); err != nil {
		return err
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}

	if err := nonEmpty(cfg.Target); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	cfg.Target = strings.TrimRight(cfg.Target, "/")

	u, err := url.Parse(cfg.Target)
	if err != nil {
		return fmt.Errorf("invalid target URL '%s': %w", cfg.Target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target URL must use http or https: %s", cfg.Target)
	}
	if u.Host == "" {
		return fmt.Errorf("target URL has no host: %s", cfg.Target)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("target URL must not carry a query or fragment: %s", cfg.Target)
	}

	if cfg.UpstreamTimeoutMS < 0 {
		return fmt.Errorf("upstream_timeout_ms cannot be negative: %d", cfg.UpstreamTimeoutMS)
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 64 * 1024 * 1024
	}

	return nil
}

func validateDashboard(cfg *DashboardConfig) error {
	if err := validatePort(cfg.Port); err != nil {
		return err
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}

	if cfg.StreamPath == "" {
		cfg.StreamPath = "/ws"
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = "/status"
	}
	for name, path := range map[string]string{"stream_path": cfg.StreamPath, "status_path": cfg.StatusPath} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with /: %s", name, path)
		}
		if path == "/" || strings.HasPrefix(path, "/static") {
			return fmt.Errorf("%s conflicts with the dashboard document routes: %s", name, path)
		}
	}
	if cfg.StreamPath == cfg.StatusPath {
		return fmt.Errorf("stream_path and status_path must differ: %s", cfg.StreamPath)
	}

	if cfg.WriteTimeoutMS <= 0 {
		cfg.WriteTimeoutMS = 5000
	}
	if cfg.PollIntervalMS < 0 {
		return fmt.Errorf("poll_interval_ms cannot be negative: %d", cfg.PollIntervalMS)
	}
	if cfg.PollIntervalMS > 0 && cfg.PollIntervalMS < 10 {
		return fmt.Errorf("poll interval too small: %d ms", cfg.PollIntervalMS)
	}

	if cfg.AcceptRatePerSecond < 0 {
		return fmt.Errorf("accept_rate_per_second cannot be negative: %f", cfg.AcceptRatePerSecond)
	}
	if cfg.AcceptRatePerSecond > 0 && cfg.AcceptBurst < 1 {
		cfg.AcceptBurst = 1
	}

	return nil
}

func validatePort(port int64) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", port)
	}
	return nil
}

func nonEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("value cannot be empty")
	}
	return nil
}
