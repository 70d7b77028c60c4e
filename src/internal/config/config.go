// FILE: wiretap/src/internal/config/config.go
package config

// Config is the complete wiretap configuration shared by the relay and the dashboard
type Config struct {
	// Suppress all console output
	Quiet bool `toml:"quiet"`

	// Disable the periodic status log
	DisableStatusReporter bool `toml:"disable_status_reporter"`

	// Interval between status log lines in seconds
	StatusIntervalSeconds int64 `toml:"status_interval_seconds"`

	RecordLog RecordLogConfig `toml:"record_log"`
	Relay     RelayConfig     `toml:"relay"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Logging   *LogConfig      `toml:"logging"`
}

// RecordLogConfig locates the append-only request/response log
type RecordLogConfig struct {
	// Path to the JSONL file, created on first write
	Path string `toml:"path"`
}

// RelayConfig configures the forwarding proxy
type RelayConfig struct {
	Host string `toml:"host"`
	Port int64  `toml:"port"`

	// Upstream base URL, trailing slash is stripped
	Target string `toml:"target"`

	// Upstream timeout in milliseconds, 0 waits indefinitely
	UpstreamTimeoutMS int64 `toml:"upstream_timeout_ms"`

	// Largest inbound body accepted, in bytes
	MaxRequestBodySize int64 `toml:"max_request_body_size"`
}

// DashboardConfig configures the live viewer server
type DashboardConfig struct {
	Host string `toml:"host"`
	Port int64  `toml:"port"`

	// Directory holding index.html and the static assets
	StaticDir string `toml:"static_dir"`

	// Endpoint paths
	StreamPath string `toml:"stream_path"`
	StatusPath string `toml:"status_path"`

	// Per-message send deadline in milliseconds
	WriteTimeoutMS int64 `toml:"write_timeout_ms"`

	// Fallback polling interval for the record log in milliseconds, 0 disables polling
	PollIntervalMS int64 `toml:"poll_interval_ms"`

	// New viewer connections accepted per second, 0 = unlimited
	AcceptRatePerSecond float64 `toml:"accept_rate_per_second"`
	AcceptBurst         int64   `toml:"accept_burst"`
}

func defaults() *Config {
	return &Config{
		Quiet:                 false,
		DisableStatusReporter: false,
		StatusIntervalSeconds: 30,
		RecordLog: RecordLogConfig{
			Path: "log.jsonl",
		},
		Relay: RelayConfig{
			Host:               "0.0.0.0",
			Port:               8888,
			Target:             "https://api.anthropic.com",
			UpstreamTimeoutMS:  0,
			MaxRequestBodySize: 64 * 1024 * 1024,
		},
		Dashboard: DashboardConfig{
			Host:                "0.0.0.0",
			Port:                8000,
			StaticDir:           "static",
			StreamPath:          "/ws",
			StatusPath:          "/status",
			WriteTimeoutMS:      5000,
			PollIntervalMS:      1000,
			AcceptRatePerSecond: 0,
			AcceptBurst:         10,
		},
		Logging: DefaultLogConfig(),
	}
}

// Defaults returns a fresh configuration holding only default values
func Defaults() *Config {
	return defaults()
}
