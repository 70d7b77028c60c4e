// FILE: wiretap/src/cmd/wiretap/commands/relay.go
package commands

import (
	"context"
	"fmt"
	"time"

	"wiretap/src/internal/config"
	"wiretap/src/internal/recordlog"
	"wiretap/src/internal/relay"
	"wiretap/src/internal/version"

	"github.com/dustin/go-humanize"
)

// RelayCommand runs the recording relay
type RelayCommand struct {
	common          commonFlags
	host            string
	port            int64
	target          string
	upstreamTimeout int64
}

func NewRelayCommand() *RelayCommand {
	return &RelayCommand{}
}

func (c *RelayCommand) Execute(args []string) error {
	fs := newFlagSet("relay")
	c.common.register(fs)
	fs.StringVar(&c.host, "host", "", "Listen address")
	fs.Int64VarP(&c.port, "port", "p", 0, "Listen port (default 8888)")
	fs.StringVarP(&c.target, "target", "t", "", "Upstream base URL (default https://api.anthropic.com)")
	fs.Int64Var(&c.upstreamTimeout, "upstream-timeout", 0, "Upstream timeout in milliseconds, 0 waits indefinitely")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg, err := loadConfig(fs, &c.common, func(cfg *config.Config) {
		if fs.Changed("host") {
			cfg.Relay.Host = c.host
		}
		if fs.Changed("port") {
			cfg.Relay.Port = c.port
		}
		if fs.Changed("target") {
			cfg.Relay.Target = c.target
		}
		if fs.Changed("upstream-timeout") {
			cfg.Relay.UpstreamTimeoutMS = c.upstreamTimeout
		}
	})
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer shutdownLogger(logger)

	logger.Info("msg", "wiretap relay starting",
		"version", version.String(),
		"record_log", cfg.RecordLog.Path,
		"log_output", cfg.Logging.Output)

	writer := recordlog.NewWriter(cfg.RecordLog.Path, logger)
	defer writer.Close()

	server, err := relay.New(&cfg.Relay, writer, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return err
	}

	if !cfg.DisableStatusReporter {
		go statusReporter(ctx, time.Duration(cfg.StatusIntervalSeconds)*time.Second, logger, func() []any {
			rs := server.GetStats()
			ws := writer.GetStats()
			return []any{
				"requests", rs.TotalRequests,
				"upstream_errors", rs.UpstreamErrors,
				"upstream_failures", rs.UpstreamFailures,
				"append_failures", rs.AppendFailures,
				"records", ws.TotalAppended,
				"record_bytes", humanize.Bytes(ws.TotalBytes),
			}
		})
	}

	sig := waitForSignal(ctx)
	logger.Info("msg", "Shutdown signal received", "signal", sig)

	cancel()
	server.Stop()
	return nil
}

func (c *RelayCommand) Description() string {
	return "Forward requests upstream and record every exchange"
}

func (c *RelayCommand) Help() string {
	return `Relay Command - Forward requests upstream and record every exchange

Every inbound request, whatever its method or path, is sent to the upstream
target with the same path and query. The upstream response goes back to the
caller unchanged and the exchange is appended to the record log.

Usage:
  wiretap relay [options]

Options:
  -c, --config <path>             Path to configuration file
      --host <addr>               Listen address (default: 0.0.0.0)
  -p, --port <port>               Listen port (default: 8888)
  -t, --target <url>              Upstream base URL (default: https://api.anthropic.com)
      --upstream-timeout <ms>     Upstream timeout, 0 waits indefinitely (default: 0)
      --record-log <path>         Record log file (default: log.jsonl)
      --log-level <level>         Diagnostic log level
  -q, --quiet                     Suppress all console output
      --disable-status-reporter   Disable the periodic status reporter

Examples:
  wiretap relay -p 9000 -t https://api.example.com
  ANTHROPIC_BASE_URL=http://localhost:8888 my-client
`
}
