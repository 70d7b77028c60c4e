// FILE: wiretap/src/cmd/wiretap/commands/dashboard.go
package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wiretap/src/internal/config"
	"wiretap/src/internal/dashboard"
	"wiretap/src/internal/hub"
	"wiretap/src/internal/tail"
	"wiretap/src/internal/version"
)

// DashboardCommand serves the live viewer
type DashboardCommand struct {
	common       commonFlags
	host         string
	port         int64
	staticDir    string
	pollInterval int64
}

func NewDashboardCommand() *DashboardCommand {
	return &DashboardCommand{}
}

func (c *DashboardCommand) Execute(args []string) error {
	fs := newFlagSet("dashboard")
	c.common.register(fs)
	fs.StringVar(&c.host, "host", "", "Listen address")
	fs.Int64VarP(&c.port, "port", "p", 0, "Listen port (default 8000)")
	fs.StringVar(&c.staticDir, "static-dir", "", "Directory holding index.html and assets")
	fs.Int64Var(&c.pollInterval, "poll-interval", 0, "Record log polling interval in milliseconds, 0 disables")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg, err := loadConfig(fs, &c.common, func(cfg *config.Config) {
		if fs.Changed("host") {
			cfg.Dashboard.Host = c.host
		}
		if fs.Changed("port") {
			cfg.Dashboard.Port = c.port
		}
		if fs.Changed("static-dir") {
			cfg.Dashboard.StaticDir = c.staticDir
		}
		if fs.Changed("poll-interval") {
			cfg.Dashboard.PollIntervalMS = c.pollInterval
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

	logger.Info("msg", "wiretap dashboard starting",
		"version", version.String(),
		"record_log", cfg.RecordLog.Path,
		"log_output", cfg.Logging.Output)

	tailer, err := tail.NewTailer(cfg.RecordLog.Path, logger)
	if err != nil {
		return err
	}
	watcher := tail.NewWatcher(cfg.RecordLog.Path, time.Duration(cfg.Dashboard.PollIntervalMS)*time.Millisecond, logger)
	viewers := hub.New(tailer, watcher.Changes(), time.Duration(cfg.Dashboard.WriteTimeoutMS)*time.Millisecond, logger)

	server, err := dashboard.New(&cfg.Dashboard, cfg.RecordLog.Path, viewers, watcher, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		viewers.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := watcher.Run(ctx); err != nil {
			logger.Error("msg", "Record log watcher stopped",
				"component", "watcher",
				"error", err)
			cancel()
		}
	}()

	if err := server.Start(ctx); err != nil {
		cancel()
		wg.Wait()
		return err
	}

	logger.Info("msg", "Dashboard available",
		"url", fmt.Sprintf("http://%s:%d/", cfg.Dashboard.Host, cfg.Dashboard.Port),
		"stream", cfg.Dashboard.StreamPath,
		"status", cfg.Dashboard.StatusPath)

	if !cfg.DisableStatusReporter {
		go statusReporter(ctx, time.Duration(cfg.StatusIntervalSeconds)*time.Second, logger, func() []any {
			hs := viewers.Stats()
			ws := watcher.GetStats()
			return []any{
				"active_viewers", hs.ActiveViewers,
				"total_connects", hs.TotalConnects,
				"broadcasts", hs.TotalBroadcasts,
				"dropped_viewers", hs.DroppedViewers,
				"file_events", ws.FileEvents,
				"polls", ws.Polls,
			}
		})
	}

	if sig := waitForSignal(ctx); sig != nil {
		logger.Info("msg", "Shutdown signal received", "signal", sig)
	}

	cancel()
	server.Stop()
	wg.Wait()
	return nil
}

func (c *DashboardCommand) Description() string {
	return "Serve the live view of recorded traffic"
}

func (c *DashboardCommand) Help() string {
	return `Dashboard Command - Serve the live view of recorded traffic

Serves the dashboard page and a WebSocket stream. A new viewer first receives
every recorded exchange, then one update per exchange appended afterwards.

Usage:
  wiretap dashboard [options]

Options:
  -c, --config <path>             Path to configuration file
      --host <addr>               Listen address (default: 0.0.0.0)
  -p, --port <port>               Listen port (default: 8000)
      --static-dir <dir>          Directory holding index.html (default: static)
      --poll-interval <ms>        Polling backstop for file events (default: 1000)
      --record-log <path>         Record log file (default: log.jsonl)
      --log-level <level>         Diagnostic log level
  -q, --quiet                     Suppress all console output
      --disable-status-reporter   Disable the periodic status reporter

Endpoints:
  /           Dashboard page
  /static/    Static assets
  /ws         Viewer stream
  /status     Service status (JSON)
`
}
