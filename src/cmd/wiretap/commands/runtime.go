// FILE: wiretap/src/cmd/wiretap/commands/runtime.go
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wiretap/src/internal/config"

	"github.com/lixenwraith/log"
	"github.com/spf13/pflag"
)

// commonFlags are accepted by every server command
type commonFlags struct {
	configFile            string
	recordLog             string
	logLevel              string
	quiet                 bool
	disableStatusReporter bool
}

func (f *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configFile, "config", "c", "", "Path to configuration file")
	fs.StringVar(&f.recordLog, "record-log", "", "Record log file")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "Suppress all console output")
	fs.BoolVar(&f.disableStatusReporter, "disable-status-reporter", false, "Disable the periodic status reporter")
}

// loadConfig merges defaults, file and environment, then applies flags the
// user actually set, then validates
func loadConfig(fs *pflag.FlagSet, f *commonFlags, override func(*config.Config)) (*config.Config, error) {
	if f.configFile != "" {
		if _, err := os.Stat(f.configFile); err != nil {
			return nil, fmt.Errorf("config file not found: %s", f.configFile)
		}
		os.Setenv("WIRETAP_CONFIG_FILE", f.configFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if fs.Changed("record-log") {
		cfg.RecordLog.Path = f.recordLog
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = strings.ToLower(f.logLevel)
	}
	if fs.Changed("quiet") {
		cfg.Quiet = f.quiet
	}
	if fs.Changed("disable-status-reporter") {
		cfg.DisableStatusReporter = f.disableStatusReporter
	}
	if os.Getenv("WIRETAP_DISABLE_STATUS_REPORTER") == "1" {
		cfg.DisableStatusReporter = true
	}

	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger creates the process logger from the logging section
func initLogger(cfg *config.Config) (*log.Logger, error) {
	logger := log.NewLogger()
	logConfig := log.DefaultConfig()

	if cfg.Quiet {
		logConfig.EnableConsole = false
		logConfig.DisableFile = true
	} else {
		level, err := parseLogLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		logConfig.Level = level

		consoleTarget := "stdout"
		if cfg.Logging.Console != nil {
			if cfg.Logging.Console.Target != "" {
				consoleTarget = cfg.Logging.Console.Target
			}
			if cfg.Logging.Console.Format != "" {
				logConfig.Format = cfg.Logging.Console.Format
			}
		}

		switch cfg.Logging.Output {
		case "none":
			logConfig.EnableConsole = false
			logConfig.DisableFile = true
		case "stdout", "stderr", "split":
			logConfig.EnableConsole = true
			logConfig.ConsoleTarget = cfg.Logging.Output
			logConfig.DisableFile = true
		case "file":
			logConfig.EnableConsole = false
			logConfig.DisableFile = false
			applyFileLogging(logConfig, cfg.Logging.File)
		case "all":
			logConfig.EnableConsole = true
			logConfig.ConsoleTarget = consoleTarget
			logConfig.DisableFile = false
			applyFileLogging(logConfig, cfg.Logging.File)
		default:
			return nil, fmt.Errorf("invalid log output mode: %s", cfg.Logging.Output)
		}
	}

	if err := logger.ApplyConfig(logConfig); err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	if err := logger.Start(); err != nil {
		return nil, fmt.Errorf("failed to start logger: %w", err)
	}
	return logger, nil
}

func applyFileLogging(logConfig *log.Config, file *config.LogFileConfig) {
	if file == nil {
		return
	}
	if file.Directory != "" {
		logConfig.Directory = file.Directory
	}
	if file.Name != "" {
		logConfig.Name = file.Name
	}
	if file.MaxSizeMB > 0 {
		logConfig.MaxSizeKB = file.MaxSizeMB * 1000
	}
	if file.MaxTotalSizeMB >= 0 {
		logConfig.MaxTotalSizeKB = file.MaxTotalSizeMB * 1000
	}
}

func parseLogLevel(level string) (int64, error) {
	switch strings.ToLower(level) {
	case "debug":
		return int64(log.LevelDebug), nil
	case "info":
		return int64(log.LevelInfo), nil
	case "warn", "warning":
		return int64(log.LevelWarn), nil
	case "error":
		return int64(log.LevelError), nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}

func shutdownLogger(logger *log.Logger) {
	if err := logger.Shutdown(2 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "Logger shutdown error: %v\n", err)
	}
}

// waitForSignal blocks until SIGINT or SIGTERM, or until ctx ends
func waitForSignal(ctx context.Context) os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		return sig
	case <-ctx.Done():
		return nil
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}
