// FILE: wiretap/src/cmd/wiretap/commands/help.go
package commands

import (
	"fmt"
	"sort"
	"strings"
)

const generalHelpTemplate = `wiretap: record API traffic through a relay and watch it live.

Usage:
  wiretap <command> [options]

Commands:
%s

Common Options:
  -c, --config <path>        Path to configuration file (default: ~/.config/wiretap.toml)
      --record-log <path>    Record log file (default: log.jsonl)
      --log-level <level>    Diagnostic log level: debug, info, warn, error
  -q, --quiet                Suppress all console output, including errors
      --disable-status-reporter  Disable the periodic status reporter
  -h, --help                 Display help and exit
  -v, --version              Display version information and exit

For command-specific help:
  wiretap help <command>
  wiretap <command> --help

Configuration Sources (Precedence: CLI > Env > File > Defaults):
  - CLI flags override all other settings
  - WIRETAP_* environment variables override file settings
    (e.g. WIRETAP_RELAY_TARGET, WIRETAP_DASHBOARD_PORT)
  - TOML configuration file

Examples:
  # Relay to the default upstream on port 8888
  wiretap relay

  # Watch recorded traffic at http://localhost:8000
  wiretap dashboard
`

// HelpCommand shows general or command-specific help.
type HelpCommand struct {
	router *CommandRouter
}

func NewHelpCommand(router *CommandRouter) *HelpCommand {
	return &HelpCommand{router: router}
}

func (c *HelpCommand) Execute(args []string) error {
	if len(args) > 0 && args[0] != "" {
		cmdName := args[0]
		if handler, exists := c.router.GetCommand(cmdName); exists {
			fmt.Print(handler.Help())
			return nil
		}
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	fmt.Printf(generalHelpTemplate, c.formatCommandList())
	return nil
}

func (c *HelpCommand) Description() string {
	return "Display help information"
}

func (c *HelpCommand) Help() string {
	return `Help Command - Display help information

Usage:
  wiretap help              Show general help
  wiretap help <command>    Show help for a specific command
`
}

// formatCommandList returns the sorted, aligned command list.
func (c *HelpCommand) formatCommandList() string {
	commands := c.router.GetCommands()

	names := make([]string, 0, len(commands))
	maxLen := 0
	for name := range commands {
		names = append(names, name)
		if len(name) > maxLen {
			maxLen = len(name)
		}
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		padding := strings.Repeat(" ", maxLen-len(name)+2)
		lines = append(lines, fmt.Sprintf("  %s%s%s", name, padding, commands[name].Description()))
	}

	return strings.Join(lines, "\n")
}
