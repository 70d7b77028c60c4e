// FILE: wiretap/src/cmd/wiretap/commands/version.go
package commands

import (
	"fmt"

	"wiretap/src/internal/version"
)

// VersionCommand prints build information
type VersionCommand struct{}

func NewVersionCommand() *VersionCommand {
	return &VersionCommand{}
}

func (c *VersionCommand) Execute(args []string) error {
	fmt.Println(version.String())
	return nil
}

func (c *VersionCommand) Description() string {
	return "Show version information"
}

func (c *VersionCommand) Help() string {
	return `Version Command - Show wiretap version information

Usage:
  wiretap version
  wiretap -v
  wiretap --version
`
}
