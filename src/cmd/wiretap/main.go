// FILE: wiretap/src/cmd/wiretap/main.go
package main

import (
	"os"

	"wiretap/src/cmd/wiretap/commands"
)

func main() {
	InitOutputHandler(isQuiet(os.Args[1:]))

	router := commands.NewCommandRouter()
	if len(os.Args) < 2 {
		router.Route([]string{os.Args[0], "help"})
		os.Exit(1)
	}

	handled, err := router.Route(os.Args)
	if err != nil {
		FatalError(1, "Error: %v\n", err)
	}
	if !handled {
		FatalError(1, "Error: no command given\n\nRun 'wiretap help' for usage\n")
	}
}

// isQuiet reports a quiet flag before any command parses its arguments
func isQuiet(args []string) bool {
	for _, arg := range args {
		if arg == "-q" || arg == "--quiet" {
			return true
		}
	}
	return false
}
