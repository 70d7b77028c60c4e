// FILE: wiretap/src/cmd/wiretap/output.go
package main

import (
	"fmt"
	"io"
	"os"
)

// Writes user-facing messages unless quiet mode is on
type OutputHandler struct {
	quiet  bool
	stderr io.Writer
}

var output *OutputHandler

func InitOutputHandler(quiet bool) {
	output = &OutputHandler{
		quiet:  quiet,
		stderr: os.Stderr,
	}
}

func (o *OutputHandler) Error(format string, args ...any) {
	if !o.quiet {
		fmt.Fprintf(o.stderr, format, args...)
	}
}

// Writes to stderr and exits (respects quiet mode)
func (o *OutputHandler) FatalError(code int, format string, args ...any) {
	o.Error(format, args...)
	os.Exit(code)
}

func FatalError(code int, format string, args ...any) {
	if output != nil {
		output.FatalError(code, format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}
