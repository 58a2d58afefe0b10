// Command hexpeek is the Session Controller entry point (spec.md §4
// "Session Controller", §6 "CLI surface"). It performs no work itself:
// argument parsing, file opening, and command dispatch all live in
// internal/cli, mirroring the thin-main/fat-Run split of the teacher's
// cmd/tk (see _examples/calvinalkan-agent-task/cmd/tk/main.go).
package main

import (
	"os"
	"strings"

	"github.com/hexpeek/hexpeek/internal/cli"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	os.Exit(cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, env))
}
