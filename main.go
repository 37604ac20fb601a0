package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

const appName = "eventsound"

const usage = `usage: eventsound <command> [arguments]

commands:
  play [-driver d] [-theme t] [-file path] [-timeout d] <event-id> [key=value...]
        play one event sound and wait for it to finish
  run <script.js> [args...]
        run a script with require('eventsound') available
  themes
        list installed sound themes
  browse [theme]
        interactive sound board
  prune
        drop stale entries from the lookup cache
`

type command func(args []string) error

var commands = map[string]command{
	"play":   cmdPlay,
	"run":    cmdRun,
	"themes": cmdThemes,
	"browse": cmdBrowse,
	"prune":  cmdPrune,
}

// exitError carries a specific process exit status.
type exitError struct {
	status int
	err    error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		fmt.Print(usage)
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "eventsound: unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	if err := cmd(os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "eventsound %s: %v\n", name, err)
		status := 1
		var ee *exitError
		if errors.As(err, &ee) {
			status = ee.status
		}
		os.Exit(status)
	}
}
