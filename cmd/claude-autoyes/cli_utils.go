package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/oseligman/claude-autoyes/internal/config"
	"github.com/oseligman/claude-autoyes/internal/daemon"
	"github.com/oseligman/claude-autoyes/internal/tmux"
)

// normalizeArgs reorders args so flags come before positional arguments.
// Go's flag package stops parsing at the first non-flag argument, which means
// "enable main:0.0 --json" silently ignores --json. This function moves all
// flags to the front so they get parsed correctly.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	// Build set of known boolean flags (don't need a value argument)
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--" terminates flag processing
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)

			name := strings.TrimLeft(arg, "-")

			// Handle --flag=value (value is part of the arg, nothing to move)
			if strings.Contains(name, "=") {
				continue
			}

			// If it's not a bool flag, the next arg is its value
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// validTarget checks the "session:window.pane" shape without requiring the
// pane to be live. Session names may themselves contain dots, so only the
// colon split is structural.
func validTarget(target string) bool {
	idx := strings.LastIndex(target, ":")
	if idx <= 0 || idx == len(target)-1 {
		return false
	}
	pane := target[idx+1:]
	dot := strings.Index(pane, ".")
	return dot > 0 && dot < len(pane)-1
}

// exitCodeFor maps sentinel errors to the documented exit codes.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, tmux.ErrUnavailable):
		return exitTmuxUnavailable
	case errors.Is(err, daemon.ErrAlreadyRunning):
		return exitAlreadyRunning
	case errors.Is(err, config.ErrCorrupt):
		return exitConfigCorrupt
	default:
		return exitError
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCodeFor(err))
}
