package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/oseligman/claude-autoyes/internal/config"
	"github.com/oseligman/claude-autoyes/internal/detect"
	"github.com/oseligman/claude-autoyes/internal/tmux"
)

func handleEnable(args []string) {
	fs := flag.NewFlagSet("enable", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println("Usage: claude-autoyes enable <session:window.pane>")
		fmt.Println()
		fmt.Println("Opt a pane into auto-yes. The pane does not have to be live;")
		fmt.Println("enablement persists and applies whenever the target exists.")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(exitError)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(exitError)
	}
	target := fs.Arg(0)
	if !validTarget(target) {
		fmt.Fprintf(os.Stderr, "Error: %q is not a session:window.pane target\n", target)
		os.Exit(exitError)
	}

	store, err := config.NewDefaultStore()
	if err != nil {
		fail(err)
	}
	if err := store.Enable(target); err != nil {
		fail(err)
	}

	fmt.Printf("Enabled auto-yes for %s\n", target)
	warnIfNotLive(target)
	warnIfGlobalOff(store)
}

func handleDisable(args []string) {
	fs := flag.NewFlagSet("disable", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println("Usage: claude-autoyes disable <session:window.pane>")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(exitError)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(exitError)
	}
	target := fs.Arg(0)

	store, err := config.NewDefaultStore()
	if err != nil {
		fail(err)
	}
	if err := store.Disable(target); err != nil {
		fail(err)
	}
	fmt.Printf("Disabled auto-yes for %s\n", target)
}

func handleEnableAll(args []string) {
	fs := flag.NewFlagSet("enable-all", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println("Usage: claude-autoyes enable-all")
		fmt.Println()
		fmt.Println("Enable auto-yes for every pane currently detected as Claude Code.")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(exitError)
	}

	store, err := config.NewDefaultStore()
	if err != nil {
		fail(err)
	}

	client := tmux.NewClient()
	registry := detect.NewRegistry(client)
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	instances, err := registry.MonitoredInstances(ctx)
	if err != nil {
		fail(err)
	}
	if len(instances) == 0 {
		fmt.Println("No Claude Code panes detected.")
		return
	}

	targets := make([]string, 0, len(instances))
	for _, inst := range instances {
		targets = append(targets, inst.Target())
	}
	if err := store.EnableAll(targets); err != nil {
		fail(err)
	}

	fmt.Printf("Enabled auto-yes for %d pane(s):\n", len(targets))
	for _, t := range targets {
		fmt.Printf("  %s\n", t)
	}
	warnIfGlobalOff(store)
}

func handleDisableAll(args []string) {
	fs := flag.NewFlagSet("disable-all", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println("Usage: claude-autoyes disable-all")
		fmt.Println()
		fmt.Println("Clear the enabled set. The global switch is left as-is.")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(exitError)
	}

	store, err := config.NewDefaultStore()
	if err != nil {
		fail(err)
	}
	if err := store.DisableAll(); err != nil {
		fail(err)
	}
	fmt.Println("Disabled auto-yes for all panes.")
}

// warnIfNotLive points out enables that reference no current pane. Not an
// error: sessions come and go, and the target may exist tomorrow.
func warnIfNotLive(target string) {
	client := tmux.NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	panes, err := client.ListPanes(ctx)
	if err != nil {
		return
	}
	for _, p := range panes {
		if p.Target() == target {
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Warning: no live pane matches %s right now\n", target)
}

func warnIfGlobalOff(store *config.Store) {
	cfg, err := store.Load()
	if err != nil || cfg.GlobalEnabled {
		return
	}
	fmt.Fprintln(os.Stderr, "Note: the global switch is OFF; nothing is answered until it is enabled.")
}
