package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oseligman/claude-autoyes/internal/config"
	"github.com/oseligman/claude-autoyes/internal/daemon"
	"github.com/oseligman/claude-autoyes/internal/detect"
	"github.com/oseligman/claude-autoyes/internal/logging"
	"github.com/oseligman/claude-autoyes/internal/tmux"
)

func handleDaemon(args []string) {
	if len(args) == 0 {
		printDaemonUsage()
		os.Exit(exitError)
	}

	switch args[0] {
	case "start":
		handleDaemonStart(args[1:])
	case "stop":
		handleDaemonStop(args[1:])
	case "status":
		handleDaemonStatus(args[1:])
	case "restart":
		handleDaemonRestart(args[1:])
	case "run":
		// Internal: the detached loop process spawned by `daemon start`.
		runDaemonLoop(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown daemon command: %s\n\n", args[0])
		printDaemonUsage()
		os.Exit(exitError)
	}
}

func printDaemonUsage() {
	fmt.Println("Usage: claude-autoyes daemon <start|stop|status|restart>")
	fmt.Println()
	fmt.Println("  start      Start the background daemon")
	fmt.Println("  stop       Stop the background daemon")
	fmt.Println("  status     Show daemon state")
	fmt.Println("  restart    Restart the background daemon")
}

func handleDaemonStart(args []string) {
	fs := flag.NewFlagSet("daemon start", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(exitError)
	}

	if err := tmux.IsAvailable(); err != nil {
		fail(err)
	}

	manager, err := daemon.NewManager()
	if err != nil {
		fail(err)
	}
	state, err := manager.Start()
	if err != nil {
		fail(err)
	}
	fmt.Printf("Daemon started (pid %d), log: %s\n", state.PID, state.LogPath)
}

func handleDaemonStop(args []string) {
	fs := flag.NewFlagSet("daemon stop", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(exitError)
	}

	manager, err := daemon.NewManager()
	if err != nil {
		fail(err)
	}
	state, err := manager.Status()
	if err != nil {
		fail(err)
	}
	if state == nil {
		fmt.Println("Daemon is not running.")
		return
	}
	if err := manager.Stop(); err != nil {
		fail(err)
	}
	fmt.Println("Daemon stopped.")
}

func handleDaemonStatus(args []string) {
	fs := flag.NewFlagSet("daemon status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(exitError)
	}

	manager, err := daemon.NewManager()
	if err != nil {
		fail(err)
	}
	state, err := manager.Status()
	if err != nil {
		fail(err)
	}

	if *jsonOutput {
		if state == nil {
			fmt.Println(`{"running": false}`)
			return
		}
		fmt.Printf("{\"running\": true, \"pid\": %d, \"started_at\": %q, \"log_path\": %q}\n",
			state.PID, state.StartedAt.Format(time.RFC3339), state.LogPath)
		return
	}

	if state == nil {
		fmt.Println("Daemon is not running.")
		return
	}
	fmt.Printf("Daemon running (pid %d) since %s\n", state.PID, state.StartedAt.Format(time.RFC1123))
	fmt.Printf("Log: %s\n", state.LogPath)
}

func handleDaemonRestart(args []string) {
	fs := flag.NewFlagSet("daemon restart", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(exitError)
	}

	manager, err := daemon.NewManager()
	if err != nil {
		fail(err)
	}
	state, err := manager.Restart()
	if err != nil {
		fail(err)
	}
	fmt.Printf("Daemon restarted (pid %d)\n", state.PID)
}

// runDaemonLoop is the body of the detached daemon process. It owns the
// liveness record for its lifetime and removes it on every exit path.
func runDaemonLoop(args []string) {
	fs := flag.NewFlagSet("daemon run", flag.ExitOnError)
	once := fs.Bool("once", false, "Run one poll cycle and exit")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitError)
	}

	store, err := config.NewDefaultStore()
	if err != nil {
		fail(err)
	}
	cfg, err := store.Load()
	if err != nil {
		// A corrupt config must not keep the daemon from starting; the
		// loop rechecks it every cycle and sits idle until it is fixed.
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		cfg = config.Default()
	}

	manager, err := daemon.NewManager()
	if err != nil {
		fail(err)
	}

	logging.Init(logging.Config{
		LogFile:    manager.LogPath(),
		Level:      "info",
		Format:     "json",
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
		Compress:   cfg.Logs.Compress,
	})
	defer logging.Shutdown()

	client := tmux.NewClient()
	client.CaptureLines = cfg.CaptureLines
	registry := detect.NewRegistry(client)
	loop := daemon.NewLoop(registry, store, client, daemon.NewDispatcher(client))
	if activity, err := daemon.DefaultActivityStore(); err == nil {
		loop.SetActivityStore(activity)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		loop.RunOnce(ctx)
		return
	}

	if err := manager.WriteOwnRecord(); err != nil {
		fail(err)
	}
	defer manager.RemoveOwnRecord()

	log := logging.ForComponent(logging.CompDaemon)
	log.Info("daemon_started",
		slog.Int("pid", os.Getpid()),
		slog.String("version", Version),
		slog.String("config", store.Path()))

	if err := loop.Run(ctx); err != nil {
		log.Error("daemon_exited", slog.String("error", err.Error()))
		manager.RemoveOwnRecord()
		os.Exit(exitError)
	}
	log.Info("daemon_exited_clean")
}
