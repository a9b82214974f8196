package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/oseligman/claude-autoyes/internal/config"
	"github.com/oseligman/claude-autoyes/internal/daemon"
	"github.com/oseligman/claude-autoyes/internal/detect"
	"github.com/oseligman/claude-autoyes/internal/tmux"
)

// statusTimeout bounds the pane scan; status must never hang a script.
const statusTimeout = 10 * time.Second

type statusInstance struct {
	Target       string     `json:"target"`
	Command      string     `json:"command"`
	Claude       bool       `json:"claude"`
	Enabled      bool       `json:"enabled"`
	LastPromptAt *time.Time `json:"last_prompt_at,omitempty"`
}

type statusReport struct {
	GlobalEnabled bool             `json:"global_enabled"`
	DaemonRunning bool             `json:"daemon_running"`
	DaemonPID     int              `json:"daemon_pid,omitempty"`
	Instances     []statusInstance `json:"instances"`
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	claudeOnly := fs.Bool("claude-only", false, "Only show panes detected as Claude Code")

	fs.Usage = func() {
		fmt.Println("Usage: claude-autoyes status [options]")
		fmt.Println()
		fmt.Println("List tmux panes with their Claude detection and auto-yes state.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(exitError)
	}

	report, err := buildStatusReport(*claudeOnly)
	if err != nil {
		fail(err)
	}

	if *jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fail(err)
		}
		fmt.Println(string(data))
		return
	}

	printStatusReport(report)
}

func buildStatusReport(claudeOnly bool) (*statusReport, error) {
	store, err := config.NewDefaultStore()
	if err != nil {
		return nil, err
	}
	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}

	client := tmux.NewClient()
	client.CaptureLines = cfg.CaptureLines
	registry := detect.NewRegistry(client)

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	instances, err := registry.ListInstances(ctx)
	if err != nil {
		return nil, err
	}

	report := &statusReport{GlobalEnabled: cfg.GlobalEnabled}

	manager, err := daemon.NewManager()
	if err != nil {
		return nil, err
	}
	if state, err := manager.Status(); err == nil && state != nil {
		report.DaemonRunning = true
		report.DaemonPID = state.PID
	}

	activity := loadActivity()
	for _, inst := range instances {
		if claudeOnly && !inst.IsClaude {
			continue
		}
		row := statusInstance{
			Target:  inst.Target(),
			Command: inst.Command,
			Claude:  inst.IsClaude,
			Enabled: cfg.InstanceEnabled(inst.Target()),
		}
		if at, ok := activity[row.Target]; ok {
			t := at
			row.LastPromptAt = &t
		}
		report.Instances = append(report.Instances, row)
	}
	return report, nil
}

// loadActivity reads the daemon's dispatch timestamps; best-effort.
func loadActivity() daemon.Activity {
	store, err := daemon.DefaultActivityStore()
	if err != nil {
		return daemon.Activity{}
	}
	activity, err := store.Load()
	if err != nil {
		return daemon.Activity{}
	}
	return activity
}

// humanSince renders a compact relative timestamp for table output.
func humanSince(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}

func printStatusReport(report *statusReport) {
	global := "OFF"
	if report.GlobalEnabled {
		global = "ON"
	}
	daemonState := "stopped"
	if report.DaemonRunning {
		daemonState = fmt.Sprintf("running (pid %d)", report.DaemonPID)
	}
	fmt.Printf("Global auto-yes: %s   Daemon: %s\n\n", global, daemonState)

	if len(report.Instances) == 0 {
		fmt.Println("No tmux panes found.")
		return
	}

	fmt.Printf("%-24s %-16s %-8s %-10s %s\n", "TARGET", "COMMAND", "CLAUDE", "AUTO-YES", "LAST PROMPT")
	for _, inst := range report.Instances {
		claude := "-"
		if inst.Claude {
			claude = "yes"
		}
		enabled := "off"
		if inst.Enabled {
			enabled = "on"
		}
		lastPrompt := "-"
		if inst.LastPromptAt != nil {
			lastPrompt = humanSince(*inst.LastPromptAt)
		}
		fmt.Printf("%-24s %-16s %-8s %-10s %s\n", inst.Target, inst.Command, claude, enabled, lastPrompt)
	}
}
