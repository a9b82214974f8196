package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/oseligman/claude-autoyes/internal/config"
	"github.com/oseligman/claude-autoyes/internal/ui"
)

const Version = "0.3.1"

// Exit codes. Scripts key off these, keep them stable.
const (
	exitOK              = 0
	exitError           = 1
	exitTmuxUnavailable = 2
	exitAlreadyRunning  = 3
	exitConfigCorrupt   = 4
)

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color profile based on terminal capabilities.
// Prefers TrueColor for best visuals, falls back to ANSI256 for compatibility.
func initColorProfile() {
	// Allow user override via environment variable
	// CLAUDE_AUTOYES_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("CLAUDE_AUTOYES_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	// Explicit TrueColor support
	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Known TrueColor-capable terminals
	term := os.Getenv("TERM")
	trueColorTerms := []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	}
	for _, t := range trueColorTerms {
		if strings.Contains(term, t) || term == t {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	// Fallback: ANSI256 works in SSH, basic terminals, and older emulators
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("claude-autoyes v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "status":
			handleStatus(args[1:])
			return
		case "enable":
			handleEnable(args[1:])
			return
		case "disable":
			handleDisable(args[1:])
			return
		case "enable-all":
			handleEnableAll(args[1:])
			return
		case "disable-all":
			handleDisableAll(args[1:])
			return
		case "daemon":
			handleDaemon(args[1:])
			return
		case "tui":
			runTUI()
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
			printHelp()
			os.Exit(exitError)
		}
	}

	// No subcommand: launch the TUI
	runTUI()
}

func runTUI() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Error: the TUI needs an interactive terminal")
		fmt.Fprintln(os.Stderr, "Use 'claude-autoyes status --json' for scripted output.")
		os.Exit(exitError)
	}
	if _, err := exec.LookPath("tmux"); err != nil {
		fmt.Fprintln(os.Stderr, "Error: tmux not found in PATH")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "claude-autoyes watches tmux panes. Install tmux with:")
		fmt.Fprintln(os.Stderr, "  brew install tmux")
		os.Exit(exitTmuxUnavailable)
	}

	store, err := config.NewDefaultStore()
	if err != nil {
		fail(err)
	}
	cfg, err := store.Load()
	if err != nil {
		fail(err)
	}
	ui.InitTheme(cfg.Theme)

	if err := ui.Run(store); err != nil {
		fail(err)
	}
}

func printHelp() {
	fmt.Printf("claude-autoyes v%s\n", Version)
	fmt.Println("Auto-answer confirmation prompts in Claude Code tmux panes")
	fmt.Println()
	fmt.Println("Usage: claude-autoyes [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  (none), tui      Start the interactive TUI")
	fmt.Println("  status           List Claude panes and their auto-yes state")
	fmt.Println("  enable <target>  Enable auto-yes for a pane (session:window.pane)")
	fmt.Println("  disable <target> Disable auto-yes for a pane")
	fmt.Println("  enable-all       Enable auto-yes for every detected Claude pane")
	fmt.Println("  disable-all      Disable auto-yes for all panes")
	fmt.Println("  daemon           Manage the background daemon")
	fmt.Println("  version          Show version")
	fmt.Println("  help             Show this help")
	fmt.Println()
	fmt.Println("Daemon Commands:")
	fmt.Println("  daemon start     Start the background daemon")
	fmt.Println("  daemon stop      Stop the background daemon")
	fmt.Println("  daemon status    Show daemon state")
	fmt.Println("  daemon restart   Restart the background daemon")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  claude-autoyes                      # Open the TUI")
	fmt.Println("  claude-autoyes enable main:0.0      # Opt one pane in")
	fmt.Println("  claude-autoyes status --json        # Machine-readable status")
	fmt.Println("  claude-autoyes daemon start         # Run headless")
	fmt.Println()
	fmt.Println("Auto-yes only acts on panes that are both individually enabled")
	fmt.Println("and covered by the global switch (toggle with 'g' in the TUI).")
}
