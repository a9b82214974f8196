// Package detect discovers Claude Code instances running in tmux panes and
// recognizes the confirmation prompts they render.
package detect

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oseligman/claude-autoyes/internal/logging"
	"github.com/oseligman/claude-autoyes/internal/tmux"
)

var detectLog = logging.ForComponent(logging.CompDetect)

// Instance is one candidate pane. Ephemeral: recomputed every poll, never
// persisted. Identity is the (session, pane) pair.
type Instance struct {
	Session  string // tmux session name
	Pane     string // "window.pane" index within the session
	Command  string // foreground command tmux reports for the pane
	IsClaude bool   // pane hosts a Claude Code process
}

// Target returns the canonical "session:window.pane" identifier used in the
// config file and as the tmux target.
func (i Instance) Target() string {
	return i.Session + ":" + i.Pane
}

// claudeBinaryIndicators are path fragments that mark a node process as the
// real Claude binary rather than an unrelated node program.
var claudeBinaryIndicators = []string{
	"/bin/claude", // npm global bin
	"/.claude/",   // home directory install
	"/claude.js",  // direct execution
}

// excludedWrappers are session-manager commands that mention claude but must
// never be auto-answered.
var excludedWrappers = map[string]bool{
	"claude-squad": true,
	"cs":           true,
}

// contentFallbackExcluded are commands whose panes routinely display text
// about Claude (pagers, editors) and would false-positive content detection.
var contentFallbackExcluded = map[string]bool{
	"nvim": true,
	"vim":  true,
	"less": true,
	"more": true,
	"cat":  true,
}

// IsClaudeCommand is the process-name predicate: a command is a monitored
// process when it names claude (case-insensitively) and is not a known
// wrapper. "claude --resume" counts; "claude-squad" does not.
func IsClaudeCommand(command string) bool {
	cmd := strings.TrimSpace(command)
	if cmd == "" || excludedWrappers[cmd] {
		return false
	}
	lower := strings.ToLower(cmd)
	if strings.Contains(lower, "claude-squad") {
		return false
	}
	return lower == "claude" || strings.HasPrefix(lower, "claude ")
}

// hasClaudeBinaryPath reports whether a full command line points at a real
// Claude install.
func hasClaudeBinaryPath(args string) bool {
	if strings.Contains(args, "claude-squad") {
		return false
	}
	for _, indicator := range claudeBinaryIndicators {
		if strings.Contains(args, indicator) {
			return true
		}
	}
	return false
}

// IsClaudePaneContent is the content-based fallback classifier, used when
// process inspection is inconclusive. It looks for interface chrome that only
// the Claude Code TUI renders.
func IsClaudePaneContent(content string) bool {
	if content == "" {
		return false
	}

	// Active input box with cursor
	if strings.Contains(content, "│ >") && strings.Contains(content, "╰─") {
		return true
	}

	// Startup screen
	if strings.Contains(content, "Welcome to Claude Code") {
		return true
	}

	// Interface chrome; require a second indicator so logs or reports that
	// merely mention Claude Code don't qualify
	if strings.Contains(content, "Claude Code") && strings.Contains(content, "╰─") {
		if strings.Contains(content, "cwd:") ||
			strings.Contains(content, "/help for help") ||
			strings.Contains(content, "Tip:") {
			return true
		}
	}

	// Update notification screen
	if strings.Contains(content, "✓ Update installed") && strings.Contains(content, "Restart to apply") {
		return true
	}

	return false
}

// Backend is the subset of the tmux client the registry needs.
type Backend interface {
	ListPanes(ctx context.Context) ([]tmux.Pane, error)
	Capture(ctx context.Context, target string) (string, error)
}

// Registry enumerates tmux panes and classifies which ones host Claude.
// Read-only: it never mutates panes or persisted state.
type Registry struct {
	backend Backend

	// process inspection seams, overridable in tests
	processArgs   func(ctx context.Context, pid int) (string, error)
	childCommands func(ctx context.Context, pid int) ([]string, error)
}

// NewRegistry returns a Registry backed by the given tmux client.
func NewRegistry(backend Backend) *Registry {
	return &Registry{
		backend:       backend,
		processArgs:   tmux.ProcessArgs,
		childCommands: tmux.ChildCommands,
	}
}

// ListInstances returns every pane as an Instance with its classification.
// Wrapper panes (claude-squad) are omitted entirely. Returns
// tmux.ErrUnavailable when the server is unreachable; a vanished pane is
// skipped, never fatal.
func (r *Registry) ListInstances(ctx context.Context) ([]Instance, error) {
	panes, err := r.backend.ListPanes(ctx)
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(panes))
	for _, pane := range panes {
		if excludedWrappers[pane.Command] {
			continue
		}

		inst := Instance{
			Session:  pane.Session,
			Pane:     pane.Index,
			Command:  pane.Command,
			IsClaude: r.classify(ctx, pane),
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// classify decides whether a pane hosts Claude. Process-based detection is
// preferred; content inspection is the fallback for shells and multiplexed
// node processes.
func (r *Registry) classify(ctx context.Context, pane tmux.Pane) bool {
	if IsClaudeCommand(pane.Command) {
		return true
	}

	// Claude usually runs as a node process; confirm via the full command line
	if pane.Command == "node" && pane.PID > 0 {
		if args, err := r.processArgs(ctx, pane.PID); err == nil && hasClaudeBinaryPath(args) {
			return true
		}
	}

	// tmux often reports the shell while Claude runs as its child
	if pane.PID > 0 {
		if children, err := r.childCommands(ctx, pane.PID); err == nil {
			for _, child := range children {
				if IsClaudeCommand(child) {
					return true
				}
			}
		}
	}

	// Content fallback, skipped for pagers/editors that may display Claude text
	if contentFallbackExcluded[pane.Command] {
		return false
	}
	content, err := r.backend.Capture(ctx, pane.Target())
	if err != nil {
		detectLog.Debug("content_fallback_capture_failed",
			slog.String("target", pane.Target()),
			slog.String("error", err.Error()))
		return false
	}
	return IsClaudePaneContent(content)
}

// MonitoredInstances filters ListInstances down to Claude panes.
func (r *Registry) MonitoredInstances(ctx context.Context) ([]Instance, error) {
	all, err := r.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	monitored := all[:0]
	for _, inst := range all {
		if inst.IsClaude {
			monitored = append(monitored, inst)
		}
	}
	return monitored, nil
}
